package authflow

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// parseJWTClaims decodes the unsigned claims of a JWT. No signature
// verification: the tokens are only inspected for identity and expiry,
// never trusted for authorization decisions here.
func parseJWTClaims(token string) map[string]any {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil
	}
	claims := map[string]any{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil
	}
	return claims
}

func claimExpiry(token string) time.Time {
	claims := parseJWTClaims(token)
	if claims == nil {
		return time.Time{}
	}
	exp := toInt64(claims["exp"])
	if exp <= 0 {
		return time.Time{}
	}
	return time.Unix(exp, 0)
}

func extractAccountID(claims map[string]any) string {
	if claims == nil {
		return ""
	}
	if id, _ := claims["chatgpt_account_id"].(string); id != "" {
		return id
	}
	if auth, ok := claims["https://api.openai.com/auth"].(map[string]any); ok {
		if id, _ := auth["chatgpt_account_id"].(string); id != "" {
			return id
		}
	}
	if sub, _ := claims["sub"].(string); sub != "" {
		return sub
	}
	if orgs, ok := claims["organizations"].([]any); ok && len(orgs) > 0 {
		if first, ok := orgs[0].(map[string]any); ok {
			if id, _ := first["id"].(string); id != "" {
				return id
			}
		}
	}
	return ""
}

func extractEmail(claims map[string]any) string {
	if claims == nil {
		return ""
	}
	if email, _ := claims["email"].(string); email != "" {
		return email
	}
	if profile, ok := claims["https://api.openai.com/profile"].(map[string]any); ok {
		if email, _ := profile["email"].(string); email != "" {
			return email
		}
	}
	return ""
}

func toInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		i, _ := v.Int64()
		return i
	case string:
		if v == "" {
			return 0
		}
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

func toFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}
