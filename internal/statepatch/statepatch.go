// Package statepatch edits one tagged field inside the editor family's
// opaque auth record without a schema. The record is protobuf wire format,
// but only the OAuth field (number 6) is ever interpreted; every other field
// is carried through byte-for-byte so the host application keeps accepting
// its own record after a rewrite.
package statepatch

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the host record and the nested OAuthTokenInfo message.
const (
	OAuthFieldNumber protowire.Number = 6

	oauthAccessToken  protowire.Number = 1
	oauthTokenType    protowire.Number = 2
	oauthRefreshToken protowire.Number = 3
	oauthExpiry       protowire.Number = 4

	expirySeconds protowire.Number = 1

	bearerTokenType = "Bearer"
)

var (
	// ErrTruncated reports a varint or length prefix running past the end
	// of the buffer.
	ErrTruncated = errors.New("truncated wire data")
	// ErrWireType reports a wire type this patcher cannot skip.
	ErrWireType = errors.New("unsupported wire type")
)

// ReadVarint decodes a base-128 varint at offset and returns the value and
// the offset just past it.
func ReadVarint(buf []byte, offset int) (uint64, int, error) {
	if offset < 0 || offset > len(buf) {
		return 0, 0, ErrTruncated
	}
	value, n := protowire.ConsumeVarint(buf[offset:])
	if n < 0 {
		return 0, 0, ErrTruncated
	}
	return value, offset + n, nil
}

// SkipField advances past one field value of the given wire type, returning
// the offset of the next tag.
func SkipField(buf []byte, offset int, wireType protowire.Type) (int, error) {
	if offset < 0 || offset > len(buf) {
		return 0, ErrTruncated
	}
	rest := buf[offset:]
	var n int
	switch wireType {
	case protowire.VarintType:
		_, n = protowire.ConsumeVarint(rest)
	case protowire.Fixed64Type:
		_, n = protowire.ConsumeFixed64(rest)
	case protowire.BytesType:
		_, n = protowire.ConsumeBytes(rest)
	case protowire.Fixed32Type:
		_, n = protowire.ConsumeFixed32(rest)
	default:
		return 0, fmt.Errorf("%w: %d", ErrWireType, wireType)
	}
	if n < 0 {
		return 0, ErrTruncated
	}
	return offset + n, nil
}

// RemoveField returns a copy of buf with every top-level occurrence of
// fieldNumber removed. All other fields keep their original encoding.
func RemoveField(buf []byte, fieldNumber protowire.Number) ([]byte, error) {
	out := make([]byte, 0, len(buf))
	offset := 0
	for offset < len(buf) {
		num, typ, n := protowire.ConsumeTag(buf[offset:])
		if n < 0 {
			return nil, ErrTruncated
		}
		next, err := SkipField(buf, offset+n, typ)
		if err != nil {
			return nil, err
		}
		if num != fieldNumber {
			out = append(out, buf[offset:next]...)
		}
		offset = next
	}
	return out, nil
}

// BuildOAuthField encodes a replacement OAuth field: access token, the fixed
// "Bearer" token type, refresh token, and a nested message carrying the Unix
// expiry in seconds, wrapped as length-delimited field 6. A non-positive
// expiry (a zero time.Time yields a large negative Unix value) is written
// as 0 rather than wrapping around in the unsigned varint.
func BuildOAuthField(accessToken, refreshToken string, expiryUnix int64) []byte {
	if expiryUnix < 0 {
		expiryUnix = 0
	}
	var expiry []byte
	expiry = protowire.AppendTag(expiry, expirySeconds, protowire.VarintType)
	expiry = protowire.AppendVarint(expiry, uint64(expiryUnix))

	var info []byte
	info = protowire.AppendTag(info, oauthAccessToken, protowire.BytesType)
	info = protowire.AppendString(info, accessToken)
	info = protowire.AppendTag(info, oauthTokenType, protowire.BytesType)
	info = protowire.AppendString(info, bearerTokenType)
	info = protowire.AppendTag(info, oauthRefreshToken, protowire.BytesType)
	info = protowire.AppendString(info, refreshToken)
	info = protowire.AppendTag(info, oauthExpiry, protowire.BytesType)
	info = protowire.AppendBytes(info, expiry)

	var out []byte
	out = protowire.AppendTag(out, OAuthFieldNumber, protowire.BytesType)
	out = protowire.AppendBytes(out, info)
	return out
}

// ReplaceOAuthField strips any existing OAuth field from buf and appends a
// freshly built one, leaving every other field byte-identical.
func ReplaceOAuthField(buf []byte, accessToken, refreshToken string, expiryUnix int64) ([]byte, error) {
	stripped, err := RemoveField(buf, OAuthFieldNumber)
	if err != nil {
		return nil, err
	}
	return append(stripped, BuildOAuthField(accessToken, refreshToken, expiryUnix)...), nil
}

// ExtractRefreshToken locates the OAuth field and returns the refresh token
// sub-field, or false when the field or sub-field is absent. Used to detect
// account changes the host application made on its own.
func ExtractRefreshToken(buf []byte) (string, bool) {
	info, ok := findField(buf, OAuthFieldNumber)
	if !ok {
		return "", false
	}
	refresh, ok := findField(info, oauthRefreshToken)
	if !ok {
		return "", false
	}
	return string(refresh), true
}

// findField scans one message level for the first length-delimited field with
// the given number.
func findField(buf []byte, fieldNumber protowire.Number) ([]byte, bool) {
	offset := 0
	for offset < len(buf) {
		num, typ, n := protowire.ConsumeTag(buf[offset:])
		if n < 0 {
			return nil, false
		}
		offset += n
		if num == fieldNumber && typ == protowire.BytesType {
			value, vn := protowire.ConsumeBytes(buf[offset:])
			if vn < 0 {
				return nil, false
			}
			return value, true
		}
		next, err := SkipField(buf, offset, typ)
		if err != nil {
			return nil, false
		}
		offset = next
	}
	return nil, false
}
