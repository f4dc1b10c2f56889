package switcher

import (
	"encoding/base64"
	"fmt"

	"agent-switcher/internal/authflow"
	"agent-switcher/internal/fsutil"
	"agent-switcher/internal/kvstore"
	"agent-switcher/internal/statepatch"
)

// editorStateKey is the ItemTable cell where editor-family targets keep
// their OAuth record, base64 of a length-delimited binary message.
const editorStateKey = "auth.oauthState"

// readLocalRefreshToken extracts the refresh token embedded in a target's
// own state database. Absence of the database, the cell, or the field all
// report ok=false.
func readLocalRefreshToken(dbPath string) (string, bool, error) {
	db, err := kvstore.Open(dbPath)
	if err != nil {
		return "", false, nil
	}
	defer db.Close()
	raw, ok, err := db.Get(editorStateKey)
	if err != nil || !ok {
		return "", false, err
	}
	record, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		return "", false, fmt.Errorf("decode state record: %w", err)
	}
	token, ok := statepatch.ExtractRefreshToken(record)
	return token, ok, nil
}

// injectEditorToken rewrites the OAuth field of the target's state record in
// place. Other fields of the record keep their exact bytes. A missing cell
// yields a record containing only the OAuth field.
func injectEditorToken(dbPath string, bundle authflow.TokenBundle) error {
	if err := fsutil.EnsureParentDir(dbPath); err != nil {
		return err
	}
	db, err := kvstore.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var record []byte
	raw, ok, err := db.Get(editorStateKey)
	if err != nil {
		return err
	}
	if ok {
		record, err = base64.StdEncoding.DecodeString(string(raw))
		if err != nil {
			return fmt.Errorf("decode state record: %w", err)
		}
	}
	patched, err := statepatch.ReplaceOAuthField(record, bundle.AccessToken, bundle.RefreshToken, bundle.ExpiresAt.Unix())
	if err != nil {
		return err
	}
	return db.Put(editorStateKey, []byte(base64.StdEncoding.EncodeToString(patched)))
}
