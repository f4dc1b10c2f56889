package account

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"agent-switcher/internal/authflow"
	"agent-switcher/internal/fsutil"
)

// Store manages every provider's account files under one root directory:
// <root>/<provider>/accounts.json plus <root>/<provider>/<id>.json. Entity
// data is reloaded from disk on every operation; only the per-provider
// mutexes are process state.
type Store struct {
	root string

	metaMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewStore(root string) *Store {
	return &Store{root: root, locks: map[string]*sync.Mutex{}}
}

// providerLock serializes structural mutations for one provider. Providers
// never share a lock.
func (s *Store) providerLock(provider string) *sync.Mutex {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	lock, ok := s.locks[provider]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[provider] = lock
	}
	return lock
}

func (s *Store) indexPath(provider string) string {
	return filepath.Join(s.root, provider, "accounts.json")
}

func (s *Store) detailPath(provider, id string) string {
	return filepath.Join(s.root, provider, id+".json")
}

func (s *Store) loadIndex(provider string) (indexFile, error) {
	var idx indexFile
	err := fsutil.ReadJSONFile(s.indexPath(provider), &idx)
	if err != nil {
		if os.IsNotExist(err) {
			return indexFile{Version: 1}, nil
		}
		return indexFile{}, err
	}
	if idx.Version == 0 {
		idx.Version = 1
	}
	return idx, nil
}

func (s *Store) saveIndex(provider string, idx indexFile) error {
	idx.Version = 1
	return fsutil.WriteJSONAtomic(s.indexPath(provider), idx)
}

// List returns the provider's account summaries.
func (s *Store) List(provider string) ([]Summary, error) {
	idx, err := s.loadIndex(provider)
	if err != nil {
		return nil, err
	}
	return idx.Accounts, nil
}

// Get loads one detail record.
func (s *Store) Get(provider, id string) (Account, error) {
	var acct Account
	err := fsutil.ReadJSONFile(s.detailPath(provider, id), &acct)
	if err != nil {
		if os.IsNotExist(err) {
			return Account{}, fmt.Errorf("%w: %s/%s", ErrNotFound, provider, id)
		}
		return Account{}, err
	}
	return acct, nil
}

// Upsert stores a token bundle for (provider, login). An existing account
// with the same login is updated in place; otherwise a new account is
// created, which enforces the one-account-per-login invariant.
func (s *Store) Upsert(provider, login string, token authflow.TokenBundle) (Account, error) {
	lock := s.providerLock(provider)
	lock.Lock()
	defer lock.Unlock()

	idx, err := s.loadIndex(provider)
	if err != nil {
		return Account{}, err
	}

	for _, summary := range idx.Accounts {
		if summary.Login != login {
			continue
		}
		acct, err := s.Get(provider, summary.ID)
		if err != nil {
			return Account{}, err
		}
		acct.Token = token
		acct.LastUsedAt = time.Now().UTC()
		if err := s.writeDetailAndIndex(provider, acct, idx); err != nil {
			return Account{}, err
		}
		return acct, nil
	}

	acct := Account{
		ID:            uuid.NewString(),
		Provider:      provider,
		Login:         login,
		Token:         token,
		FingerprintID: OriginalFingerprintID,
		CreatedAt:     time.Now().UTC(),
	}
	idx.Accounts = append(idx.Accounts, acct.summary())
	if err := fsutil.WriteJSONAtomic(s.detailPath(provider, acct.ID), acct); err != nil {
		return Account{}, err
	}
	if err := s.saveIndex(provider, idx); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Save persists a mutated detail record and refreshes its index entry.
func (s *Store) Save(acct Account) error {
	lock := s.providerLock(acct.Provider)
	lock.Lock()
	defer lock.Unlock()

	idx, err := s.loadIndex(acct.Provider)
	if err != nil {
		return err
	}
	return s.writeDetailAndIndex(acct.Provider, acct, idx)
}

func (s *Store) writeDetailAndIndex(provider string, acct Account, idx indexFile) error {
	found := false
	for i, summary := range idx.Accounts {
		if summary.ID == acct.ID {
			idx.Accounts[i] = acct.summary()
			found = true
			break
		}
	}
	if !found {
		idx.Accounts = append(idx.Accounts, acct.summary())
	}
	if err := fsutil.WriteJSONAtomic(s.detailPath(provider, acct.ID), acct); err != nil {
		return err
	}
	return s.saveIndex(provider, idx)
}

// Delete removes both the detail record and the index entry. The index is
// rewritten first so a crash between the two steps leaves an orphan detail
// file rather than a dangling index entry.
func (s *Store) Delete(provider, id string) error {
	lock := s.providerLock(provider)
	lock.Lock()
	defer lock.Unlock()

	idx, err := s.loadIndex(provider)
	if err != nil {
		return err
	}
	kept := idx.Accounts[:0]
	found := false
	for _, summary := range idx.Accounts {
		if summary.ID == id {
			found = true
			continue
		}
		kept = append(kept, summary)
	}
	if !found {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, provider, id)
	}
	idx.Accounts = kept
	if idx.CurrentAccountID == id {
		idx.CurrentAccountID = ""
	}
	if err := s.saveIndex(provider, idx); err != nil {
		return err
	}
	if err := os.Remove(s.detailPath(provider, id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SetCurrent marks the provider's active account id.
func (s *Store) SetCurrent(provider, id string) error {
	lock := s.providerLock(provider)
	lock.Lock()
	defer lock.Unlock()

	idx, err := s.loadIndex(provider)
	if err != nil {
		return err
	}
	if id != "" {
		found := false
		for _, summary := range idx.Accounts {
			if summary.ID == id {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, provider, id)
		}
	}
	idx.CurrentAccountID = id
	return s.saveIndex(provider, idx)
}

// Current returns the provider's active account id, if any.
func (s *Store) Current(provider string) (string, error) {
	idx, err := s.loadIndex(provider)
	if err != nil {
		return "", err
	}
	return idx.CurrentAccountID, nil
}

// SetDisabled flips the disabled flag. Disabled accounts are excluded from
// automatic rotation but stay switchable manually.
func (s *Store) SetDisabled(provider, id string, disabled bool, reason string) error {
	acct, err := s.Get(provider, id)
	if err != nil {
		return err
	}
	acct.Disabled = disabled
	if disabled {
		acct.DisabledReason = reason
		acct.DisabledAt = time.Now().UTC()
	} else {
		acct.DisabledReason = ""
		acct.DisabledAt = time.Time{}
	}
	return s.Save(acct)
}

// RecordQuota stores a successful quota snapshot and clears any error.
func (s *Store) RecordQuota(provider, id string, quota authflow.Quota) error {
	acct, err := s.Get(provider, id)
	if err != nil {
		return err
	}
	acct.Quota = &quota
	acct.QuotaError = nil
	return s.Save(acct)
}

// RecordQuotaError stores a failed quota fetch without disabling the
// account.
func (s *Store) RecordQuotaError(provider, id string, fetchErr error) error {
	acct, err := s.Get(provider, id)
	if err != nil {
		return err
	}
	acct.QuotaError = &QuotaError{Message: fetchErr.Error(), OccurredAt: time.Now().UTC()}
	return s.Save(acct)
}

// ReassignFingerprint rebinds every account bound to fromID onto toID,
// across all providers. Used by fingerprint deletion.
func (s *Store) ReassignFingerprint(fromID, toID string) error {
	providers, err := s.providerDirs()
	if err != nil {
		return err
	}
	for _, provider := range providers {
		idx, err := s.loadIndex(provider)
		if err != nil {
			return err
		}
		for _, summary := range idx.Accounts {
			if summary.FingerprintID != fromID {
				continue
			}
			acct, err := s.Get(provider, summary.ID)
			if err != nil {
				return err
			}
			acct.FingerprintID = toID
			if err := s.Save(acct); err != nil {
				return err
			}
		}
	}
	return nil
}

// FindByRefreshToken locates the account whose bundle carries the given
// refresh token; used by follow-local-account resolution.
func (s *Store) FindByRefreshToken(provider, refreshToken string) (Account, bool, error) {
	if refreshToken == "" {
		return Account{}, false, nil
	}
	idx, err := s.loadIndex(provider)
	if err != nil {
		return Account{}, false, err
	}
	for _, summary := range idx.Accounts {
		acct, err := s.Get(provider, summary.ID)
		if err != nil {
			return Account{}, false, err
		}
		if acct.Token.RefreshToken == refreshToken {
			return acct, true, nil
		}
	}
	return Account{}, false, nil
}

func (s *Store) providerDirs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			out = append(out, entry.Name())
		}
	}
	return out, nil
}
