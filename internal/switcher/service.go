// Package switcher performs the end-to-end account switch: resolve the
// effective account, freshen its token, stop the target, inject, relaunch.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"agent-switcher/internal/account"
	"agent-switcher/internal/authflow"
	"agent-switcher/internal/config"
	"agent-switcher/internal/fingerprint"
	"agent-switcher/internal/instance"
	"agent-switcher/internal/procutil"
	"agent-switcher/internal/targets"
	"agent-switcher/internal/vault"
)

// ErrNoAccount means no explicit binding, default binding, or follow-local
// match produced an account to switch to.
var ErrNoAccount = errors.New("no account resolved for this instance")

// Service wires the stores and injectors together. The function fields
// default to the real implementations; tests replace them.
type Service struct {
	Accounts     *account.Store
	Fingerprints *fingerprint.Store
	Cfg          config.Config
	Paths        config.Paths

	resolveTarget    func(provider string) (targets.Target, error)
	instances        func(provider string) *instance.Store
	ensureFresh      func(ctx context.Context, provider string, bundle authflow.TokenBundle) (authflow.TokenBundle, bool, error)
	alive            func(pid int32, dataDir string) bool
	terminate        func(ctx context.Context, pid int32) error
	launch           func(binary string, args []string) (int32, error)
	injectEditor     func(dbPath string, bundle authflow.TokenBundle) error
	injectVault      func(target targets.Target, dataRoot, login, token, userID string) error
	readLocalRefresh func(dbPath string) (string, bool, error)
}

func NewService(accounts *account.Store, fingerprints *fingerprint.Store, cfg config.Config, paths config.Paths) *Service {
	s := &Service{
		Accounts:     accounts,
		Fingerprints: fingerprints,
		Cfg:          cfg,
		Paths:        paths,
	}
	s.resolveTarget = func(provider string) (targets.Target, error) {
		return targets.Resolve(provider, cfg.TargetOverrides(provider))
	}
	// One store per provider so its in-process mutex actually serializes.
	var storeMu sync.Mutex
	stores := map[string]*instance.Store{}
	s.instances = func(provider string) *instance.Store {
		storeMu.Lock()
		defer storeMu.Unlock()
		if st, ok := stores[provider]; ok {
			return st
		}
		st := instance.NewStore(paths.RootDir, provider)
		stores[provider] = st
		return st
	}
	s.ensureFresh = func(ctx context.Context, provider string, bundle authflow.TokenBundle) (authflow.TokenBundle, bool, error) {
		prov, err := authflow.Lookup(provider)
		if err != nil {
			return bundle, false, err
		}
		return authflow.EnsureFresh(ctx, prov, bundle)
	}
	s.alive = procutil.Alive
	s.terminate = procutil.Terminate
	s.launch = procutil.Launch
	s.injectEditor = injectEditorToken
	s.injectVault = func(target targets.Target, dataRoot, login, token, userID string) error {
		inj := &vault.Injector{
			Codec: vault.NewCodec(vault.NewPlatformKeySource(dataRoot)),
			IsRunning: func(string) (int32, bool) {
				return procutil.FindByDataDir(dataRoot)
			},
		}
		return inj.Inject(dataRoot, login, token, userID)
	}
	s.readLocalRefresh = readLocalRefreshToken
	return s
}

// Instances exposes the per-provider instance store.
func (s *Service) Instances(provider string) *instance.Store {
	return s.instances(provider)
}

// SwitchResult reports what the switch accomplished.
type SwitchResult struct {
	Provider   string `json:"provider"`
	InstanceID string `json:"instanceId"`
	AccountID  string `json:"accountId"`
	Login      string `json:"login"`
	Rotated    bool   `json:"tokenRotated"`
	Stopped    bool   `json:"stoppedPid,omitempty"`
	Launched   bool   `json:"launched"`
	Pid        int32  `json:"pid,omitempty"`
}

// Switch makes accountID's credentials active for one instance of the
// provider's target application. Empty instanceID means the default
// pseudo-instance; empty accountID falls back to the instance binding and
// the follow-local rule. A launch failure after successful injection is
// partial success: the injected state stands and the error carries
// ExitPartial.
func (s *Service) Switch(ctx context.Context, provider, instanceID, accountID string) (SwitchResult, error) {
	target, err := s.resolveTarget(provider)
	if err != nil {
		return SwitchResult{}, WrapExit(ExitUserError, err)
	}
	store := s.instances(provider)

	dataDir, extraArgs, lastPid, err := s.resolveInstance(store, target, instanceID)
	if err != nil {
		return SwitchResult{}, WrapExit(ExitUserError, err)
	}
	if instanceID == "" {
		instanceID = instance.DefaultID
	}

	acct, err := s.resolveAccount(store, target, provider, instanceID, accountID)
	if err != nil {
		return SwitchResult{}, err
	}
	if acct.Disabled {
		return SwitchResult{}, WrapExit(ExitUserError, fmt.Errorf("account %s is disabled: %s", acct.Login, acct.DisabledReason))
	}
	result := SwitchResult{Provider: provider, InstanceID: instanceID, AccountID: acct.ID, Login: acct.Login}

	// Freshen and persist before touching the target; a refresh failure
	// must leave the installation untouched.
	bundle, rotated, err := s.ensureFresh(ctx, provider, acct.Token)
	if err != nil {
		return result, WrapExit(ExitAuthFailure, err)
	}
	result.Rotated = rotated
	if rotated {
		acct.Token = bundle
		if err := s.Accounts.Save(acct); err != nil {
			return result, WrapExit(ExitIOFailure, err)
		}
	}

	if lastPid != 0 && s.alive(lastPid, dataDir) {
		slog.Info("stopping target", "provider", provider, "pid", lastPid)
		if err := s.terminate(ctx, lastPid); err != nil {
			return result, WrapExit(ExitIOFailure, fmt.Errorf("stop pid %d: %w", lastPid, err))
		}
		result.Stopped = true
	}

	if err := s.inject(target, dataDir, acct, bundle); err != nil {
		return result, WrapExit(ExitIOFailure, err)
	}
	if err := s.applyFingerprint(dataDir, acct); err != nil {
		return result, WrapExit(ExitIOFailure, err)
	}
	if err := s.Accounts.SetCurrent(provider, acct.ID); err != nil {
		return result, WrapExit(ExitIOFailure, err)
	}

	args := []string{"--user-data-dir=" + dataDir}
	args = append(args, splitArgs(extraArgs)...)
	pid, err := s.launch(target.Executable, args)
	if err != nil {
		// Injection already succeeded; report partial success, do not
		// roll anything back.
		return result, WrapExit(ExitPartial, fmt.Errorf("launch %s: %w", target.Executable, err))
	}
	result.Launched = true
	result.Pid = pid
	if err := store.UpdatePid(instanceID, pid); err != nil {
		return result, WrapExit(ExitIOFailure, err)
	}
	slog.Info("switch complete", "provider", provider, "instance", instanceID, "account", acct.Login, "pid", pid)
	return result, nil
}

func (s *Service) resolveInstance(store *instance.Store, target targets.Target, instanceID string) (dataDir, extraArgs string, lastPid int32, err error) {
	if instanceID == "" || instanceID == instance.DefaultID {
		defaults, err := store.Defaults()
		if err != nil {
			return "", "", 0, err
		}
		return target.DataRoot, defaults.ExtraArgs, defaults.LastPid, nil
	}
	inst, err := store.Get(instanceID)
	if err != nil {
		return "", "", 0, err
	}
	return inst.UserDataDir, inst.ExtraArgs, inst.LastPid, nil
}

// resolveAccount picks the effective account: explicit request, then the
// instance binding, then (for the default instance with follow-local) the
// account whose refresh token matches what the live installation holds.
func (s *Service) resolveAccount(store *instance.Store, target targets.Target, provider, instanceID, accountID string) (account.Account, error) {
	if accountID != "" {
		acct, err := s.Accounts.Get(provider, accountID)
		if err != nil {
			return account.Account{}, WrapExit(ExitUserError, err)
		}
		return acct, nil
	}
	if instanceID == instance.DefaultID {
		defaults, err := store.Defaults()
		if err != nil {
			return account.Account{}, WrapExit(ExitIOFailure, err)
		}
		if defaults.BindAccountID != "" {
			acct, err := s.Accounts.Get(provider, defaults.BindAccountID)
			if err != nil {
				return account.Account{}, WrapExit(ExitUserError, err)
			}
			return acct, nil
		}
		if defaults.FollowLocalAccount && target.Family == targets.FamilyEditor {
			token, ok, err := s.readLocalRefresh(targets.StateDBPath(target.DataRoot))
			if err != nil {
				return account.Account{}, WrapExit(ExitIOFailure, err)
			}
			if ok {
				acct, found, err := s.Accounts.FindByRefreshToken(provider, token)
				if err != nil {
					return account.Account{}, WrapExit(ExitIOFailure, err)
				}
				if found {
					return acct, nil
				}
			}
		}
		return account.Account{}, WrapExit(ExitUserError, ErrNoAccount)
	}
	inst, err := store.Get(instanceID)
	if err != nil {
		return account.Account{}, WrapExit(ExitUserError, err)
	}
	if inst.BindAccountID == "" {
		return account.Account{}, WrapExit(ExitUserError, ErrNoAccount)
	}
	acct, err := s.Accounts.Get(provider, inst.BindAccountID)
	if err != nil {
		return account.Account{}, WrapExit(ExitUserError, err)
	}
	return acct, nil
}

func (s *Service) inject(target targets.Target, dataDir string, acct account.Account, bundle authflow.TokenBundle) error {
	switch target.Family {
	case targets.FamilyVault:
		return s.injectVault(target, dataDir, acct.Login, bundle.AccessToken, bundle.AccountID)
	default:
		return s.injectEditor(targets.StateDBPath(dataDir), bundle)
	}
}

// applyFingerprint writes the account's bound fingerprint (or the current
// selection) into the target's identity storage.
func (s *Service) applyFingerprint(dataDir string, acct account.Account) error {
	if s.Fingerprints == nil {
		return nil
	}
	var fp fingerprint.Fingerprint
	var err error
	if acct.FingerprintID != "" {
		fp, err = s.Fingerprints.Get(acct.FingerprintID)
		if errors.Is(err, fingerprint.ErrNotFound) {
			fp, err = s.Fingerprints.Get(fingerprint.OriginalID)
		}
	} else {
		fp, err = s.Fingerprints.Current()
	}
	if err != nil {
		return err
	}
	return fingerprint.ApplyProfile(targets.StoragePath(dataDir), fp.Profile)
}

// Start launches an instance without changing its credentials. No bound
// account means nothing is injected.
func (s *Service) Start(ctx context.Context, provider, instanceID string) (SwitchResult, error) {
	target, err := s.resolveTarget(provider)
	if err != nil {
		return SwitchResult{}, WrapExit(ExitUserError, err)
	}
	store := s.instances(provider)
	dataDir, extraArgs, lastPid, err := s.resolveInstance(store, target, instanceID)
	if err != nil {
		return SwitchResult{}, WrapExit(ExitUserError, err)
	}
	if instanceID == "" {
		instanceID = instance.DefaultID
	}

	if _, err := s.resolveAccount(store, target, provider, instanceID, ""); err == nil {
		return s.Switch(ctx, provider, instanceID, "")
	} else if !errors.Is(err, ErrNoAccount) {
		return SwitchResult{}, err
	}

	result := SwitchResult{Provider: provider, InstanceID: instanceID}
	if lastPid != 0 && s.alive(lastPid, dataDir) {
		result.Launched = true
		result.Pid = lastPid
		return result, nil
	}
	args := []string{"--user-data-dir=" + dataDir}
	args = append(args, splitArgs(extraArgs)...)
	pid, err := s.launch(target.Executable, args)
	if err != nil {
		return result, WrapExit(ExitPartial, fmt.Errorf("launch %s: %w", target.Executable, err))
	}
	result.Launched = true
	result.Pid = pid
	if err := store.UpdatePid(instanceID, pid); err != nil {
		return result, WrapExit(ExitIOFailure, err)
	}
	return result, nil
}

// Stop terminates the recorded process of an instance if it is still alive.
func (s *Service) Stop(ctx context.Context, provider, instanceID string) (bool, error) {
	target, err := s.resolveTarget(provider)
	if err != nil {
		return false, WrapExit(ExitUserError, err)
	}
	store := s.instances(provider)
	dataDir, _, lastPid, err := s.resolveInstance(store, target, instanceID)
	if err != nil {
		return false, WrapExit(ExitUserError, err)
	}
	if instanceID == "" {
		instanceID = instance.DefaultID
	}
	if lastPid == 0 || !s.alive(lastPid, dataDir) {
		// Correct a stale record lazily.
		if lastPid != 0 {
			if err := store.UpdatePid(instanceID, 0); err != nil {
				return false, WrapExit(ExitIOFailure, err)
			}
		}
		return false, nil
	}
	if err := s.terminate(ctx, lastPid); err != nil {
		return false, WrapExit(ExitIOFailure, err)
	}
	if err := store.UpdatePid(instanceID, 0); err != nil {
		return true, WrapExit(ExitIOFailure, err)
	}
	return true, nil
}

// RefreshQuota fetches and records the usage snapshot for one account.
// Fetch failures are recorded on the account, not fatal.
func (s *Service) RefreshQuota(ctx context.Context, provider, accountID string) (authflow.Quota, error) {
	prov, err := authflow.Lookup(provider)
	if err != nil {
		return authflow.Quota{}, WrapExit(ExitUserError, err)
	}
	acct, err := s.Accounts.Get(provider, accountID)
	if err != nil {
		return authflow.Quota{}, WrapExit(ExitUserError, err)
	}
	bundle, rotated, err := authflow.EnsureFresh(ctx, prov, acct.Token)
	if err != nil {
		return authflow.Quota{}, WrapExit(ExitAuthFailure, err)
	}
	if rotated {
		acct.Token = bundle
		if err := s.Accounts.Save(acct); err != nil {
			return authflow.Quota{}, WrapExit(ExitIOFailure, err)
		}
	}
	quota, err := prov.FetchQuota(ctx, bundle)
	if err != nil {
		if errors.Is(err, authflow.ErrQuotaUnsupported) {
			return authflow.Quota{}, err
		}
		if recErr := s.Accounts.RecordQuotaError(provider, accountID, err); recErr != nil {
			return authflow.Quota{}, WrapExit(ExitIOFailure, recErr)
		}
		return authflow.Quota{}, WrapExit(ExitPartial, err)
	}
	if quota.FetchedAt.IsZero() {
		quota.FetchedAt = time.Now().UTC()
	}
	if err := s.Accounts.RecordQuota(provider, accountID, quota); err != nil {
		return authflow.Quota{}, WrapExit(ExitIOFailure, err)
	}
	return quota, nil
}

// Capture imports the credential currently embedded in the provider's live
// installation as a new (or updated) account.
func (s *Service) Capture(provider, login string) (account.Account, error) {
	target, err := s.resolveTarget(provider)
	if err != nil {
		return account.Account{}, WrapExit(ExitUserError, err)
	}
	if target.Family != targets.FamilyEditor {
		return account.Account{}, WrapExit(ExitUserError, fmt.Errorf("capture is not supported for %s targets", target.Family))
	}
	token, ok, err := s.readLocalRefresh(targets.StateDBPath(target.DataRoot))
	if err != nil {
		return account.Account{}, WrapExit(ExitIOFailure, err)
	}
	if !ok {
		return account.Account{}, WrapExit(ExitUserError, fmt.Errorf("no credential found in the local %s installation", provider))
	}
	bundle := authflow.TokenBundle{RefreshToken: token}.Normalize()
	acct, err := s.Accounts.Upsert(provider, login, bundle)
	if err != nil {
		return account.Account{}, WrapExit(ExitIOFailure, err)
	}
	return acct, nil
}

func splitArgs(args string) []string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
