package switcher

import (
	"agent-switcher/internal/account"
	"agent-switcher/internal/instance"
	"agent-switcher/internal/targets"
)

// InstanceStatus is one instance with its liveness re-derived from the
// process table.
type InstanceStatus struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	UserDataDir   string `json:"userDataDir"`
	BindAccountID string `json:"bindAccountId,omitempty"`
	Running       bool   `json:"running"`
	Pid           int32  `json:"pid,omitempty"`
}

// ProviderStatus aggregates one provider's accounts and instances.
type ProviderStatus struct {
	Provider         string            `json:"provider"`
	Target           string            `json:"target"`
	Family           targets.Family    `json:"family"`
	CurrentAccountID string            `json:"currentAccountId,omitempty"`
	Accounts         []account.Summary `json:"accounts"`
	Default          InstanceStatus    `json:"default"`
	Instances        []InstanceStatus  `json:"instances"`
}

// Status reports the provider's accounts plus every instance's liveness.
// A recorded pid that no longer resolves to a matching live process is
// corrected in the store rather than reported as running.
func (s *Service) Status(provider string) (ProviderStatus, error) {
	target, err := s.resolveTarget(provider)
	if err != nil {
		return ProviderStatus{}, WrapExit(ExitUserError, err)
	}
	out := ProviderStatus{
		Provider: provider,
		Target:   target.Executable,
		Family:   target.Family,
	}
	out.Accounts, err = s.Accounts.List(provider)
	if err != nil {
		return out, WrapExit(ExitIOFailure, err)
	}
	out.CurrentAccountID, err = s.Accounts.Current(provider)
	if err != nil {
		return out, WrapExit(ExitIOFailure, err)
	}

	store := s.instances(provider)
	defaults, err := store.Defaults()
	if err != nil {
		return out, WrapExit(ExitIOFailure, err)
	}
	out.Default = InstanceStatus{
		ID:            instance.DefaultID,
		Name:          "default",
		UserDataDir:   target.DataRoot,
		BindAccountID: defaults.BindAccountID,
	}
	out.Default.Running, out.Default.Pid = s.liveness(store, instance.DefaultID, defaults.LastPid, target.DataRoot)

	insts, err := store.List()
	if err != nil {
		return out, WrapExit(ExitIOFailure, err)
	}
	for _, inst := range insts {
		st := InstanceStatus{
			ID:            inst.ID,
			Name:          inst.Name,
			UserDataDir:   inst.UserDataDir,
			BindAccountID: inst.BindAccountID,
		}
		st.Running, st.Pid = s.liveness(store, inst.ID, inst.LastPid, inst.UserDataDir)
		out.Instances = append(out.Instances, st)
	}
	return out, nil
}

func (s *Service) liveness(store *instance.Store, id string, pid int32, dataDir string) (bool, int32) {
	if pid == 0 {
		return false, 0
	}
	if s.alive(pid, dataDir) {
		return true, pid
	}
	// Stale record; correct it and keep going.
	_ = store.UpdatePid(id, 0)
	return false, 0
}
