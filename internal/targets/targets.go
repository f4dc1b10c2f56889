// Package targets resolves where each provider's target application lives on
// the local machine: its data root, state database, and launch command.
package targets

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Family selects which injection mechanism a target uses.
type Family string

const (
	// FamilyEditor targets keep their OAuth state as a binary record in the
	// ItemTable of state.vscdb; the state patcher serves them.
	FamilyEditor Family = "editor"
	// FamilyVault targets keep extension sessions as an encrypted JSON
	// array; the secret-store injector serves them.
	FamilyVault Family = "vault"
)

// Target describes one installed application.
type Target struct {
	Provider string
	Family   Family
	// AppDirName is the directory under the platform config root.
	AppDirName string
	// ProcessName matches the running binary in the process table.
	ProcessName string
	// Executable is the launch command; resolved via PATH when relative.
	Executable string
	// DataRoot is the default installation's user-data directory.
	DataRoot string
}

// StateDBPath returns the key-value database under a data directory.
func StateDBPath(dataDir string) string {
	return filepath.Join(dataDir, "User", "globalStorage", "state.vscdb")
}

// StoragePath returns the identity storage file under a data directory.
func StoragePath(dataDir string) string {
	return filepath.Join(dataDir, "User", "globalStorage", "storage.json")
}

// LocalStatePath returns the sidecar holding the wrapped per-install key
// (scheme A platforms).
func LocalStatePath(dataDir string) string {
	return filepath.Join(dataDir, "Local State")
}

type targetSpec struct {
	family      Family
	appDirName  string
	processName string
	executable  string
}

// Built-in knowledge of each provider's host application. The config file
// can override any of these per provider.
var builtins = map[string]targetSpec{
	"codex":    {family: FamilyEditor, appDirName: "Aide", processName: "aide", executable: "aide"},
	"cursor":   {family: FamilyEditor, appDirName: "Cursor", processName: "cursor", executable: "cursor"},
	"windsurf": {family: FamilyEditor, appDirName: "Windsurf", processName: "windsurf", executable: "windsurf"},
	"copilot":  {family: FamilyEditor, appDirName: "Code", processName: "code", executable: "code"},
	"augment":  {family: FamilyVault, appDirName: "Code", processName: "code", executable: "code"},
}

// Resolve returns the target for a provider, applying any override from cfg
// (which may be nil).
func Resolve(provider string, cfg *Overrides) (Target, error) {
	spec, ok := builtins[provider]
	if !ok {
		return Target{}, fmt.Errorf("no target application known for provider %q", provider)
	}
	t := Target{
		Provider:    provider,
		Family:      spec.family,
		AppDirName:  spec.appDirName,
		ProcessName: spec.processName,
		Executable:  spec.executable,
	}
	root, err := configRoot()
	if err != nil {
		return Target{}, err
	}
	t.DataRoot = filepath.Join(root, t.AppDirName)
	if cfg != nil {
		cfg.apply(&t)
	}
	return t, nil
}

// configRoot is the platform-conventional base for application data.
// AGENT_SWITCHER_TARGET_ROOT overrides it, which tests and portable installs
// rely on.
func configRoot() (string, error) {
	if v := os.Getenv("AGENT_SWITCHER_TARGET_ROOT"); v != "" {
		return v, nil
	}
	switch runtime.GOOS {
	case "windows":
		if v := os.Getenv("APPDATA"); v != "" {
			return v, nil
		}
		return "", fmt.Errorf("APPDATA is not set")
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	default:
		if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
			return v, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config"), nil
	}
}
