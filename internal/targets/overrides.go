package targets

// Overrides adjusts a built-in target definition. Zero-value fields keep the
// built-in value.
type Overrides struct {
	DataDir     string `toml:"data_dir"`
	Executable  string `toml:"executable"`
	ProcessName string `toml:"process_name"`
}

func (o *Overrides) apply(t *Target) {
	if o.DataDir != "" {
		t.DataRoot = o.DataDir
	}
	if o.Executable != "" {
		t.Executable = o.Executable
	}
	if o.ProcessName != "" {
		t.ProcessName = o.ProcessName
	}
}
