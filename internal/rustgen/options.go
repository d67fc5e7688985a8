package rustgen

import "fmt"

// Options configures the rendered crate.
type Options struct {
	// CrateName defaults to the snake_case program name plus CrateSuffix.
	CrateName   string
	CrateSuffix string
	Edition     string

	PinocchioVersion      string
	PinocchioTokenVersion string
}

// DefaultOptions returns the crate settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		CrateSuffix:           "_pinocchio",
		Edition:               "2021",
		PinocchioVersion:      "0.9",
		PinocchioTokenVersion: "0.2.2",
	}
}

func (o Options) withDefaults(program string) Options {
	d := DefaultOptions()
	if o.CrateSuffix == "" {
		o.CrateSuffix = d.CrateSuffix
	}
	if o.Edition == "" {
		o.Edition = d.Edition
	}
	if o.PinocchioVersion == "" {
		o.PinocchioVersion = d.PinocchioVersion
	}
	if o.PinocchioTokenVersion == "" {
		o.PinocchioTokenVersion = d.PinocchioTokenVersion
	}
	if o.CrateName == "" {
		o.CrateName = snake(program) + o.CrateSuffix
	}
	return o
}

func cargoToml(o Options) string {
	return fmt.Sprintf(`# AUTO-GENERATED - DO NOT EDIT
[package]
name = %q
version = "0.1.0"
edition = %q
publish = false

[lib]
crate-type = ["cdylib", "lib"]

[dependencies]
pinocchio = { version = %q, default-features = false }
pinocchio-tkn = { version = %q }
`, o.CrateName, o.Edition, o.PinocchioVersion, o.PinocchioTokenVersion)
}
