package cli

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/roach88/solforge/internal/rustgen"
)

// EnvPrefix is prepended to configuration keys read from the environment,
// so rust.edition is SOLFORGE_RUST_EDITION.
const EnvPrefix = "SOLFORGE"

// Config is the solforge configuration. Values come from defaults, an
// optional config file and SOLFORGE_* variables, in increasing priority.
// Command line flags override all of them.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	// LockPath is the lock store compile records builds in. Empty disables
	// locking unless --lock is given.
	LockPath string `mapstructure:"lock_path"`

	Rust   RustConfig   `mapstructure:"rust"`
	Client ClientConfig `mapstructure:"client"`
	IDL    IDLConfig    `mapstructure:"idl"`
}

// RustConfig configures the generated program crate.
type RustConfig struct {
	CrateSuffix           string `mapstructure:"crate_suffix"`
	Edition               string `mapstructure:"edition"`
	PinocchioVersion      string `mapstructure:"pinocchio_version"`
	PinocchioTokenVersion string `mapstructure:"pinocchio_token_version"`
}

// ClientConfig configures the generated Go bindings.
type ClientConfig struct {
	Package string `mapstructure:"package"`
}

// IDLConfig configures the generated IDL.
type IDLConfig struct {
	Version string `mapstructure:"version"`
}

// RustOptions converts the crate settings for the renderer.
func (c RustConfig) RustOptions() rustgen.Options {
	return rustgen.Options{
		CrateSuffix:           c.CrateSuffix,
		Edition:               c.Edition,
		PinocchioVersion:      c.PinocchioVersion,
		PinocchioTokenVersion: c.PinocchioTokenVersion,
	}
}

func setDefaults(v *viper.Viper) {
	rust := rustgen.DefaultOptions()

	v.SetDefault("log_level", "info")
	v.SetDefault("lock_path", "")
	v.SetDefault("rust.crate_suffix", rust.CrateSuffix)
	v.SetDefault("rust.edition", rust.Edition)
	v.SetDefault("rust.pinocchio_version", rust.PinocchioVersion)
	v.SetDefault("rust.pinocchio_token_version", rust.PinocchioTokenVersion)
	v.SetDefault("client.package", "client")
	v.SetDefault("idl.version", "0.1.0")
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return &c
}

// LoadConfig reads the configuration. An empty path searches the working
// directory for solforge.yaml and tolerates its absence; an explicit path
// must exist.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("solforge")
		v.AddConfigPath(".")
	}

	// ReadInConfig only returns ConfigFileNotFoundError when it has to search
	// for the file, so an explicit path that is missing is still an error.
	err := v.ReadInConfig()
	if _, notFound := err.(viper.ConfigFileNotFoundError); err != nil && !notFound {
		return nil, errors.Wrap(err, "failed to read config")
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	return &c, nil
}
