// Package config resolves the settings of the vaulta command.
//
// Values come, highest precedence first, from command-line flags, VAULTA_*
// environment variables, VAULTA_* entries of a .env file in the working
// directory, a vaulta.yaml file and built-in defaults. The file is
// taken from --config when given, otherwise searched for in the user config
// directory and the working directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Output formats understood by the command.
const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Config is the resolved configuration.
type Config struct {
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	APIToken   string        `mapstructure:"api_token" yaml:"api_token,omitempty"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	LogLevel   string        `mapstructure:"log_level" yaml:"log_level"`
	Output     string        `mapstructure:"output" yaml:"output"`
}

// Defaults returns the value of every key when nothing else sets it.
func Defaults() map[string]any {
	return map[string]any{
		"base_url":    "",
		"api_token":   "",
		"timeout":     30 * time.Second,
		"max_retries": 3,
		"log_level":   "warn",
		"output":      OutputJSON,
	}
}

// Flags maps flag names to the config keys they override.
var Flags = map[string]string{
	"base-url":    "base_url",
	"token":       "api_token",
	"timeout":     "timeout",
	"max-retries": "max_retries",
	"log-level":   "log_level",
	"output":      "output",
}

// Path returns the per-user location of vaulta.yaml.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not get user config directory: %w", err)
	}

	return filepath.Join(dir, "vaulta", "vaulta.yaml"), nil
}

// Load resolves the configuration for cmd. A non-empty file must exist; the
// search locations are optional.
func Load(cmd *cobra.Command, file string) (Config, error) {
	var c Config
	v := viper.New()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetConfigName("vaulta")
	v.SetConfigType("yaml")

	if file != "" {
		v.SetConfigFile(file)
	} else {
		if p, err := Path(); err == nil {
			v.AddConfigPath(filepath.Dir(p))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok {
			return c, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := mergeDotEnv(v, ".env"); err != nil {
		return c, err
	}

	v.SetEnvPrefix("vaulta")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for name, key := range Flags {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return c, fmt.Errorf("binding flag %s: %w", name, err)
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decoding config: %w", err)
	}

	return c, nil
}

// mergeDotEnv layers the VAULTA_* entries of path over the config file. A
// missing file is ignored.
func mergeDotEnv(v *viper.Viper, path string) error {
	entries, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	values := map[string]any{}
	for k, val := range entries {
		key, ok := strings.CutPrefix(k, "VAULTA_")
		if !ok {
			continue
		}
		values[strings.ToLower(key)] = val
	}

	if len(values) == 0 {
		return nil
	}

	return v.MergeConfigMap(values)
}

// Validate checks the values that do not depend on the command being run.
func (c Config) Validate() error {
	var errs []error

	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("max_retries must not be negative"))
	}
	if c.Output != OutputJSON && c.Output != OutputYAML {
		errs = append(errs, fmt.Errorf("output must be %q or %q, got %q", OutputJSON, OutputYAML, c.Output))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("log_level: %w", err)
	}

	return l, nil
}

// Redacted returns c with the token masked, for display.
func (c Config) Redacted() Config {
	if c.APIToken != "" {
		c.APIToken = "********"
	}

	return c
}

// Write stores c as YAML at path, creating parent directories. The file is
// private to the user since it may hold a token.
func Write(c Config, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", filepath.Dir(path), err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}
