package common

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoaderOptions describes where a service looks for its configuration
type LoaderOptions struct {
	// ConfigFile is an explicit file path; when set, search paths are ignored.
	ConfigFile  string
	ConfigName  string
	SearchPaths []string
	EnvPrefix   string
	// Defaults are applied with SetDefault before reading the file.
	Defaults map[string]interface{}
	// EnvBindings maps configuration keys to additional unprefixed environment variables.
	EnvBindings map[string]string
}

// LoadConfig reads configuration from file and environment into out.
// A missing configuration file is not an error; defaults and environment apply.
func LoadConfig(opts LoaderOptions, out interface{}) (*viper.Viper, error) {
	v := viper.New()

	for key, value := range opts.Defaults {
		v.SetDefault(key, value)
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		name := opts.ConfigName
		if name == "" {
			name = "config"
		}
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		for _, path := range opts.SearchPaths {
			v.AddConfigPath(path)
		}
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, env := range opts.EnvBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return v, nil
}
