package model

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding the config file,
// for example EVALUATOR_SERVICE_LISTEN.
const EnvPrefix = "EVALUATOR"

// NewViper returns a viper instance reading overrides from EVALUATOR_* variables.
// Keys follow the YAML layout, service.max_concurrency maps to
// EVALUATOR_SERVICE_MAX_CONCURRENCY.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Override copies every key set in v (flag or environment) over c.
func (c *Config) Override(v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	if v.IsSet("service.verbose") {
		b := v.GetBool("service.verbose")
		c.Service.Verbose = &b
	}
	str("service.listen", &c.Service.Listen)
	if v.IsSet("service.max_concurrency") {
		if n := v.GetInt("service.max_concurrency"); n > 0 {
			c.Service.MaxConcurrency = n
		}
	}
	str("service.kill_grace", &c.Service.KillGrace)
	str("service.retention", &c.Service.Retention)
	str("service.sweep", &c.Service.Sweep)

	str("storage.root", &c.Storage.Root)
	str("storage.evaluate_dir", &c.Storage.EvaluateDir)
	str("storage.output_dir", &c.Storage.OutputDir)
	str("storage.dataset_dir", &c.Storage.DatasetDir)

	str("store.driver", &c.Store.Driver)
	str("store.path", &c.Store.Path)
	str("store.uri", &c.Store.URI)
	str("store.database", &c.Store.Database)
}

// IsVerbose reports the effective verbosity.
func (s Service) IsVerbose() bool {
	return s.Verbose != nil && *s.Verbose
}
