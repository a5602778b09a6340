package config

import (
	"fmt"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// fileKeys maps flag names to their paths in the configuration file.
var fileKeys = map[string]string{
	"verbose":        "verbose",
	"backend":        "backend",
	"path":           "path",
	"key":            "key",
	"namespace":      "namespace",
	"redis-addr":     "redis.address",
	"redis-password": "redis.password",
	"redis-db":       "redis.db",
	"s3-bucket":      "s3.bucket",
	"s3-endpoint":    "s3.endpoint",
	"listen":         "listen",
}

// loadConfigFile fills flags that were not set on the command line from the
// file named by --config, if any.
func loadConfigFile(flags *pflag.FlagSet) error {
	if ConfigFile == "" {
		return nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(ConfigFile), yaml.Parser()); err != nil {
		return fmt.Errorf("error loading config file %q: %w", ConfigFile, err)
	}

	for name, path := range fileKeys {
		if !k.Exists(path) {
			continue
		}
		flag := flags.Lookup(name)
		if flag == nil || flag.Changed {
			continue
		}
		if err := flag.Value.Set(k.String(path)); err != nil {
			return fmt.Errorf("invalid value for %s in %q: %w", path, ConfigFile, err)
		}
		logrus.WithField("flag", name).Debug("flag set from config file")
	}
	return nil
}
