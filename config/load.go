package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/clpipe/errors"
)

// SystemConfigPath is the lowest-precedence config file.
var SystemConfigPath = "/etc/clpipe/config.toml"

// Load resolves the full cascade. explicitFile may be empty.
//
// Precedence (lowest to highest): defaults < system < user < project < explicit file < env vars
func Load(explicitFile string) (*Config, error) {
	v, _, err := NewViper(explicitFile)
	if err != nil {
		return nil, err
	}
	return LoadWithViper(v)
}

// NewViper builds the viper instance behind Load and reports which files were merged.
func NewViper(explicitFile string) (*viper.Viper, []string, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindEnvVars(v)

	SetDefaults(v)

	loaded, err := mergeConfigFiles(v, ConfigPaths(explicitFile), explicitFile != "")
	if err != nil {
		return nil, loaded, err
	}
	return v, loaded, nil
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads defaults plus a single file, without the cascade or env vars
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if _, err := mergeConfigFiles(v, []string{configPath}, true); err != nil {
		return nil, err
	}
	return LoadWithViper(v)
}

// ConfigPaths lists the candidate files in precedence order, lowest first.
// Files that do not exist are skipped by the loader, except explicitFile.
func ConfigPaths(explicitFile string) []string {
	paths := []string{SystemConfigPath}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".clpipe", "config.toml"))
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, project)
	}
	if explicitFile != "" {
		paths = append(paths, explicitFile)
	}
	return paths
}

// findProjectConfig walks up from the working directory looking for clpipe.toml
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// mergeConfigFiles deep-merges each existing file into v's config layer, so env vars keep
// precedence over every file. With requireLast, a missing final path is an error.
func mergeConfigFiles(v *viper.Viper, paths []string, requireLast bool) ([]string, error) {
	var loaded []string

	for i, configPath := range paths {
		if _, err := os.Stat(configPath); err != nil {
			if os.IsNotExist(err) && !(requireLast && i == len(paths)-1) {
				continue
			}
			return loaded, errors.WithHint(
				errors.Wrapf(err, "config file %s", configPath),
				"pass an existing file to --config or remove the flag")
		}

		fileViper := viper.New()
		fileViper.SetConfigFile(configPath)
		if err := setConfigType(fileViper, configPath); err != nil {
			return loaded, err
		}
		if err := fileViper.ReadInConfig(); err != nil {
			return loaded, errors.Wrapf(err, "failed to read config file %s", configPath)
		}
		if err := v.MergeConfigMap(fileViper.AllSettings()); err != nil {
			return loaded, errors.Wrapf(err, "failed to merge config file %s", configPath)
		}
		loaded = append(loaded, configPath)
	}
	return loaded, nil
}

func setConfigType(v *viper.Viper, path string) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml", "":
		v.SetConfigType("toml")
	case ".json":
		v.SetConfigType("json")
	case ".yaml", ".yml":
		v.SetConfigType("yaml")
	default:
		return errors.WithHint(
			errors.NewInvalidConfigError("config file %s has unsupported extension %q", path, ext),
			"use .toml, .json or .yaml")
	}
	return nil
}

// ExpandPath replaces a leading "~" with the home directory.
func ExpandPath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
