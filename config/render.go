package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teranos/clpipe/errors"
)

// DateRanLayout matches the stamp older clpipe run records carry ("03:04PM on March 05, 2024").
const DateRanLayout = "03:04PM on January 02, 2006"

// Formats lists what Render accepts.
var Formats = []string{"toml", "json", "yaml"}

// Render marshals cfg in the requested format.
func Render(cfg *Config, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "toml", "":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to TOML")
		}
		return data, nil
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to JSON")
		}
		return append(data, '\n'), nil
	case "yaml", "yml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to YAML")
		}
		return data, nil
	}
	return nil, errors.WithHint(
		errors.NewInvalidRequestError("unsupported format: %s", format),
		"supported: "+strings.Join(Formats, ", "))
}

// Dump writes cfg as TOML to path with DateRan stamped, recording the settings a
// submission actually used. cfg itself is not modified.
func Dump(cfg *Config, path string, now time.Time) error {
	stamped := *cfg
	stamped.DateRan = now.Format(DateRanLayout)

	data, err := Render(&stamped, "toml")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	if err := os.WriteFile(path, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write config dump %s", path)
	}
	return nil
}
