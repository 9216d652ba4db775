// Package repoconfig reads the optional per-repository configuration file
// from a checked-out tree.
//
// The file is a placeholder: recognized keys are acknowledged with a warning
// but have no behavioral effect yet. Nothing in here can fail a build.
package repoconfig

import (
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the conventional per-repository config file name.
const DefaultFileName = "gfc.yaml"

// recognizedKeys are acknowledged but not yet enforced.
var recognizedKeys = []string{"secrets", "volumes", "certs"}

// Inspect loads the config file named fileName from dir, if present.
//
// An absent file is a no-op. A malformed file is logged and treated as
// absent. Recognized top-level keys each produce a warning that the feature
// is not enforced yet.
func Inspect(dir, fileName string, logger *slog.Logger) {
	path := filepath.Join(dir, fileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("repo config unreadable, ignoring", "file", fileName, "error", err)
		}
		return
	}

	var cfg map[string]any
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Warn("repo config malformed, ignoring", "file", fileName, "error", err)
		return
	}

	for _, key := range recognizedKeys {
		if _, ok := cfg[key]; ok {
			logger.Warn("repo config key recognized but not enforced", "file", fileName, "key", key)
		}
	}
}
