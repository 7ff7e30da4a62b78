package configutil

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// layers lists name and its <name>.local.<ext> sibling, lowest priority
// first.
func layers(name string) []string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return []string{name, stem + ".local" + ext}
}

func readLayer[T any](path string) (T, bool, error) {
	var out T
	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	if len(strings.TrimSpace(string(contents))) == 0 {
		return out, false, nil
	}
	err = json5.Unmarshal(contents, &out)
	if err != nil {
		return out, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, true, nil
}

// ReadConfig reads a json5 file, `name` must carry its extension. A sibling
// <name>.local.<ext> is merged over it when present, non zero fields of the
// local file win. When neither file exists the error is os.ErrNotExist.
func ReadConfig[T any](name string) (T, error) {
	var out T
	found := false
	for _, path := range layers(name) {
		layer, ok, err := readLayer[T](path)
		if err != nil {
			return out, err
		}
		if !ok {
			continue
		}
		if !found {
			out = layer
			found = true
			continue
		}
		err = mergo.Merge(&out, layer, mergo.WithOverride)
		if err != nil {
			return out, fmt.Errorf("merge %s: %w", path, err)
		}
		slog.Info("merging config with local overrides", "local", path)
	}
	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

// PathFromEnv returns the value of the environment variable when set, def
// otherwise.
func PathFromEnv(variable, def string) string {
	path := strings.TrimSpace(os.Getenv(variable))
	if path == "" {
		return def
	}
	return path
}

// ReadRecursively is ReadConfig walking up from the working directory to the
// filesystem root until a directory holds the file.
func ReadRecursively[T any](name string) (T, error) {
	var out T
	current, err := os.Getwd()
	if err != nil {
		return out, err
	}

	for {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if err == nil {
			return config, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return out, err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return out, os.ErrNotExist
		}
		current = parent
	}
}
