package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Limits on what a config layer or environment override may contain. A full
// rulenet layer is a few hundred bytes nested four levels deep
// (linking.prototypes.cache.max_size), so anything far beyond that is not a
// config layer.
const (
	maxLayerSize  = 1 << 20
	maxLayerDepth = 8
	maxEnvLen     = 4096
	maxPathLen    = 4096
)

// validateLayerPath accepts .json paths. Relative paths must resolve inside
// the working directory.
func validateLayerPath(path string) error {
	if path == "" {
		return errors.New("empty config layer path")
	}
	if len(path) > maxPathLen {
		return fmt.Errorf("config layer path is %d bytes, limit %d", len(path), maxPathLen)
	}
	if filepath.Ext(path) != ".json" {
		return fmt.Errorf("config layer %s is not a .json file", path)
	}
	if filepath.IsAbs(path) {
		return nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	rel, err := filepath.Rel(cwd, filepath.Join(cwd, path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("config layer %s is outside the working directory", path)
	}
	return nil
}

// readLayer reads one config layer file.
func readLayer(path string) ([]byte, error) {
	if err := validateLayerPath(path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config layer: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config layer %s is not a regular file", path)
	}
	if info.Size() > maxLayerSize {
		return nil, fmt.Errorf("config layer %s is %d bytes, limit %d", path, info.Size(), maxLayerSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config layer: %w", err)
	}
	return data, nil
}

// saveLayer writes a config layer readable only by its owner.
func saveLayer(path string, data []byte) error {
	if err := validateLayerPath(path); err != nil {
		return err
	}
	if len(data) > maxLayerSize {
		return fmt.Errorf("config layer is %d bytes, limit %d", len(data), maxLayerSize)
	}
	return os.WriteFile(path, data, 0o600)
}

// validateEnvValue rejects RULENET_* values that are oversized or carry a
// NUL byte.
func validateEnvValue(key, value string) error {
	if len(value) > maxEnvLen {
		return fmt.Errorf("%s is %d bytes, limit %d", key, len(value), maxEnvLen)
	}
	if strings.IndexByte(value, 0) >= 0 {
		return fmt.Errorf("%s contains a NUL byte", key)
	}
	return nil
}

// checkLayerDepth bounds object and array nesting before a layer is decoded.
func checkLayerDepth(data []byte) error {
	depth := 0
	inString, escaped := false, false

	for _, b := range data {
		switch {
		case escaped:
			escaped = false
		case inString:
			switch b {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
		case b == '"':
			inString = true
		case b == '{' || b == '[':
			depth++
			if depth > maxLayerDepth {
				return fmt.Errorf("config layer nests deeper than %d levels", maxLayerDepth)
			}
		case b == '}' || b == ']':
			depth--
			if depth < 0 {
				return errors.New("config layer has unbalanced brackets")
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("config layer has %d unclosed brackets", depth)
	}
	return nil
}
