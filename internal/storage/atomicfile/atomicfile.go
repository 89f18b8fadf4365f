// Package atomicfile replaces JSON files through a temp file and rename.
package atomicfile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WriteJSON encodes v with two-space indentation into path+".tmp" and
// renames it over path.
func WriteJSON(path string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode json")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create data dir")
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write temp file")
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "replace file")
	}

	return nil
}

// ReadJSON decodes path into v. It reports false without error when the
// file is absent or empty.
func ReadJSON(path string, v any) (bool, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, errors.Wrap(err, "read file")
	}

	if len(payload) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return false, errors.Wrap(err, "decode json")
	}

	return true, nil
}
