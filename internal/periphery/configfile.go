package periphery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const configFilePermissions = 0o644

// Entry is one [periphery, parameter, value] triple of a config file.
type Entry struct {
	Periphery string
	Parameter string
	Value     float64
}

// MarshalJSON encodes e as a three-element array.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Periphery, e.Parameter, e.Value})
}

// UnmarshalJSON decodes a three-element [string, string, number] array.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("entry has %d elements, want 3", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.Periphery); err != nil {
		return fmt.Errorf("periphery name: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.Parameter); err != nil {
		return fmt.Errorf("parameter name: %w", err)
	}
	if bytes.Equal(bytes.TrimSpace(raw[2]), []byte("null")) {
		return fmt.Errorf("value of %s.%s is null", e.Periphery, e.Parameter)
	}
	if err := json.Unmarshal(raw[2], &e.Value); err != nil {
		return fmt.Errorf("value of %s.%s: %w", e.Periphery, e.Parameter, err)
	}
	return nil
}

// LoadEntries reads a config file.
func LoadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is operator-supplied configuration
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return entries, nil
}

// SortEntries orders entries by periphery, then parameter.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Periphery != entries[j].Periphery {
			return entries[i].Periphery < entries[j].Periphery
		}
		return entries[i].Parameter < entries[j].Parameter
	})
}

// EncodeEntries renders entries as a JSON array with one triple per
// line, in the given order:
//
//	[
//	["pantilt", "max_pan", 2450],
//	["pantilt", "max_tilt", 2300]
//	]
//
// An empty slice renders as [].
func EncodeEntries(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return []byte("[]\n"), nil
	}

	var buf bytes.Buffer
	buf.WriteString("[\n")
	for i, e := range entries {
		name, err := json.Marshal(e.Periphery)
		if err != nil {
			return nil, err
		}
		param, err := json.Marshal(e.Parameter)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding %s.%s: %w", e.Periphery, e.Parameter, err)
		}
		fmt.Fprintf(&buf, "[%s, %s, %s]", name, param, value)
		if i < len(entries)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("]\n")
	return buf.Bytes(), nil
}

// writeFileAtomic replaces path with data via a temp file in the same
// directory, so a reader never sees a half-written snapshot.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // No-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // Write error takes precedence
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, configFilePermissions); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
