package decision

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseTable decodes one YAML table definition. Unknown fields are rejected
// and tables read from files are active unless they say otherwise.
func ParseTable(data []byte) (*Table, error) {
	var doc struct {
		Table  `yaml:",inline"`
		Active *bool `yaml:"active"`
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty table definition")
		}
		return nil, fmt.Errorf("failed to parse table: %w", err)
	}

	t := doc.Table
	t.Active = doc.Active == nil || *doc.Active
	if err := ValidateTable(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadTableFile reads a YAML table. A missing key defaults to the file name.
func LoadTableFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read table file: %w", err)
	}

	t, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if t.Key == "" {
		t.Key = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return t, nil
}

// LoadTablesDir loads every *.yaml and *.yml file of dir in name order
func LoadTablesDir(dir string) ([]*Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	tables := make([]*Table, 0, len(names))
	keys := make(map[string]string, len(names))
	for _, name := range names {
		t, err := LoadTableFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if prev, dup := keys[t.Key]; dup {
			return nil, fmt.Errorf("table key %q defined in both %s and %s", t.Key, prev, name)
		}
		keys[t.Key] = name
		tables = append(tables, t)
	}
	return tables, nil
}
