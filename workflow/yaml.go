package workflow

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Decode reads one YAML workflow definition. The result is not yet
// normalized or validated; callers run Normalize and Validate (Registry
// does the latter).
func Decode(r io.Reader) (*Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("workflow: decode: %w", err)
	}
	return &def, nil
}

// LoadFile reads, normalizes and validates a definition from path.
func LoadFile(path string, defaultMaxIterations int) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}
	defer f.Close()

	def, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("workflow: %s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	def.Normalize(defaultMaxIterations)
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("workflow: %s: %w", path, err)
	}
	return def, nil
}

// LoadDir loads every *.yaml and *.yml file under dir (non-recursive)
// in lexical order. Missing directories load as empty.
func LoadDir(dir string, defaultMaxIterations int) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("workflow: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	defs := make([]*Definition, 0, len(paths))
	for _, p := range paths {
		def, err := LoadFile(p, defaultMaxIterations)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadFS is LoadDir over an fs.FS, for embedded workflow bundles.
func LoadFS(fsys fs.FS, dir string, defaultMaxIterations int) ([]*Definition, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	defs := make([]*Definition, 0, len(names))
	for _, name := range names {
		f, err := fsys.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("workflow: %w", err)
		}
		def, err := Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("workflow: %s: %w", name, err)
		}
		if def.Name == "" {
			def.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		def.Normalize(defaultMaxIterations)
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("workflow: %s: %w", name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
