package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/xraph/foreman/workflow"
)

// ErrNoProject is returned by Find when no project file exists.
var ErrNoProject = errors.New("foreman: no project file found")

// DefaultFiles are the project file names probed by Find, in order.
var DefaultFiles = []string{"foreman.yaml", "foreman.yml", ".foreman.yaml", ".foreman.yml"}

// Find probes dir for a project file and returns the first match.
func Find(dir string) (string, error) {
	for _, name := range DefaultFiles {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", ErrNoProject
}

// Decode reads one project document from r. The result is not yet
// validated. An empty document decodes as an empty project.
func Decode(r io.Reader) (*Project, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Project
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return &Project{}, nil
		}
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &p, nil
}

// Load reads and validates the project file at path. Relative paths in
// the project resolve against the file's directory.
func Load(path string) (*Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	p.dir = dir

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return p, nil
}

// Definitions materializes every workflow definition the project names:
// WorkflowDirs in listed order first, inline definitions after. Each
// definition comes back normalized and validated.
func (p *Project) Definitions(defaultMaxIterations int) ([]*workflow.Definition, error) {
	var defs []*workflow.Definition
	for _, dir := range p.WorkflowDirs {
		loaded, err := workflow.LoadDir(p.Resolve(dir), defaultMaxIterations)
		if err != nil {
			return nil, err
		}
		defs = append(defs, loaded...)
	}
	for i := range p.Workflows {
		def := &p.Workflows[i]
		def.Normalize(defaultMaxIterations)
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
