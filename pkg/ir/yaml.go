package ir

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlModule is the on-disk fixture layout:
//
//	name: demo
//	functions:
//	  - name: diamond
//	    blocks:
//	      - {name: A, term: condbr, targets: [B, C]}
//	      - {name: B, term: br, targets: [D]}
//	      - {name: C, term: br, targets: [D]}
//	      - {name: D, term: ret}
type yamlModule struct {
	Name      string         `yaml:"name,omitempty"`
	Functions []yamlFunction `yaml:"functions"`
}

type yamlFunction struct {
	Name   string      `yaml:"name"`
	Blocks []yamlBlock `yaml:"blocks"`
}

type yamlBlock struct {
	Name    string     `yaml:"name"`
	Lines   []string   `yaml:"lines,omitempty"`
	Term    string     `yaml:"term,omitempty"`
	Targets []string   `yaml:"targets,omitempty"`
	Cases   []yamlCase `yaml:"cases,omitempty"`
	Default string     `yaml:"default,omitempty"`
}

type yamlCase struct {
	Value  string `yaml:"value"`
	Target string `yaml:"target"`
}

// ParseYAML decodes a module fixture.
func ParseYAML(data []byte) (*Module, error) {
	var doc yamlModule
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse module: %w", err)
	}

	m := &Module{Name: doc.Name}
	for _, yf := range doc.Functions {
		fn := &Function{Name: yf.Name}
		for _, yb := range yf.Blocks {
			b := &Block{Name: yb.Name, Lines: yb.Lines}
			if yb.Term != "" {
				kind, err := ParseTermKind(yb.Term)
				if err != nil {
					return nil, fmt.Errorf("function %s block %s: %w", yf.Name, yb.Name, err)
				}
				b.Term = &Terminator{
					Kind:    kind,
					Targets: yb.Targets,
					Default: yb.Default,
				}
				for _, c := range yb.Cases {
					b.Term.Cases = append(b.Term.Cases, Case{Value: c.Value, Target: c.Target})
				}
			}
			fn.Blocks = append(fn.Blocks, b)
		}
		m.Functions = append(m.Functions, fn)
	}
	return m, nil
}

// LoadYAML reads a module fixture from disk.
func LoadYAML(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	m, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Source = path
	if m.Name == "" {
		m.Name = path
	}
	return m, nil
}

// MarshalYAML encodes m in the fixture layout. Front-end output can be dumped
// this way and replayed without the original toolchain.
func MarshalYAML(m *Module) ([]byte, error) {
	doc := yamlModule{Name: m.Name}
	for _, fn := range m.Functions {
		yf := yamlFunction{Name: fn.Name}
		for _, b := range fn.Blocks {
			yb := yamlBlock{Name: b.Name, Lines: b.Lines}
			if b.Term != nil {
				yb.Term = b.Term.Kind.String()
				yb.Targets = b.Term.Targets
				yb.Default = b.Term.Default
				for _, c := range b.Term.Cases {
					yb.Cases = append(yb.Cases, yamlCase{Value: c.Value, Target: c.Target})
				}
			}
			yf.Blocks = append(yf.Blocks, yb)
		}
		doc.Functions = append(doc.Functions, yf)
	}
	return yaml.Marshal(doc)
}
