package fixture

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Tree is the YAML layout of a fixture hierarchy.
type Tree struct {
	Categories []Category `yaml:"categories"`
}

type Category struct {
	ID            string        `yaml:"id"`
	Name          string        `yaml:"name"`
	Scope         int           `yaml:"scope"`
	Database      string        `yaml:"database"`
	SubCategories []SubCategory `yaml:"subcategories"`
}

type SubCategory struct {
	Name       string `yaml:"name"`
	Activities []Node `yaml:"activities"`
}

// Node is an activity or a selection. Options of an activity are its
// selection-1 list; options of a selection-1 node are its selection-2 list.
// A node without options is a leaf: its factor applies and the remaining
// levels are Not Applicable. A leaf with an empty factor has none available.
type Node struct {
	Name          string `yaml:"name"`
	Factor        string `yaml:"factor,omitempty"`
	SubcategoryID string `yaml:"subcategory_id,omitempty"`
	Options       []Node `yaml:"options,omitempty"`
}

// ParseTree decodes a YAML fixture.
func ParseTree(b []byte) (*Tree, error) {
	var t Tree
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	seen := make(map[string]bool)
	for _, c := range t.Categories {
		if c.ID == "" {
			return nil, fmt.Errorf("parse fixture: category %q has no id", c.Name)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("parse fixture: duplicate category id %q", c.ID)
		}
		seen[c.ID] = true
	}
	return &t, nil
}

// LoadTree reads a YAML fixture file.
func LoadTree(path string) (*Tree, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTree(b)
}

// DefaultTree is the built-in demo hierarchy.
func DefaultTree() *Tree {
	t, err := ParseTree(defaultYAML)
	if err != nil {
		panic(err)
	}
	return t
}
