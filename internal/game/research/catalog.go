package research

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

const catalogSchemaURL = "research_catalog.schema.json"

const catalogSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["researches"],
  "additionalProperties": false,
  "properties": {
    "researches": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "points"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "points": {"type": "integer", "minimum": 1},
          "requires": {"type": "array", "items": {"type": "string"}, "uniqueItems": true}
        }
      }
    }
  }
}`

var compiledCatalogSchema = jsonschema.MustCompileString(catalogSchemaURL, catalogSchema)

// Research is the static descriptor of one research item.
type Research struct {
	Type         ResearchType
	NeededPoints int32
	Requires     []ResearchType
}

// CanBeResearched reports whether every prerequisite is in done.
func (r *Research) CanBeResearched(done []ResearchType) bool {
	for _, req := range r.Requires {
		if !contains(done, req) {
			return false
		}
	}
	return true
}

// Catalog holds every research descriptor by type.
type Catalog struct {
	byType map[ResearchType]*Research
}

type catalogFile struct {
	Researches []struct {
		Name     string   `yaml:"name"`
		Points   int32    `yaml:"points"`
		Requires []string `yaml:"requires"`
	} `yaml:"researches"`
}

// DefaultCatalog returns the catalog shipped with the server.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic("embedded research catalog is invalid: " + err.Error())
	}
	return c
}

// LoadCatalog reads a YAML catalog from path. An empty path yields the default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("research catalog: %w", err)
	}
	c, err := ParseCatalog(raw)
	if err != nil {
		return nil, fmt.Errorf("research catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog validates raw YAML against the catalog schema and resolves names.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	// The schema validator expects JSON-shaped values.
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}
	var generic any
	if err := json.Unmarshal(js, &generic); err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}
	if err := compiledCatalogSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{byType: make(map[ResearchType]*Research, len(file.Researches))}
	for _, entry := range file.Researches {
		rt, err := ParseResearchType(entry.Name)
		if err != nil {
			return nil, err
		}
		if _, dup := c.byType[rt]; dup {
			return nil, fmt.Errorf("duplicate research %s", rt)
		}
		r := &Research{Type: rt, NeededPoints: entry.Points}
		for _, name := range entry.Requires {
			req, err := ParseResearchType(name)
			if err != nil {
				return nil, fmt.Errorf("%s requires: %w", rt, err)
			}
			r.Requires = append(r.Requires, req)
		}
		c.byType[rt] = r
	}

	for _, r := range c.byType {
		for _, req := range r.Requires {
			if _, ok := c.byType[req]; !ok {
				return nil, fmt.Errorf("%s requires %s which is not in the catalog", r.Type, req)
			}
		}
	}
	if err := c.checkAcyclic(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) checkAcyclic() error {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[ResearchType]int, len(c.byType))
	var visit func(rt ResearchType) error
	visit = func(rt ResearchType) error {
		switch state[rt] {
		case visiting:
			return fmt.Errorf("research prerequisite cycle through %s", rt)
		case visited:
			return nil
		}
		state[rt] = visiting
		for _, req := range c.byType[rt].Requires {
			if err := visit(req); err != nil {
				return err
			}
		}
		state[rt] = visited
		return nil
	}
	for rt := range c.byType {
		if err := visit(rt); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the descriptor of rt, or nil if the catalog does not know it.
func (c *Catalog) Get(rt ResearchType) *Research {
	return c.byType[rt]
}

// Len returns the number of researches.
func (c *Catalog) Len() int { return len(c.byType) }

func contains(list []ResearchType, rt ResearchType) bool {
	for _, v := range list {
		if v == rt {
			return true
		}
	}
	return false
}
