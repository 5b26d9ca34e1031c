package policy

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed policies.yaml
var catalogYAML []byte

//go:embed schema.cue
var catalogSchema string

// Severity is a rule's weight class.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// RuleInfo is the operator-facing metadata of one catalog rule.
type RuleInfo struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Severity    Severity `yaml:"severity" json:"severity"`
}

// Catalog is the loaded, schema-validated rule catalog.
type Catalog struct {
	Policies []RuleInfo `yaml:"policies" json:"policies"`
}

// ByID returns the catalog entry for a policy ID.
func (c Catalog) ByID(id string) (RuleInfo, bool) {
	for _, r := range c.Policies {
		if r.ID == id {
			return r, true
		}
	}
	return RuleInfo{}, false
}

// LoadCatalog parses the embedded catalog and validates it against the
// embedded CUE schema. A catalog that fails validation is a build
// defect, not an operator error, so callers typically treat a non-nil
// error as fatal at startup.
func LoadCatalog() (Catalog, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(catalogYAML, &raw); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog yaml: %w", err)
	}

	cuectx := cuecontext.New()
	schema := cuectx.CompileString(catalogSchema)
	if err := schema.Err(); err != nil {
		return Catalog{}, fmt.Errorf("compile catalog schema: %w", err)
	}
	unified := schema.Unify(cuectx.Encode(raw))
	if err := unified.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("catalog does not satisfy schema: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(catalogYAML, &cat); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	return cat, nil
}

// MustLoadCatalog is LoadCatalog for initialization paths where a bad
// embedded catalog is unrecoverable.
func MustLoadCatalog() Catalog {
	cat, err := LoadCatalog()
	if err != nil {
		panic(err)
	}
	return cat
}
