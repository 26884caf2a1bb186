// Package catalog defines the symptom catalog users pick from.
//
// The catalog ships embedded in the binary and can be replaced wholesale by
// an operator-supplied YAML file via catalog.path in the configuration.
// Symptom IDs are canonical slugs; display names default to a title-cased
// form of the ID when the catalog omits them.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed symptoms.yaml
var embeddedCatalog []byte

// Symptom is one selectable symptom.
type Symptom struct {
	ID    string
	Name  string
	Group string
}

type yamlSymptom struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type yamlGroup struct {
	Name     string        `yaml:"name"`
	Symptoms []yamlSymptom `yaml:"symptoms"`
}

type yamlCatalog struct {
	Groups []yamlGroup `yaml:"groups"`
}

// Catalog holds the parsed symptom set.
type Catalog struct {
	groups  []string
	ordered []Symptom
	byKey   map[string]Symptom
}

var titleCaser = cases.Title(language.English)

// Load reads the catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	data := embeddedCatalog
	if strings.TrimSpace(path) != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = fileData
	}
	return parse(data)
}

func parse(data []byte) (*Catalog, error) {
	var doc yamlCatalog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Groups) == 0 {
		return nil, fmt.Errorf("catalog defines no symptom groups")
	}

	cat := &Catalog{byKey: make(map[string]Symptom)}
	for _, group := range doc.Groups {
		groupName := strings.TrimSpace(group.Name)
		if groupName == "" {
			return nil, fmt.Errorf("catalog group without a name")
		}
		cat.groups = append(cat.groups, groupName)
		for _, entry := range group.Symptoms {
			id := canonicalKey(entry.ID)
			if id == "" {
				return nil, fmt.Errorf("group %q has a symptom without an id", groupName)
			}
			if _, exists := cat.byKey[id]; exists {
				return nil, fmt.Errorf("duplicate symptom id %q", id)
			}
			name := strings.TrimSpace(entry.Name)
			if name == "" {
				name = titleCaser.String(strings.ReplaceAll(id, "_", " "))
			}
			symptom := Symptom{ID: id, Name: name, Group: groupName}
			cat.ordered = append(cat.ordered, symptom)
			cat.byKey[id] = symptom
			// Display names resolve too, so CLI users can type either form.
			nameKey := canonicalKey(name)
			if nameKey != id {
				if _, exists := cat.byKey[nameKey]; !exists {
					cat.byKey[nameKey] = symptom
				}
			}
		}
	}
	if len(cat.ordered) == 0 {
		return nil, fmt.Errorf("catalog defines no symptoms")
	}
	return cat, nil
}

// Symptoms returns all symptoms in catalog order.
func (c *Catalog) Symptoms() []Symptom {
	out := make([]Symptom, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Groups returns the group names in catalog order.
func (c *Catalog) Groups() []string {
	out := make([]string, len(c.groups))
	copy(out, c.groups)
	return out
}

// Len returns the number of distinct symptoms.
func (c *Catalog) Len() int { return len(c.ordered) }

// Resolve maps user input (id or display name, any casing) to a symptom.
func (c *Catalog) Resolve(input string) (Symptom, bool) {
	symptom, ok := c.byKey[canonicalKey(input)]
	return symptom, ok
}

// ResolveAll resolves every input, deduplicating, and reports the unknown
// leftovers in one error.
func (c *Catalog) ResolveAll(inputs []string) ([]Symptom, error) {
	seen := make(map[string]struct{}, len(inputs))
	resolved := make([]Symptom, 0, len(inputs))
	var unknown []string
	for _, input := range inputs {
		symptom, ok := c.Resolve(input)
		if !ok {
			unknown = append(unknown, strings.TrimSpace(input))
			continue
		}
		if _, dup := seen[symptom.ID]; dup {
			continue
		}
		seen[symptom.ID] = struct{}{}
		resolved = append(resolved, symptom)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown symptoms: %s", strings.Join(unknown, ", "))
	}
	if len(resolved) == 0 {
		return nil, fmt.Errorf("no symptoms selected")
	}
	return resolved, nil
}

func canonicalKey(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, "-", " ")
	value = strings.ReplaceAll(value, "_", " ")
	return strings.Join(strings.Fields(value), "_")
}
