package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	cat, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cat.Len() == 0 {
		t.Fatal("embedded catalog is empty")
	}
	if len(cat.Groups()) < 3 {
		t.Fatalf("expected several groups, got %v", cat.Groups())
	}

	symptom, ok := cat.Resolve("headache")
	if !ok {
		t.Fatal("expected headache in embedded catalog")
	}
	if symptom.Name != "Headache" {
		t.Fatalf("expected title-cased default name, got %q", symptom.Name)
	}
}

func TestResolveAcceptsNamesAndCasings(t *testing.T) {
	cat, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, input := range []string{"Shortness Of Breath", "shortness-of-breath", " shortness_of_breath "} {
		symptom, ok := cat.Resolve(input)
		if !ok {
			t.Fatalf("expected %q to resolve", input)
		}
		if symptom.ID != "shortness_of_breath" {
			t.Fatalf("resolved to wrong symptom %q", symptom.ID)
		}
	}

	// Custom display names resolve too.
	if symptom, ok := cat.Resolve("unexplained weight loss"); !ok || symptom.ID != "weight_loss" {
		t.Fatalf("expected display name resolution, got %v %v", symptom, ok)
	}
}

func TestResolveAllDeduplicatesAndReportsUnknown(t *testing.T) {
	cat, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	resolved, err := cat.ResolveAll([]string{"fever", "Fever", "cough"})
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("expected deduplicated pair, got %v", resolved)
	}

	_, err = cat.ResolveAll([]string{"fever", "glowing", "levitation"})
	if err == nil {
		t.Fatal("expected unknown symptom error")
	}
	if !strings.Contains(err.Error(), "glowing") || !strings.Contains(err.Error(), "levitation") {
		t.Fatalf("expected unknown names in error, got %q", err.Error())
	}

	if _, err := cat.ResolveAll(nil); err == nil {
		t.Fatal("expected error for empty selection")
	}
}

func TestLoadOperatorCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symptoms.yaml")
	content := `
groups:
  - name: Only group
    symptoms:
      - id: sneezing
      - id: watery_eyes
        name: Watery eyes
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("expected 2 symptoms, got %d", cat.Len())
	}
	if _, ok := cat.Resolve("headache"); ok {
		t.Fatal("operator catalog should replace the embedded one")
	}
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	cases := map[string]string{
		"empty":        ``,
		"no symptoms":  "groups:\n  - name: Empty\n    symptoms: []\n",
		"missing id":   "groups:\n  - name: G\n    symptoms:\n      - name: Something\n",
		"duplicate id": "groups:\n  - name: G\n    symptoms:\n      - id: fever\n      - id: fever\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parse([]byte(content)); err == nil {
				t.Fatalf("expected parse error for %s", name)
			}
		})
	}
}
