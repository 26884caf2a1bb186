package main

import "testing"

func TestSymptomsListsCatalog(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, []string{"symptoms"}, env.configPath)
	if err != nil {
		t.Fatalf("symptoms: %v", err)
	}
	// Test output is not a TTY, so rows come out tab-separated.
	requireContains(t, out, "fever")
	requireContains(t, out, "shortness_of_breath")
	requireContains(t, out, "Respiratory")
}
