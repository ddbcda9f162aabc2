package main

import (
	"os"
	"path/filepath"
	"testing"
)

const validRulesetYAML = `code: KSA-BASE
name: KSA baseline derivation
version: 1
rules:
  - code: R-HC-1
    name: Healthcare in Saudi Arabia
    priority: 100
    condition:
      type: and
      conditions:
        - field: sector
          operator: equals
          value: Healthcare
        - field: country
          operator: equals
          value: SA
    actions:
      - action: apply_baseline
        code: NPHIES-BL
`

const invalidRulesetYAML = `code: BROKEN
name: Broken ruleset
version: 1
rules:
  - code: R-1
    priority: 1
    condition:
      field: sector
      operator: definitely_not_an_operator
      value: X
    actions:
      - action: apply_baseline
        code: BL-1
`

func writeLintFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLintValidFile(t *testing.T) {
	lintFlags.file = writeLintFile(t, "valid.yaml", validRulesetYAML)
	lintFlags.dir = ""
	lintFlags.format = "text"

	if err := lintRulesets(nil, nil); err != nil {
		t.Errorf("lintRulesets() with valid file returned error: %v", err)
	}
}

func TestLintInvalidFile(t *testing.T) {
	lintFlags.file = writeLintFile(t, "invalid.yaml", invalidRulesetYAML)
	lintFlags.dir = ""
	lintFlags.format = "text"

	if err := lintRulesets(nil, nil); err == nil {
		t.Error("lintRulesets() with invalid file should return error")
	}
}

func TestLintNonexistentFile(t *testing.T) {
	lintFlags.file = filepath.Join(t.TempDir(), "nope.yaml")
	lintFlags.dir = ""
	lintFlags.format = "text"

	if err := lintRulesets(nil, nil); err == nil {
		t.Error("lintRulesets() with nonexistent file should return error")
	}
}

func TestLintNoFileOrDir(t *testing.T) {
	lintFlags.file = ""
	lintFlags.dir = ""
	lintFlags.format = "text"

	if err := lintRulesets(nil, nil); err == nil {
		t.Error("lintRulesets() without file or dir should return error")
	}
}

func TestLintJSONFormat(t *testing.T) {
	lintFlags.file = writeLintFile(t, "valid.yaml", validRulesetYAML)
	lintFlags.dir = ""
	lintFlags.format = "json"

	if err := lintRulesets(nil, nil); err != nil {
		t.Errorf("lintRulesets() with JSON format returned error: %v", err)
	}
}

func TestLintDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(validRulesetYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	lintFlags.file = ""
	lintFlags.dir = dir
	lintFlags.format = "text"

	if err := lintRulesets(nil, nil); err != nil {
		t.Errorf("lintRulesets() with valid directory returned error: %v", err)
	}
}
