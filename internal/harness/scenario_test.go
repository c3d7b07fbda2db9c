package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenarioFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeDefsFile(t *testing.T, dir string) {
	t.Helper()
	defs := `
concepts: {
	"orders": {actions: {place: ["ok"]}}
	"email": {actions: {send: ["ok"]}}
}
syncs: {
	"notify": {
		when: [{concept: "orders", action: "place", variant: "ok", output: {order_id: "id"}}]
		then: [{concept: "email", action: "send", args: {order: "bound.order_id"}}]
	}
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "defs.cue"), []byte(defs), 0o644))
}

const minimalScenario = `
name: minimal
description: "one completion, one emission"
defs:
  - defs.cue
steps:
  - complete:
      concept: orders
      action: place
      variant: ok
      output: {id: "o-1"}
      flow: flow-1
assertions:
  - type: emitted_contains
    concept: email
    action: send
    input: {order: "o-1"}
`

func TestLoadScenario_Valid(t *testing.T) {
	dir := t.TempDir()
	writeDefsFile(t, dir)
	path := writeScenarioFile(t, dir, minimalScenario)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Defs, 1)
	assert.Equal(t, filepath.Join(dir, "defs.cue"), s.Defs[0], "def paths resolve relative to the scenario file")
	require.Len(t, s.Steps, 1)
	require.NotNil(t, s.Steps[0].Complete)
	assert.Equal(t, "ok", s.Steps[0].Complete.Variant)
}

func TestLoadScenario_UnknownFieldRejected(t *testing.T) {
	dir := t.TempDir()
	writeDefsFile(t, dir)
	path := writeScenarioFile(t, dir, `
name: typo
description: "assertion vs assertions"
defs:
  - defs.cue
steps:
  - complete: {concept: a, action: b, variant: ok}
assertion:
  - type: emitted_count
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion")
}

func TestLoadScenario_MissingDefsFile(t *testing.T) {
	dir := t.TempDir()
	path := writeScenarioFile(t, dir, minimalScenario)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadScenario_StepNeedsExactlyOneKind(t *testing.T) {
	dir := t.TempDir()
	writeDefsFile(t, dir)

	path := writeScenarioFile(t, dir, `
name: both
description: "a step cannot be two things"
defs:
  - defs.cue
steps:
  - complete: {concept: a, action: b, variant: ok}
    availability: {concept: c, available: true}
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one")
}

func TestLoadScenario_UnknownAssertionType(t *testing.T) {
	dir := t.TempDir()
	writeDefsFile(t, dir)
	path := writeScenarioFile(t, dir, `
name: bad-assert
description: "unknown assertion type"
defs:
  - defs.cue
steps:
  - complete: {concept: a, action: b, variant: ok}
assertions:
  - type: trace_contains
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown assertion type")
}

func TestLoadScenario_RequiresSteps(t *testing.T) {
	dir := t.TempDir()
	writeDefsFile(t, dir)
	path := writeScenarioFile(t, dir, `
name: empty
description: "no steps"
defs:
  - defs.cue
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps")
}

func TestLoadScenario_CompletionNeedsVariant(t *testing.T) {
	dir := t.TempDir()
	writeDefsFile(t, dir)
	path := writeScenarioFile(t, dir, `
name: no-variant
description: "variant is required"
defs:
  - defs.cue
steps:
  - complete: {concept: a, action: b}
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "variant")
}
