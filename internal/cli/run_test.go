package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/ir"
)

func executeWithStdin(t *testing.T, stdin string, args ...string) (stdout string, err error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), err
}

func decodeInvocations(t *testing.T, stdout string) []ir.Invocation {
	t.Helper()
	var invs []ir.Invocation
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if line == "" {
			continue
		}
		var inv ir.Invocation
		require.NoError(t, json.Unmarshal([]byte(line), &inv))
		invs = append(invs, inv)
	}
	return invs
}

func TestRun_CompletionEmitsInvocation(t *testing.T) {
	dir := writeDefs(t, validDefs)
	db := filepath.Join(t.TempDir(), "weft.db")

	input := `{"completion": {"concept": "orders", "action": "place", "variant": "ok", "output": {"id": "o-1"}, "flow": "flow-1"}}` + "\n"
	stdout, err := executeWithStdin(t, input, "run", dir, "--db", db)
	require.NoError(t, err)

	invs := decodeInvocations(t, stdout)
	require.Len(t, invs, 1)
	assert.Equal(t, "email", invs[0].Concept)
	assert.Equal(t, "send", invs[0].Action)
	assert.Equal(t, ir.String("o-1"), invs[0].Input["order"])
	assert.Equal(t, "flow-1", invs[0].Flow)
}

func TestRun_RedeliveryIsIdempotent(t *testing.T) {
	dir := writeDefs(t, validDefs)
	db := filepath.Join(t.TempDir(), "weft.db")

	line := `{"completion": {"concept": "orders", "action": "place", "variant": "ok", "output": {"id": "o-1"}, "flow": "flow-1"}}` + "\n"
	stdout, err := executeWithStdin(t, line+line, "run", dir, "--db", db)
	require.NoError(t, err)

	invs := decodeInvocations(t, stdout)
	assert.Len(t, invs, 1, "the same completion delivered twice fires once")
}

func TestRun_AvailabilityHoldsAndReleases(t *testing.T) {
	dir := writeDefs(t, validDefs)
	db := filepath.Join(t.TempDir(), "weft.db")

	input := strings.Join([]string{
		`{"availability": {"concept": "email", "available": false}}`,
		`{"completion": {"concept": "orders", "action": "place", "variant": "ok", "output": {"id": "o-1"}, "flow": "flow-1"}}`,
		`{"availability": {"concept": "email", "available": true}}`,
	}, "\n") + "\n"

	stdout, err := executeWithStdin(t, input, "run", dir, "--db", db)
	require.NoError(t, err)

	invs := decodeInvocations(t, stdout)
	require.Len(t, invs, 1, "invocation held while unavailable, released on recovery")
	assert.Equal(t, "email", invs[0].Concept)
}

func TestRun_MalformedLinesAreSkipped(t *testing.T) {
	dir := writeDefs(t, validDefs)
	db := filepath.Join(t.TempDir(), "weft.db")

	input := "not json\n" +
		`{"completion": {"concept": "orders", "action": "place", "variant": "ok", "output": {"id": "o-2"}, "flow": "flow-2"}}` + "\n"
	stdout, err := executeWithStdin(t, input, "run", dir, "--db", db)
	require.NoError(t, err)

	invs := decodeInvocations(t, stdout)
	assert.Len(t, invs, 1)
}

func TestRun_InvalidDefsIsCommandError(t *testing.T) {
	dir := writeDefs(t, brokenDefs)
	db := filepath.Join(t.TempDir(), "weft.db")

	_, err := executeWithStdin(t, "", "run", dir, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
