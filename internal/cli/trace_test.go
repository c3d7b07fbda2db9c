package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedFlow runs one completion through the engine so the ledger has a
// flow worth tracing.
func seedFlow(t *testing.T, db string) {
	t.Helper()
	dir := writeDefs(t, validDefs)
	input := `{"completion": {"concept": "orders", "action": "place", "variant": "ok", "output": {"id": "o-1"}, "flow": "flow-1"}}` + "\n"
	_, err := executeWithStdin(t, input, "run", dir, "--db", db)
	require.NoError(t, err)
}

func TestTrace_TextOutput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "weft.db")
	seedFlow(t, db)

	stdout, _, err := execute(t, "trace", "--db", db, "--flow", "flow-1")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Flow: flow-1")
	assert.Contains(t, stdout, "COMP orders.place -> ok")
	assert.Contains(t, stdout, "INV  email.send")
	assert.Contains(t, stdout, "notify-on-order")
	assert.Contains(t, stdout, "Firings:     1")
}

func TestTrace_JSONOutput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "weft.db")
	seedFlow(t, db)

	stdout, _, err := execute(t, "--format", "json", "trace", "--db", db, "--flow", "flow-1")
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Equal(t, "ok", resp.Status)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result TraceResult
	require.NoError(t, json.Unmarshal(raw, &result))

	assert.Equal(t, "flow-1", result.Flow)
	require.Len(t, result.Timeline, 2)
	assert.Equal(t, "completion", result.Timeline[0].Type)
	assert.Equal(t, "invocation", result.Timeline[1].Type)
	require.Len(t, result.Firings, 1)
	assert.Equal(t, "notify-on-order", result.Firings[0].SyncName)
	assert.Len(t, result.Firings[0].Invocations, 1)
	assert.Equal(t, 1, result.Stats.Invocations)
	assert.Equal(t, 1, result.Stats.Completions)
}

func TestTrace_ConceptFilter(t *testing.T) {
	db := filepath.Join(t.TempDir(), "weft.db")
	seedFlow(t, db)

	stdout, _, err := execute(t, "trace", "--db", db, "--flow", "flow-1", "--concept", "email")
	require.NoError(t, err)
	assert.Contains(t, stdout, "INV  email.send")
	assert.NotContains(t, stdout, "COMP orders.place")
}

func TestTrace_UnknownFlowIsEmpty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "weft.db")
	seedFlow(t, db)

	stdout, _, err := execute(t, "trace", "--db", db, "--flow", "no-such-flow")
	require.NoError(t, err)
	assert.Contains(t, stdout, "(no events)")
}

func TestTrace_VerboseShowsPayloads(t *testing.T) {
	db := filepath.Join(t.TempDir(), "weft.db")
	seedFlow(t, db)

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"-v", "trace", "--db", db, "--flow", "flow-1"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "order=o-1")
}
