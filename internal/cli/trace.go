package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/ir"
	"github.com/weftworks/weft/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Flow     string
	Concept  string // optional filter
}

// TraceEvent is one entry in a flow's ledger timeline.
type TraceEvent struct {
	Seq     int64     `json:"seq"`
	Type    string    `json:"type"` // "invocation" or "completion"
	ID      string    `json:"id"`
	Concept string    `json:"concept"`
	Action  string    `json:"action"`
	Variant string    `json:"variant,omitempty"`
	Input   ir.Record `json:"input,omitempty"`
	Output  ir.Record `json:"output,omitempty"`
}

// TraceEdge records one sync firing: the completion that completed the
// match and the invocations it produced.
type TraceEdge struct {
	CompletionID string   `json:"completion_id"`
	SyncName     string   `json:"sync_name"`
	Invocations  []string `json:"invocations,omitempty"`
}

// TraceResult is the full trace payload for one flow.
type TraceResult struct {
	Flow     string       `json:"flow"`
	Timeline []TraceEvent `json:"timeline"`
	Firings  []TraceEdge  `json:"firings"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats summarizes a trace.
type TraceStats struct {
	Invocations int `json:"invocations"`
	Completions int `json:"completions"`
	Firings     int `json:"firings"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the ledger record of one flow",
		Long: `Print the recorded timeline and sync firings for a flow.

The timeline lists every invocation and completion in logical clock
order. The firings section shows which completion triggered which sync
and the invocations each firing produced.

Examples:
  weft trace --db ./weft.db --flow 0190c2a4-...
  weft trace --db ./weft.db --flow 0190c2a4-... --concept orders
  weft trace --db ./weft.db --flow 0190c2a4-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite ledger (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Flow, "flow", "", "flow token to trace (required)")
	_ = cmd.MarkFlagRequired("flow")
	cmd.Flags().StringVar(&opts.Concept, "concept", "", "only show events for this concept")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	defer st.Close()

	result, err := buildTrace(ctx, st, opts.Flow, opts.Concept)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read flow", err)
	}

	formatter := &Formatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	writeTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

func buildTrace(ctx context.Context, st *store.Store, flow, conceptFilter string) (*TraceResult, error) {
	invs, comps, err := st.ReadFlow(ctx, flow)
	if err != nil {
		return nil, err
	}
	firings, err := st.ReadFirings(ctx, flow)
	if err != nil {
		return nil, err
	}

	timeline := make([]TraceEvent, 0, len(invs)+len(comps))
	for _, inv := range invs {
		if conceptFilter != "" && inv.Concept != conceptFilter {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Seq:     inv.Seq,
			Type:    "invocation",
			ID:      inv.ID,
			Concept: inv.Concept,
			Action:  inv.Action,
			Input:   inv.Input,
		})
	}
	for _, comp := range comps {
		if conceptFilter != "" && comp.Concept != conceptFilter {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Seq:     comp.Seq,
			Type:    "completion",
			ID:      comp.ID,
			Concept: comp.Concept,
			Action:  comp.Action,
			Variant: comp.Variant,
			Input:   comp.Input,
			Output:  comp.Output,
		})
	}
	sort.SliceStable(timeline, func(i, j int) bool { return timeline[i].Seq < timeline[j].Seq })

	edges := make([]TraceEdge, 0, len(firings))
	for _, f := range firings {
		triggered, err := st.ReadTriggeredBySync(ctx, f.CompletionID, f.SyncName)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(triggered))
		for _, inv := range triggered {
			ids = append(ids, inv.ID)
		}
		edges = append(edges, TraceEdge{
			CompletionID: f.CompletionID,
			SyncName:     f.SyncName,
			Invocations:  ids,
		})
	}

	return &TraceResult{
		Flow:     flow,
		Timeline: timeline,
		Firings:  edges,
		Stats: TraceStats{
			Invocations: len(invs),
			Completions: len(comps),
			Firings:     len(firings),
		},
	}, nil
}

func writeTraceText(w io.Writer, result *TraceResult, verbose bool) {
	fmt.Fprintf(w, "Flow: %s\n\n", result.Flow)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		switch ev.Type {
		case "invocation":
			fmt.Fprintf(w, "  [%d] INV  %s.%s\n", ev.Seq, ev.Concept, ev.Action)
			if verbose {
				fmt.Fprintf(w, "        input: %s\n", formatRecord(ev.Input))
				fmt.Fprintf(w, "        id: %s\n", truncateID(ev.ID))
			}
		case "completion":
			fmt.Fprintf(w, "  [%d] COMP %s.%s -> %s\n", ev.Seq, ev.Concept, ev.Action, ev.Variant)
			if verbose {
				fmt.Fprintf(w, "        output: %s\n", formatRecord(ev.Output))
				fmt.Fprintf(w, "        id: %s\n", truncateID(ev.ID))
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Firings ===")
	if len(result.Firings) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, edge := range result.Firings {
		fmt.Fprintf(w, "  %s -[%s]-> %d invocation(s)\n",
			truncateID(edge.CompletionID), edge.SyncName, len(edge.Invocations))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Invocations: %d\n", result.Stats.Invocations)
	fmt.Fprintf(w, "  Completions: %d\n", result.Stats.Completions)
	fmt.Fprintf(w, "  Firings:     %d\n", result.Stats.Firings)
}

// formatRecord renders a record with sorted keys so text output is
// deterministic.
func formatRecord(r ir.Record) string {
	if len(r) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, r[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
