package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/compiler"
	"github.com/weftworks/weft/internal/config"
	"github.com/weftworks/weft/internal/engine"
	"github.com/weftworks/weft/internal/ir"
	"github.com/weftworks/weft/internal/relsql"
	"github.com/weftworks/weft/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string

	// FlowGenerator overrides the flow token source (for testing).
	FlowGenerator engine.FlowGenerator
}

// streamInput is one line of the run command's stdin protocol. Exactly
// one field is set per line.
type streamInput struct {
	Completion   *ir.Completion     `json:"completion,omitempty"`
	Availability *availabilityInput `json:"availability,omitempty"`
}

type availabilityInput struct {
	Concept   string `json:"concept"`
	Available bool   `json:"available"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <defs-path>",
		Short: "Run the sync engine over a completion stream",
		Long: `Run the sync engine with the given definitions.

Reads one JSON object per line from stdin and writes emitted invocations
as JSON lines to stdout. Input lines carry either a completion or an
availability change:

  {"completion": {"concept": "orders", "action": "place", "variant": "ok", ...}}
  {"availability": {"concept": "email", "available": false}}

Where-clause queries run against relations in the ledger database, so
concept state seeded there is visible to syncs.

Example:
  weft run ./defs --db ./weft.db
  cat completions.jsonl | weft run ./defs --db /tmp/test.db --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite ledger (default from WEFT_DB)")

	return cmd
}

func runEngine(opts *RunOptions, defsPath string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.DBPath
	}

	log.Info("compiling definitions", "path", defsPath)
	defs, err := LoadDefinitions(defsPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load definitions", err)
	}
	if errs := compiler.ValidateDefinitions(defs); len(errs) > 0 {
		return WrapExitError(ExitCommandError, "invalid definitions", errs[0])
	}
	for _, warn := range compiler.AnalyzeCycles(defs.Syncs) {
		log.Warn("static trigger cycle", "cycle", warn.Message)
	}
	log.Info("definitions compiled", "syncs", len(defs.Syncs), "concepts", len(defs.Concepts))

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("closing ledger", "error", closeErr)
		}
	}()

	flowGen := opts.FlowGenerator
	if flowGen == nil {
		flowGen = engine.UUIDv7Generator{}
	}

	queriers := relsql.NewQuerier(st.DB())
	eng := engine.New(st,
		engine.WithLogger(log),
		engine.WithFlowGenerator(flowGen),
		engine.WithCatalog(defs.Concepts),
		engine.WithQueriers(func(string) engine.Querier { return queriers }),
		engine.WithMatchTTL(cfg.MatchTTL),
		engine.WithQueryTimeout(cfg.QueryTimeout),
		engine.WithMaxSteps(cfg.MaxSteps),
	)
	for _, s := range defs.Syncs {
		if err := eng.RegisterSync(s); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("registering sync %q", s.Name), err)
		}
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Info("engine started", "db", dbPath, "defs", defsPath)
	if err := streamLoop(ctx, eng, cmd.InOrStdin(), cmd.OutOrStdout(), log); err != nil {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	log.Info("engine stopped")
	return nil
}

// streamLoop consumes input lines until EOF or context cancellation,
// writing every emitted invocation as one JSON line.
func streamLoop(ctx context.Context, eng *engine.Engine, in io.Reader, out io.Writer, log *slog.Logger) error {
	enc := json.NewEncoder(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var input streamInput
		if err := json.Unmarshal(line, &input); err != nil {
			log.Error("malformed input line", "error", err)
			continue
		}

		switch {
		case input.Completion != nil:
			invs, err := eng.OnCompletion(ctx, *input.Completion)
			if err != nil {
				var exceeded *engine.StepsExceededError
				if errors.As(err, &exceeded) {
					log.Error("flow terminated", "flow", exceeded.Flow, "steps", exceeded.Steps)
				} else {
					log.Error("completion rejected", "error", err)
				}
			}
			if err := emitInvocations(enc, invs); err != nil {
				return err
			}

		case input.Availability != nil:
			released := eng.OnAvailabilityChange(input.Availability.Concept, input.Availability.Available)
			log.Debug("availability changed",
				"concept", input.Availability.Concept,
				"available", input.Availability.Available,
				"released", len(released))
			if err := emitInvocations(enc, released); err != nil {
				return err
			}

		default:
			log.Error("input line has neither completion nor availability")
		}
	}
	return scanner.Err()
}

func emitInvocations(enc *json.Encoder, invs []ir.Invocation) error {
	for _, inv := range invs {
		if err := enc.Encode(inv); err != nil {
			return err
		}
	}
	return nil
}
