package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/compiler"
)

// ValidationResult is the payload of a validate run.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
	Syncs    int                        `json:"syncs"`
	Concepts int                        `json:"concepts"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <defs-path>",
		Short: "Validate sync and concept definitions",
		Long: `Validate CUE sync rules and concept definitions without running them.

Checks structure (every sync has when and then clauses, every then arg
references a bound variable), cross-checks when triggers against the
concept catalog, and reports static trigger cycles as warnings.

Example:
  weft validate ./defs
  weft validate order.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &Formatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	defs, err := LoadDefinitions(path)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			_ = formatter.Fail(le.Code, le.Message, nil)
			return NewExitError(ExitCommandError, le.Message)
		}
		_ = formatter.Fail(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	formatter.VerboseLog("loaded %d sync(s), %d concept(s) from %s", len(defs.Syncs), len(defs.Concepts), path)

	errs := compiler.ValidateDefinitions(defs)
	warnings := compiler.AnalyzeCycles(defs.Syncs)

	result := ValidationResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
		Syncs:    len(defs.Syncs),
		Concepts: len(defs.Concepts),
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
		if !result.Valid {
			return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
		}
		return nil
	}

	w := cmd.OutOrStdout()
	if result.Valid {
		fmt.Fprintf(w, "ok: %d sync(s), %d concept(s)\n", result.Syncs, result.Concepts)
	} else {
		fmt.Fprintln(w, "validation failed")
		for _, e := range errs {
			fmt.Fprintf(w, "  %s %s: %s\n", e.Code, e.Field, e.Message)
		}
	}
	for _, warn := range warnings {
		fmt.Fprintf(w, "warning: %s\n", warn.Message)
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}
	return nil
}
