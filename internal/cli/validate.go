package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/manifest"
)

// ValidationReport holds manifest validation results.
type ValidationReport struct {
	Valid     bool     `json:"valid"`
	Files     int      `json:"files"`
	Pipelines []string `json:"pipelines,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifests-dir>",
		Short: "Compile and validate pipeline manifests",
		Long: `Compile every CUE manifest in a directory and validate the declared
pipelines: task names, dependency references, retry bounds, cycles.
All problems are collected so one pass reports everything.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, errs := manifest.LoadDir(dir)
	if loaded == nil {
		// Nothing could be loaded at all: missing directory, no CUE
		// files. That is a command error, not a manifest problem.
		msg := "load failed"
		if len(errs) > 0 {
			msg = errs[0].Error()
		}
		_ = formatter.Error("load_failed", msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	formatter.VerboseLog("compiled %d CUE file(s) from %s", loaded.FileCount, dir)

	report := ValidationReport{
		Valid: len(errs) == 0,
		Files: loaded.FileCount,
	}
	for _, p := range loaded.Pipelines {
		report.Pipelines = append(report.Pipelines, p.Name)
	}
	sort.Strings(report.Pipelines)
	for _, err := range errs {
		report.Errors = append(report.Errors, err.Error())
	}

	if report.Valid {
		return outputValidateSuccess(formatter, report)
	}
	return outputValidateFailure(formatter, report)
}

func outputValidateSuccess(formatter *OutputFormatter, report ValidationReport) error {
	if formatter.Format == "json" {
		return formatter.Success(report)
	}
	fmt.Fprintf(formatter.Writer, "✓ %d pipeline(s) valid\n", len(report.Pipelines))
	for _, name := range report.Pipelines {
		fmt.Fprintf(formatter.Writer, "  %s\n", name)
	}
	return nil
}

func outputValidateFailure(formatter *OutputFormatter, report ValidationReport) error {
	if formatter.Format == "json" {
		enc := json.NewEncoder(formatter.Writer)
		enc.SetIndent("", "  ")
		_ = enc.Encode(CLIResponse{
			Status: "error",
			Data:   report,
			Error:  &CLIError{Code: "validation_failed", Message: report.Errors[0]},
		})
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(report.Errors)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, msg := range report.Errors {
		fmt.Fprintf(formatter.Writer, "  %s\n", msg)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(report.Errors)))
}

// loadManifests loads a manifest directory for commands that need a
// working pipeline set, folding every load error into one.
func loadManifests(dir string) (*manifest.LoadResult, error) {
	loaded, errs := manifest.LoadDir(dir)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if loaded == nil {
		return nil, fmt.Errorf("no manifests loaded from %s", dir)
	}
	return loaded, nil
}
