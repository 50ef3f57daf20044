package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/quire/internal/errors"
	"github.com/conneroisu/quire/internal/logging"
	"github.com/conneroisu/quire/internal/pipeline"
	"github.com/conneroisu/quire/internal/snapshot"
)

// errCheckFailed makes check exit non-zero after it has printed its report.
var errCheckFailed = stderrors.New("content check failed")

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Build the content once and report problems",
	Long: `Run one full build of the content directory and print every warning
and error. The command exits non-zero if the content root cannot be read or
any file failed to build; with --strict, warnings fail it too.

Examples:
  quire check
  quire check --content ~/blog --strict
  quire check --format json`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	addFlags(checkCmd, contentFlags)
	checkCmd.Flags().Bool("strict", false, "treat warnings as failures")
	checkCmd.Flags().StringP("format", "f", "table", "output format (table, json, yaml)")
}

// CheckIssue is one reported problem.
type CheckIssue struct {
	Severity string `json:"severity" yaml:"severity"`
	Code     string `json:"code" yaml:"code"`
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	Message  string `json:"message" yaml:"message"`
}

// CheckResult is the machine-readable check report.
type CheckResult struct {
	Files    int          `json:"files" yaml:"files"`
	Posts    int          `json:"posts" yaml:"posts"`
	Pages    int          `json:"pages" yaml:"pages"`
	Entries  int          `json:"entries" yaml:"entries"`
	Tags     int          `json:"tags" yaml:"tags"`
	Duration string       `json:"duration" yaml:"duration"`
	Issues   []CheckIssue `json:"issues" yaml:"issues"`
	Errors   int          `json:"errors" yaml:"errors"`
	Warnings int          `json:"warnings" yaml:"warnings"`
}

func runCheck(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := validateFormat(format); err != nil {
		return err
	}
	strict, _ := cmd.Flags().GetBool("strict")

	cfg, logger, err := loadConfig(viper.GetViper(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := context.Background()
	op := logging.StartOperation(logger, "check")
	p := pipeline.New(afero.NewOsFs(), pipelineOptions(cfg), logger)
	snap, report, err := p.Run(ctx, 1)
	if err != nil {
		op.EndWithError(ctx, err)

		return err
	}
	op.End(ctx, "files", report.Files, "issues", report.Issues.Len())

	result := newCheckResult(snap, report)
	if format == "table" {
		writeCheckTable(cmd.OutOrStdout(), result)
	} else if err := writeStructured(cmd.OutOrStdout(), format, result); err != nil {
		return err
	}

	if result.Errors > 0 || (strict && result.Warnings > 0) {
		return errCheckFailed
	}

	return nil
}

func newCheckResult(snap *snapshot.Snapshot, report *pipeline.Report) CheckResult {
	stats := snap.Stats()
	result := CheckResult{
		Files:    report.Files,
		Posts:    stats.Posts,
		Pages:    stats.Pages,
		Entries:  stats.Entries,
		Tags:     stats.Tags,
		Duration: report.Duration.Round(time.Millisecond).String(),
		Issues:   []CheckIssue{},
	}

	for _, issue := range report.Issues.Issues() {
		result.Issues = append(result.Issues, CheckIssue{
			Severity: issue.Severity.String(),
			Code:     issue.Code,
			File:     issue.File,
			Message:  issue.Message,
		})
		if issue.Severity == errors.SeverityError {
			result.Errors++
		} else {
			result.Warnings++
		}
	}

	return result
}

func writeCheckTable(out io.Writer, result CheckResult) {
	if len(result.Issues) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SEVERITY\tCODE\tFILE\tMESSAGE")
		for _, issue := range result.Issues {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", issue.Severity, issue.Code, issue.File, issue.Message)
		}
		w.Flush()
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "%d files: %d posts (%d entries), %d pages, %d tags in %s\n",
		result.Files, result.Posts, result.Entries, result.Pages, result.Tags, result.Duration)
	fmt.Fprintf(out, "%d errors, %d warnings\n", result.Errors, result.Warnings)
}
