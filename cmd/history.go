package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/quire/internal/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent reloads from the journal",
	Long: `List the most recent reload attempts recorded in the journal database
(journal.path in the config). Each row shows when the reload ran, what
triggered it, whether the snapshot was published and what it contained.

Examples:
  quire history
  quire history --limit 50 --format json`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "number of reloads to show")
	historyCmd.Flags().StringP("format", "f", "table", "output format (table, json, yaml)")
	addFlags(historyCmd, journalFlags)
}

func journalFlags() (*pflag.FlagSet, []flagBinding) {
	fs := pflag.NewFlagSet("journal", pflag.ContinueOnError)
	fs.String("journal", "", "journal database (overrides journal.path)")

	return fs, []flagBinding{{"journal", "journal.path"}}
}

// HistoryRow is the printable form of a journal record.
type HistoryRow struct {
	ID         string `json:"id" yaml:"id"`
	StartedAt  string `json:"started_at" yaml:"started_at"`
	Trigger    string `json:"trigger" yaml:"trigger"`
	Outcome    string `json:"outcome" yaml:"outcome"`
	Generation uint64 `json:"generation" yaml:"generation"`
	Duration   string `json:"duration" yaml:"duration"`
	Files      int    `json:"files" yaml:"files"`
	Posts      int    `json:"posts" yaml:"posts"`
	Pages      int    `json:"pages" yaml:"pages"`
	Warnings   int    `json:"warnings" yaml:"warnings"`
	Errors     int    `json:"errors" yaml:"errors"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := validateFormat(format); err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, _, err := loadConfig(viper.GetViper(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if cfg.Journal.Path == "" {
		return fmt.Errorf("no journal configured: set journal.path or pass --journal")
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()

	records, err := j.Recent(context.Background(), limit)
	if err != nil {
		return err
	}

	rows := historyRows(records)
	if format == "table" {
		return writeHistoryTable(cmd.OutOrStdout(), rows)
	}

	return writeStructured(cmd.OutOrStdout(), format, rows)
}

func historyRows(records []journal.Record) []HistoryRow {
	rows := make([]HistoryRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, HistoryRow{
			ID:         r.ID,
			StartedAt:  r.StartedAt.Local().Format(time.DateTime),
			Trigger:    r.Trigger,
			Outcome:    string(r.Outcome),
			Generation: r.Generation,
			Duration:   r.Duration.Round(time.Millisecond).String(),
			Files:      r.Files,
			Posts:      r.Posts,
			Pages:      r.Pages,
			Warnings:   r.Warnings,
			Errors:     r.Errors,
			Error:      r.Error,
		})
	}

	return rows
}

func writeHistoryTable(out io.Writer, rows []HistoryRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, "No reloads recorded.")

		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tTRIGGER\tOUTCOME\tGEN\tDURATION\tFILES\tPOSTS\tPAGES\tWARN\tERR")
	for _, r := range rows {
		outcome := r.Outcome
		if r.Error != "" {
			outcome += ": " + r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%d\t%d\t%d\t%d\n",
			r.StartedAt, r.Trigger, outcome, r.Generation, r.Duration, r.Files, r.Posts, r.Pages, r.Warnings, r.Errors)
	}

	return w.Flush()
}
