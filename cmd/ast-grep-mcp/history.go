package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/ast-grep-mcp/internal/config"
	"github.com/dshills/ast-grep-mcp/internal/storage"
)

var (
	historyLimit  int
	historyTool   string
	historyFailed bool
	historyStats  bool
	historySince  time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded tool calls",
	Long: `Show tool calls recorded in the history database.

The database is set with --history-db or ` + config.EnvHistoryDB + `.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", storage.DefaultListLimit, "Maximum number of calls to show")
	historyCmd.Flags().StringVar(&historyTool, "tool", "", "Only show calls of this tool")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "Only show failed calls")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "Only show calls newer than this, e.g. 24h")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "Show per-tool statistics instead of calls")
}

var errNoHistory = errors.New("no history database configured: set --history-db or " + config.EnvHistoryDB)

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return errNoHistory
	}

	store, err := storage.NewSQLiteStorage(cfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if historyStats {
		stats, err := store.ToolStats(ctx)
		if err != nil {
			return err
		}
		return writeStats(out, stats)
	}

	filter := storage.ListFilter{
		Tool:       historyTool,
		OnlyFailed: historyFailed,
		Limit:      historyLimit,
	}
	if historySince > 0 {
		filter.SinceMillis = time.Now().Add(-historySince).UnixMilli()
	}

	list, err := store.ListInvocations(ctx, filter)
	if err != nil {
		return err
	}
	return writeInvocations(out, list)
}

func writeInvocations(w io.Writer, list []*storage.Invocation) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No recorded calls")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTOOL\tSTATUS\tMATCHES\tDURATION\tARGUMENTS")
	for _, inv := range list {
		status := "ok"
		if !inv.Success {
			status = "failed: " + inv.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			inv.CreatedAt.Local().Format(time.DateTime),
			inv.Tool,
			status,
			inv.MatchCount,
			inv.Duration.Round(time.Millisecond),
			inv.Arguments)
	}
	return tw.Flush()
}

func writeStats(w io.Writer, stats []storage.ToolStats) error {
	if len(stats) == 0 {
		_, err := fmt.Fprintln(w, "No recorded calls")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tCALLS\tFAILURES\tMATCHES\tAVG DURATION\tLAST CALL")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n",
			s.Tool,
			s.Calls,
			s.Failures,
			s.TotalMatches,
			s.AvgDuration.Round(time.Millisecond),
			s.LastInvokedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
