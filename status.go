package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/praneth2580/storix/internal/sync"
)

// lastErrorWidth caps the error column of the pending table.
const lastErrorWidth = 48

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending writes, watermarks, and the last sync",
		Long: `Display the local sync state without contacting the remote: the time of
the last successful sync, per-table watermarks, queued writes with their
attempt counts and last errors, and whether a watcher holds the state lock.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

// statusReport is the JSON form of "storix status".
type statusReport struct {
	DBPath     string           `json:"db_path"`
	LastSync   string           `json:"last_sync"`
	WatcherPID int              `json:"watcher_pid,omitempty"`
	Watermarks []sync.Watermark `json:"watermarks"`
	Pending    []sync.Mutation  `json:"pending"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	state, err := openStateReadOnly(ctx, cc)
	if err != nil {
		return err
	}
	defer state.Close()

	report := statusReport{DBPath: cc.Cfg.DBPath}

	if report.LastSync, err = state.LastSync(ctx); err != nil {
		return err
	}

	if report.Watermarks, err = state.Watermarks(ctx); err != nil {
		return err
	}

	if report.Pending, err = sync.NewLedger(state, cc.Logger).List(ctx); err != nil {
		return err
	}

	if pid, ok := lockHolder(lockPath(cc.Cfg.DBPath)); ok {
		report.WatcherPID = pid
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, report)
	}

	printStatusText(report)

	return nil
}

func printStatusText(r statusReport) {
	fmt.Printf("State:     %s\n", r.DBPath)
	fmt.Printf("Last sync: %s\n", formatTimestamp(r.LastSync))

	if r.WatcherPID != 0 {
		fmt.Printf("Watcher:   running (PID %d)\n", r.WatcherPID)
	} else {
		fmt.Println("Watcher:   not running")
	}

	if len(r.Watermarks) > 0 {
		fmt.Println()

		rows := make([][]string, 0, len(r.Watermarks))
		for _, w := range r.Watermarks {
			rows = append(rows, []string{w.Table, formatTimestamp(w.RemoteModified), formatTimestamp(w.SyncedAt)})
		}

		printTable(os.Stdout, []string{"TABLE", "REMOTE MODIFIED", "SYNCED"}, rows)
	}

	fmt.Println()

	if len(r.Pending) == 0 {
		fmt.Println("No pending writes.")
		return
	}

	rows := make([][]string, 0, len(r.Pending))
	for _, m := range r.Pending {
		rows = append(rows, []string{
			strconv.FormatInt(m.Seq, 10),
			string(m.Action),
			string(m.Table),
			m.ID,
			strconv.Itoa(m.Attempts),
			truncate(m.LastError, lastErrorWidth),
		})
	}

	printTable(os.Stdout, []string{"SEQ", "ACTION", "TABLE", "ID", "ATTEMPTS", "LAST ERROR"}, rows)
}
