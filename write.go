package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/praneth2580/storix/internal/store"
	"github.com/praneth2580/storix/internal/sync"
)

// errBadField is returned for a field argument without "=".
var errBadField = errors.New("field must be key=value")

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <table> [key=value...]",
		Short: "Create a record and send it to the remote",
		Long: `Create a record locally, queue the create, and wait for it to be sent.
Values that parse as JSON (numbers, true, null, objects) keep their type;
anything else is a string. A missing id is generated.`,
		Example: `  storix create Products name=Widget price=9.99
  storix create Variants --data '{"productId":"p1","attributes":{"size":"L"}}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCreate,
	}

	cmd.Flags().String("data", "", "record fields as a JSON object")

	return cmd
}

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <table> <id> [key=value...]",
		Short: "Update fields of a record and send the change to the remote",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runUpdate,
	}

	cmd.Flags().String("data", "", "changed fields as a JSON object")

	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Delete a record and send the delete to the remote",
		Args:  cobra.ExactArgs(2),
		RunE:  runDelete,
	}
}

func newDiscardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard <seq>",
		Short: "Drop a queued write without sending it",
		Long: `Remove a queued write from the ledger. Its local effect stays until the
next sync replaces the table. Find sequence numbers with "storix status".`,
		Args: cobra.ExactArgs(1),
		RunE: runDiscard,
	}
}

// writeOutcome is the JSON form of a write command's result.
type writeOutcome struct {
	Table     string `json:"table"`
	ID        string `json:"id"`
	Sent      bool   `json:"sent"`
	Attempts  int    `json:"attempts,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

func runCreate(cmd *cobra.Command, args []string) error {
	table, err := parseTableArg(args[0])
	if err != nil {
		return err
	}

	fields, err := parseFields(cmd, args[1:])
	if err != nil {
		return err
	}

	return withWrite(cmd, table, func(ctx context.Context, e *sync.Engine) (string, error) {
		return e.CreateItem(ctx, table, fields)
	})
}

func runUpdate(cmd *cobra.Command, args []string) error {
	table, err := parseTableArg(args[0])
	if err != nil {
		return err
	}

	fields, err := parseFields(cmd, args[2:])
	if err != nil {
		return err
	}

	if len(fields) == 0 {
		return errors.New("nothing to update: give key=value fields or --data")
	}

	id := args[1]

	return withWrite(cmd, table, func(ctx context.Context, e *sync.Engine) (string, error) {
		return id, e.UpdateItem(ctx, table, id, fields)
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	table, err := parseTableArg(args[0])
	if err != nil {
		return err
	}

	id := args[1]

	return withWrite(cmd, table, func(ctx context.Context, e *sync.Engine) (string, error) {
		return id, e.DeleteItem(ctx, table, id)
	})
}

func runDiscard(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	seq, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid sequence number %q", args[0])
	}

	s, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.engine.DiscardPending(ctx, seq); err != nil {
		return err
	}

	cc.Statusf("Discarded pending write %d.\n", seq)

	return nil
}

// withWrite loads the current data so the write applies to a populated
// store, runs write, waits for the flush it triggered, and reports whether
// the write reached the remote.
func withWrite(
	cmd *cobra.Command, table store.Table,
	write func(ctx context.Context, e *sync.Engine) (string, error),
) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	s, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.engine.SyncAll(ctx); err != nil {
		return err
	}

	id, err := write(ctx, s.engine)
	if err != nil {
		return err
	}

	s.engine.WaitFlush()

	pending, err := s.engine.Pending(ctx)
	if err != nil {
		return err
	}

	outcome := writeOutcome{Table: string(table), ID: id, Sent: true}

	for _, m := range pending {
		if m.Table == table && m.ID == id {
			outcome.Sent = false
			outcome.Attempts = m.Attempts
			outcome.LastError = m.LastError
		}
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, outcome)
	}

	if outcome.Sent {
		cc.Statusf("%s/%s sent.\n", table, id)
		return nil
	}

	if outcome.LastError != "" {
		cc.Statusf("%s/%s queued, the remote rejected it: %s\n", table, id, outcome.LastError)
	} else {
		cc.Statusf("%s/%s queued, it will be sent on the next sync.\n", table, id)
	}

	return nil
}

// parseFields merges --data and key=value arguments into one record.
// Arguments win over --data for the same key.
func parseFields(cmd *cobra.Command, args []string) (store.Record, error) {
	fields := store.Record{}

	if data, _ := cmd.Flags().GetString("data"); data != "" {
		var fromFlag store.Record
		if err := decodeJSON(data, &fromFlag); err != nil {
			return nil, fmt.Errorf("--data: %w", err)
		}

		maps.Copy(fields, fromFlag)
	}

	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", errBadField, arg)
		}

		fields[key] = parseValue(raw)
	}

	return fields, nil
}

// parseValue keeps JSON-typed values and falls back to the raw string.
func parseValue(raw string) any {
	var v any
	if err := decodeJSON(raw, &v); err != nil {
		return raw
	}

	return v
}

func decodeJSON(s string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	if err := dec.Decode(v); err != nil {
		return err
	}

	if dec.More() {
		return errors.New("trailing data after JSON value")
	}

	return nil
}
