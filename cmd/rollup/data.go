package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/bobmcallan/rollup/internal/models"
)

type ownershipCmd struct {
	file string
}

func (*ownershipCmd) Name() string     { return "ownership" }
func (*ownershipCmd) Synopsis() string { return "replace the ownership hierarchy from a JSON file" }
func (*ownershipCmd) Usage() string {
	return `rollup ownership -f <rows.json>

  Replaces the ownership source with the rows in the file. The current
  hierarchy is kept when any row is malformed.
`
}

func (c *ownershipCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "f", "", "JSON array of ownership rows")
}

func (c *ownershipCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.file == "" {
		return usage("-f is required")
	}
	var rows []*models.OwnershipRow
	if err := readJSONFile(c.file, &rows); err != nil {
		return fail("%v", err)
	}

	a, err := openApp()
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	h, err := a.OwnershipService.ReplaceRows(ctx, rows)
	if err != nil {
		return fail("%v", err)
	}
	tree, err := h.Tree("")
	if err != nil {
		return fail("%v", err)
	}
	fmt.Fprintf(stdout, "Loaded %d ownership rows, %d clients\n", len(rows), len(tree.Children))
	return subcommands.ExitSuccess
}

type positionsCmd struct {
	date string
	file string
}

func (*positionsCmd) Name() string     { return "positions" }
func (*positionsCmd) Synopsis() string { return "ingest a position snapshot from a JSON file" }
func (*positionsCmd) Usage() string {
	return `rollup positions -d <date> -f <positions.json>

  Stores the positions held on the given date. A date can be ingested once.
`
}

func (c *positionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "snapshot date (YYYY-MM-DD)")
	f.StringVar(&c.file, "f", "", "JSON array of positions")
}

func (c *positionsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	date, err := models.ParseDate(c.date)
	if err != nil {
		return usage("%v", err)
	}
	if c.file == "" {
		return usage("-f is required")
	}
	var inputs []*models.PositionInput
	if err := readJSONFile(c.file, &inputs); err != nil {
		return fail("%v", err)
	}

	a, err := openApp()
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	info, err := a.PositionService.IngestSnapshot(ctx, date, inputs)
	if err != nil {
		return fail("%v", err)
	}
	return writeJSON(stdout, info)
}

func readJSONFile(name string, v interface{}) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
