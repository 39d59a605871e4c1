package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/google/subcommands"

	"github.com/bobmcallan/rollup/internal/models"
)

type treeCmd struct {
	root string
	json bool
}

func (*treeCmd) Name() string     { return "tree" }
func (*treeCmd) Synopsis() string { return "print the ownership hierarchy" }
func (*treeCmd) Usage() string {
	return `rollup tree [-root <key>] [-json]

  Prints the ownership hierarchy, optionally starting at a client, group or portfolio key.
`
}

func (c *treeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.root, "root", "", "key of the subtree root")
	f.BoolVar(&c.json, "json", false, "print the tree as JSON")
}

func (c *treeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	tree, err := a.OwnershipService.GetOwnershipTree(ctx, c.root)
	if err != nil {
		return fail("%v", err)
	}
	if c.json {
		return writeJSON(stdout, tree)
	}
	printTree(stdout, tree, 0)
	return subcommands.ExitSuccess
}

func printTree(w io.Writer, t *models.OwnershipTree, depth int) {
	fmt.Fprintf(w, "%s%s (%s)\n", strings.Repeat("  ", depth), t.DisplayName, t.Type)
	for _, child := range t.Children {
		printTree(w, child, depth+1)
	}
}
