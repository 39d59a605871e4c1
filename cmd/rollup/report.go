package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/PaesslerAG/jsonpath"
	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"

	"github.com/bobmcallan/rollup/internal/models"
	"github.com/bobmcallan/rollup/internal/services/report"
)

type reportCmd struct {
	date   string
	level  string
	key    string
	format string
	query  string
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "print the rollup report for a node and date" }
func (*reportCmd) Usage() string {
	return `rollup report -d <date> [-level <level> -key <key>] [-format markdown|terminal|json] [-q <jsonpath>]

  Prints the aggregated report for one node of the ownership hierarchy.
  Without -level the "All Clients" root is reported. -q prints a single
  value of the JSON report, e.g. -q '$.metrics.beta'.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "report date (YYYY-MM-DD)")
	f.StringVar(&c.level, "level", "root", "account, portfolio, group, client or root")
	f.StringVar(&c.key, "key", "", "node key at the given level")
	f.StringVar(&c.format, "format", "markdown", "output format: markdown, terminal or json")
	f.StringVar(&c.query, "q", "", "JSONPath expression selecting one value of the report")
}

func (c *reportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	date, err := models.ParseDate(c.date)
	if err != nil {
		return usage("%v", err)
	}
	level, ok := models.ParseNodeType(c.level)
	if !ok {
		return usage("unknown level %q", c.level)
	}
	if level != models.NodeTypeRoot && c.key == "" {
		return usage("-key is required for level %s", level)
	}
	switch c.format {
	case "markdown", "terminal", "json":
	default:
		return usage("unknown format %q", c.format)
	}

	a, err := openApp()
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	rep, err := a.ReportService.GetReport(ctx, date, level, c.key)
	if err != nil {
		return fail("%v", err)
	}

	if c.query != "" {
		val, err := queryReport(rep, c.query)
		if err != nil {
			return fail("%v", err)
		}
		return writeJSON(stdout, val)
	}

	switch c.format {
	case "json":
		return writeJSON(stdout, rep)
	case "terminal":
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
		if err != nil {
			return fail("%v", err)
		}
		out, err := r.Render(report.FormatMarkdown(rep, a.Config.DisplayCurrency))
		if err != nil {
			return fail("%v", err)
		}
		fmt.Fprint(stdout, out)
	default:
		fmt.Fprint(stdout, report.FormatMarkdown(rep, a.Config.DisplayCurrency))
	}
	return subcommands.ExitSuccess
}

// queryReport evaluates a JSONPath expression against the report's JSON form.
func queryReport(rep *models.Report, path string) (interface{}, error) {
	data, err := json.Marshal(rep)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	val, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", path, err)
	}
	// Filters yield a list; keep the first match.
	if list, ok := val.([]interface{}); ok && len(list) > 0 {
		val = list[0]
	}
	return val, nil
}

func writeJSON(w io.Writer, v interface{}) subcommands.ExitStatus {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail("%v", err)
	}
	return subcommands.ExitSuccess
}
