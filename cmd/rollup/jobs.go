package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
	"github.com/bobmcallan/rollup/internal/services/jobmanager"
)

type ingestRiskCmd struct {
	file      string
	batchSize int
	workers   int
	timeout   time.Duration
}

func (*ingestRiskCmd) Name() string     { return "ingest-risk" }
func (*ingestRiskCmd) Synopsis() string { return "run a risk-stats ingestion job from a CSV file" }
func (*ingestRiskCmd) Usage() string {
	return `rollup ingest-risk -f <stats.csv> [-batch n] [-workers n] [-timeout d]

  Ingests per-security risk statistics and waits for the job to finish.
  The CSV header must name ticker and as_of_date; asset_class, volatility,
  beta, duration and beta_to_gold are optional.
`
}

func (c *ingestRiskCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "f", "", "CSV file of risk statistics")
	f.IntVar(&c.batchSize, "batch", 0, "records per storage batch (0 for the configured default)")
	f.IntVar(&c.workers, "workers", 0, "parallel upsert workers (0 for the configured default)")
	f.DurationVar(&c.timeout, "timeout", 30*time.Minute, "give up waiting after this long")
}

func (c *ingestRiskCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.file == "" {
		return usage("-f is required")
	}
	in, err := os.Open(c.file)
	if err != nil {
		return fail("%v", err)
	}
	defer in.Close()

	a, err := openApp()
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()
	a.JobManager.StartAttached()

	id, err := a.JobManager.Submit(ctx, jobmanager.NewCSVSource(in, c.file), interfaces.SubmitOptions{
		BatchSize: c.batchSize,
		Workers:   c.workers,
	})
	if err != nil {
		return fail("%v", err)
	}
	fmt.Fprintf(stdout, "Submitted job %s\n", id)

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	job, err := a.JobManager.Wait(waitCtx, id, 250*time.Millisecond)
	if err != nil {
		return fail("waiting for job %s: %v", id, err)
	}
	if job.Status != models.JobStatusCompleted {
		return fail("job %s failed: %s", id, job.ErrorMessage)
	}
	fmt.Fprintf(stdout, "Job %s completed: %d records in %d batches (%dms)\n",
		id, job.TotalRecords, job.BatchesCompleted, job.DurationMS)
	return subcommands.ExitSuccess
}

type jobsCmd struct {
	limit int
	id    string
}

func (*jobsCmd) Name() string     { return "jobs" }
func (*jobsCmd) Synopsis() string { return "list risk-stats ingestion jobs" }
func (*jobsCmd) Usage() string {
	return `rollup jobs [-n limit] [-id <job id>]

  Lists the most recent ingestion jobs, or prints one job as JSON.
`
}

func (c *jobsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 20, "number of jobs to list")
	f.StringVar(&c.id, "id", "", "print a single job")
}

func (c *jobsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.limit < 0 {
		return usage("-n must not be negative")
	}
	a, err := openApp()
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	if c.id != "" {
		job, err := a.JobManager.GetStatus(ctx, c.id)
		if err != nil {
			return fail("%v", err)
		}
		return writeJSON(stdout, job)
	}

	jobs, err := a.JobManager.ListJobs(ctx, c.limit)
	if err != nil {
		return fail("%v", err)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(stdout, "No jobs")
		return subcommands.ExitSuccess
	}
	for _, job := range jobs {
		fmt.Fprintf(stdout, "%-36s  %-9s  %5.1f%%  %8d  %s\n",
			job.ID, job.Status, job.ProgressEstimate, job.ProcessedRecords, job.Source)
	}
	return subcommands.ExitSuccess
}
