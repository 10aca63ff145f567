package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/c360/semrelay/errors"
	"github.com/c360/semrelay/ingest"
	"github.com/c360/semrelay/pkg/retry"
	"github.com/c360/semrelay/sender"
)

func (a *app) streamCommand() *command {
	var (
		file      string
		pipeline  string
		batchSize int
		rateLimit float64
		attempts  int
		quiet     bool
	)

	var fs *pflag.FlagSet
	return &command{
		name:    "stream",
		summary: "Validate newline-delimited JSON events and send them in batches",
		usage:   "semrelay stream [--file FILE] [--pipeline ID] [--batch-size N]",
		flags: func() *pflag.FlagSet {
			fs = pflag.NewFlagSet("stream", pflag.ContinueOnError)
			fs.StringVarP(&file, "file", "f", "-", "Input file, '-' for stdin")
			fs.StringVarP(&pipeline, "pipeline", "p", "", "Pipeline ID sent with every batch")
			fs.IntVarP(&batchSize, "batch-size", "b", 0, "Events per request (default from config)")
			fs.Float64Var(&rateLimit, "rate", 0, "Maximum batches per second, 0 for unlimited (default from config)")
			fs.IntVar(&attempts, "retries",
				getEnvInt("SEMRELAY_RETRY_ATTEMPTS", retry.DefaultConfig().MaxAttempts),
				"Attempts per batch (env: SEMRELAY_RETRY_ATTEMPTS)")
			fs.BoolVarP(&quiet, "quiet", "q", false, "Only print the summary")
			return fs
		},
		run: func(args []string) error {
			if err := requireArgs(args, 0, "no arguments"); err != nil {
				return err
			}

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if fs.Changed("batch-size") {
				cfg.BatchSize = batchSize
			}
			if fs.Changed("rate") {
				cfg.MaxBatchesPerSecond = rateLimit
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			src, closeSrc, err := a.openInput(file)
			if err != nil {
				return err
			}
			defer closeSrc()

			c, err := a.newClient(cfg)
			if err != nil {
				return err
			}

			retryCfg := retry.DefaultConfig()
			retryCfg.MaxAttempts = attempts

			opts := append(sender.FromConfig(cfg),
				sender.WithRetryConfig(retryCfg),
				sender.WithLogger(a.logger),
			)
			if !quiet {
				opts = append(opts, sender.WithProgress(a.printProgress))
			}
			snd, err := sender.New(c, opts...)
			if err != nil {
				return err
			}

			ctx, cancel := a.signalContext()
			defer cancel()

			report, err := ingest.Run(ctx, src, snd, ingest.Options{PipelineID: pipeline, Logger: a.logger})
			if report != nil {
				a.printReport(report)
			}
			if err != nil {
				return err
			}
			if !report.Send.OK() {
				return fmt.Errorf("%d of %d events were not delivered", report.Send.Failed+report.Send.Skipped, report.Events)
			}
			return nil
		},
	}
}

func (a *app) openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return a.stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.WrapFatal(err, "CLI", "stream", "open input")
	}
	return f, func() { _ = f.Close() }, nil
}

func (a *app) printProgress(p sender.Progress) {
	if p.Delivered {
		a.console.success("Batch %d/%d: %d events sent", p.Batch, p.Total, p.Size)
		return
	}
	a.console.failure("Batch %d/%d: %d events failed: %v", p.Batch, p.Total, p.Size, p.Err)
}

func (a *app) printReport(r *ingest.Report) {
	if r.ParseErrors > 0 {
		a.console.warning("Skipped %d malformed line(s)", r.ParseErrors)
	}
	for _, w := range r.Validation.Warnings {
		a.console.warning("%s", w)
	}
	if !r.Validation.Valid {
		a.console.failure("Validation failed with %d error(s):", len(r.Validation.Errors))
		for _, e := range r.Validation.Errors {
			a.console.printf("    %s\n", e)
		}
		return
	}

	if r.Send.Batches == 0 {
		return
	}
	summary := fmt.Sprintf("Sent %d/%d events in %d batch(es) (%s)",
		r.Send.Succeeded, r.Events, r.Send.Batches, r.Send.Duration.Round(time.Millisecond))
	if r.Send.OK() {
		a.console.success("%s", summary)
		return
	}
	a.console.failure("%s, %d failed, %d skipped", summary, r.Send.Failed, r.Send.Skipped)
}
