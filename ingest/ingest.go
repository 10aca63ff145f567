// Package ingest runs the batch path end to end: read newline-delimited events,
// validate them as one batch, then hand them to the sender.
//
// A run aborts before any network activity only when validation rejects the
// batch. Malformed input lines and undeliverable batches are reported in the
// Report without stopping the run.
package ingest

import (
	"context"
	"io"
	"log/slog"

	"github.com/c360/semrelay/errors"
	"github.com/c360/semrelay/event"
	"github.com/c360/semrelay/sender"
	"github.com/c360/semrelay/validation"
)

// Options tunes a Run
type Options struct {
	PipelineID string
	Logger     *slog.Logger
}

// Report summarizes one Run
type Report struct {
	Lines       int
	Events      int
	ParseErrors int
	Validation  validation.Result
	Send        sender.Result
}

// Delivered reports whether every parsed event reached the gateway
func (r *Report) Delivered() bool {
	return r.Validation.Valid && r.Events > 0 && r.Send.OK()
}

// Run reads src to exhaustion, validates the events and sends them through snd
func Run(ctx context.Context, src io.Reader, snd *sender.Sender, opts Options) (*Report, error) {
	if snd == nil {
		return nil, errors.WrapFatal(errors.ErrInvalidConfig, "Ingest", "Run", "sender not provided")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	report := &Report{}

	rd := event.NewReader(src, event.WithLogger(logger))
	var events []event.Event
	for rd.Next() {
		events = append(events, rd.Event())
	}
	report.Lines = rd.Lines()
	report.ParseErrors = rd.ParseErrors()
	report.Events = len(events)
	if err := rd.Err(); err != nil {
		return report, err
	}

	logger.Info("Input read", "lines", report.Lines, "events", report.Events, "parse_errors", report.ParseErrors)

	report.Validation = validation.ValidateBatch(events)
	for _, w := range report.Validation.Warnings {
		logger.Warn("Validation warning", "warning", w)
	}
	if !report.Validation.Valid {
		for _, e := range report.Validation.Errors {
			logger.Error("Validation error", "error", e)
		}
		return report, report.Validation.Err()
	}

	result, err := snd.Send(ctx, events, opts.PipelineID)
	report.Send = result
	if err != nil {
		return report, err
	}
	return report, nil
}
