package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/c360/semrelay/client"
	"github.com/c360/semrelay/errors"
	"github.com/c360/semrelay/event"
	"github.com/c360/semrelay/pkg/retry"
	"github.com/c360/semrelay/validation"
)

func (a *app) sendCommand() *command {
	var (
		eventType string
		data      string
		metadata  string
		pipeline  string
		dryRun    bool
	)

	return &command{
		name:    "send",
		summary: "Send a single event",
		usage:   `semrelay send --type TYPE [--data '{"k":"v"}'] [--metadata '{...}'] [--pipeline ID] [--dry-run]`,
		flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("send", pflag.ContinueOnError)
			fs.StringVarP(&eventType, "type", "t", "", "Event type (required)")
			fs.StringVarP(&data, "data", "d", "{}", "Event data as JSON")
			fs.StringVarP(&metadata, "metadata", "m", "", "Event metadata as a JSON object")
			fs.StringVarP(&pipeline, "pipeline", "p", "", "Pipeline ID")
			fs.BoolVar(&dryRun, "dry-run", false, "Print the event and its signature without sending")
			return fs
		},
		run: func(args []string) error {
			if err := requireArgs(args, 0, "no arguments"); err != nil {
				return err
			}

			ev, err := buildEvent(eventType, data, metadata)
			if err != nil {
				return err
			}
			if result := validation.ValidateEvent(ev); !result.Valid {
				return result.Err()
			}
			if dryRun {
				return a.printSigned(ev)
			}

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			c, err := a.newClient(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := a.signalContext()
			defer cancel()

			if err := a.sendOne(ctx, c, ev, pipeline); err != nil {
				return err
			}
			a.console.success("Event %s sent", eventType)
			return nil
		},
	}
}

// sendOne posts ev with the default backoff, retrying only failures that look
// transient. The first post counts as attempt one.
func (a *app) sendOne(ctx context.Context, c *client.Client, ev event.Event, pipeline string) error {
	_, err := retryTransient(ctx, a.logger, retry.DefaultConfig(), "send",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.Ingest(ctx, ev, pipeline)
		})
	return err
}

// printSigned writes ev and its signature as JSON lines
func (a *app) printSigned(ev event.Event) error {
	sig, err := event.Sign(ev)
	if err != nil {
		return err
	}
	out, err := json.Marshal(sig)
	if err != nil {
		return errors.Wrap(err, "CLI", "send", "encode signature")
	}
	a.console.println(ev.String())
	a.console.println(string(out))
	return nil
}

func buildEvent(eventType, data, metadata string) (event.Event, error) {
	if eventType == "" {
		return event.Event{}, errors.WrapInvalid(fmt.Errorf("--type is required"), "CLI", "send", "build event")
	}
	if !json.Valid([]byte(data)) {
		return event.Event{}, errors.WrapInvalid(
			fmt.Errorf("%w: --data is not valid JSON", errors.ErrInvalidData), "CLI", "send", "build event")
	}

	var meta map[string]any
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &meta); err != nil {
			return event.Event{}, errors.WrapInvalid(
				fmt.Errorf("%w: --metadata must be a JSON object", errors.ErrInvalidData), "CLI", "send", "build event")
		}
	}

	return event.New(eventType, json.RawMessage(data), meta)
}
