package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/c360/semrelay/client"
	"github.com/c360/semrelay/errors"
	"github.com/c360/semrelay/pkg/retry"
	"github.com/c360/semrelay/validation"
)

const maxPipelineSize = 1 << 20

func (a *app) pipelineCommand() *command {
	return &command{
		name:    "pipeline",
		summary: "Manage pipeline definitions",
		subcommands: []*command{
			a.pipelinePushCommand(),
			a.pipelineListCommand(),
			a.pipelineShowCommand(),
		},
	}
}

func (a *app) pipelinePushCommand() *command {
	var dryRun bool

	return &command{
		name:    "push",
		summary: "Validate and upload a pipeline definition (JSON or YAML)",
		usage:   "semrelay pipeline push FILE [--dry-run]",
		flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("push", pflag.ContinueOnError)
			fs.BoolVar(&dryRun, "dry-run", false, "Validate only, do not upload")
			return fs
		},
		run: func(args []string) error {
			if err := requireArgs(args, 1, "a pipeline file"); err != nil {
				return err
			}

			def, err := readPipelineFile(args[0])
			if err != nil {
				return err
			}

			result := validation.ValidatePipeline(def)
			for _, w := range result.Warnings {
				a.console.warning("%s", w)
			}
			if !result.Valid {
				a.console.failure("Pipeline definition is invalid:")
				for _, e := range result.Errors {
					a.console.printf("    %s\n", e)
				}
				return result.Err()
			}
			if dryRun {
				a.console.success("Pipeline definition is valid")
				return nil
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

			p, err := c.PushPipeline(ctx, def)
			if err != nil {
				return err
			}
			a.console.success("Pipeline %s pushed (id %s)", p.Name, p.ID)
			return nil
		},
	}
}

func (a *app) pipelineListCommand() *command {
	return &command{
		name:    "list",
		summary: "List pipelines in the workspace",
		run: func(args []string) error {
			if err := requireArgs(args, 0, "no arguments"); err != nil {
				return err
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

			pipelines, err := retryTransient(ctx, a.logger, retry.Patient(), "pipeline list", c.ListPipelines)
			if err != nil {
				return err
			}
			if len(pipelines) == 0 {
				a.console.info("No pipelines in workspace %s", cfg.Workspace)
				return nil
			}

			tw := tabwriter.NewWriter(a.console.writer(), 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tVERSION\tSTATUS")
			for _, p := range pipelines {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Version, p.Status)
			}
			return tw.Flush()
		},
	}
}

func (a *app) pipelineShowCommand() *command {
	return &command{
		name:    "show",
		summary: "Show one pipeline",
		usage:   "semrelay pipeline show ID",
		run: func(args []string) error {
			if err := requireArgs(args, 1, "a pipeline ID"); err != nil {
				return err
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

			p, err := retryTransient(ctx, a.logger, retry.Patient(), "pipeline show",
				func(ctx context.Context) (*client.Pipeline, error) {
					return c.GetPipeline(ctx, args[0])
				})
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(p, "", "  ")
			if err != nil {
				return errors.Wrap(err, "CLI", "pipeline show", "encode pipeline")
			}
			a.console.println(string(out))
			return nil
		},
	}
}

// readPipelineFile decodes a pipeline definition. YAML is chosen by extension;
// everything else is JSON, comments allowed.
func readPipelineFile(path string) (any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "CLI", "pipeline push", "stat pipeline file")
	}
	if info.Size() > maxPipelineSize {
		return nil, errors.WrapInvalid(fmt.Errorf("pipeline file too large: %d bytes", info.Size()),
			"CLI", "pipeline push", "size check")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "CLI", "pipeline push", "read pipeline file")
	}

	var def any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
				"CLI", "pipeline push", "parse YAML")
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &def); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
				"CLI", "pipeline push", "parse JSON")
		}
	}
	return def, nil
}
