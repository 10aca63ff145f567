package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/c360/semrelay/config"
	"github.com/c360/semrelay/errors"
	"github.com/c360/semrelay/health"
)

func (a *app) statusCommand() *command {
	var asJSON bool

	return &command{
		name:    "status",
		summary: "Check configuration and gateway health",
		flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("status", pflag.ContinueOnError)
			fs.BoolVar(&asJSON, "json", false, "Print the status as JSON")
			return fs
		},
		run: func(args []string) error {
			if err := requireArgs(args, 0, "no arguments"); err != nil {
				return err
			}

			var checks []health.Status

			cfg, err := a.loadConfig()
			if err != nil {
				checks = append(checks, health.FromError("config", err))
			} else {
				checks = append(checks, health.NewHealthy("config",
					fmt.Sprintf("workspace %s, key %s", cfg.Workspace, config.MaskKey(cfg.APIKey))))
				checks = append(checks, a.gatewayStatus(cfg))
			}

			overall := health.Aggregate(appName, checks)
			overall.Version = Version

			if asJSON {
				out, err := json.MarshalIndent(overall, "", "  ")
				if err != nil {
					return errors.Wrap(err, "CLI", "status", "encode status")
				}
				a.console.println(string(out))
			} else {
				a.printStatus(overall)
			}

			if overall.IsUnhealthy() {
				return fmt.Errorf("%s", overall.Message)
			}
			return nil
		},
	}
}

func (a *app) gatewayStatus(cfg *config.Config) health.Status {
	c, err := a.newClient(cfg)
	if err != nil {
		return health.FromError("gateway", err)
	}

	ctx, cancel := a.signalContext()
	defer cancel()

	s, err := c.Health(ctx)
	if err != nil {
		return health.FromError("gateway", err)
	}
	return *s
}

func (a *app) printStatus(s health.Status) {
	for _, sub := range s.SubStatuses {
		line := fmt.Sprintf("%-8s %s", sub.Component, sub.Message)
		if sub.Version != "" {
			line += " (" + sub.Version + ")"
		}
		switch {
		case sub.IsHealthy():
			a.console.success("%s", line)
		case sub.IsDegraded():
			a.console.warning("%s", line)
		default:
			a.console.failure("%s", line)
		}
	}
}
