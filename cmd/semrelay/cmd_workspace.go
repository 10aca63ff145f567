package main

import (
	"bufio"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/c360/semrelay/config"
)

func (a *app) workspaceCommand() *command {
	return &command{
		name:    "workspace",
		summary: "Manage stored workspace profiles",
		subcommands: []*command{
			a.workspaceListCommand(),
			a.workspaceAddCommand(),
			a.workspaceUseCommand(),
			a.workspaceRemoveCommand(),
		},
	}
}

func (a *app) workspaceListCommand() *command {
	return &command{
		name:    "list",
		summary: "List workspace profiles",
		run: func(args []string) error {
			if err := requireArgs(args, 0, "no arguments"); err != nil {
				return err
			}
			ws, err := a.workspaces()
			if err != nil {
				return err
			}

			profiles := ws.List()
			if len(profiles) == 0 {
				a.console.info("No workspaces configured (add one with 'semrelay workspace add NAME')")
				return nil
			}

			tw := tabwriter.NewWriter(a.console.writer(), 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "\tNAME\tKEY\tINGEST URL\tDESCRIPTION")
			for _, p := range profiles {
				marker := ""
				if p.Name == ws.Current {
					marker = "*"
				}
				ingestURL := p.IngestURL
				if ingestURL == "" {
					ingestURL = config.DefaultIngestURL
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", marker, p.Name, config.MaskKey(p.APIKey), ingestURL, p.Description)
			}
			return tw.Flush()
		},
	}
}

func (a *app) workspaceAddCommand() *command {
	var (
		apiKey      string
		ingestURL   string
		description string
		use         bool
	)

	return &command{
		name:    "add",
		summary: "Add or replace a workspace profile",
		usage:   "semrelay workspace add NAME [--api-key KEY] [--ingest-url URL] [--use]",
		flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("add", pflag.ContinueOnError)
			fs.StringVar(&apiKey, "api-key", "", "API key (prompted when omitted)")
			fs.StringVar(&ingestURL, "ingest-url", "", "Gateway ingest URL for this workspace")
			fs.StringVar(&description, "description", "", "Free-form description")
			fs.BoolVar(&use, "use", false, "Make this the current workspace")
			return fs
		},
		run: func(args []string) error {
			if err := requireArgs(args, 1, "a workspace name"); err != nil {
				return err
			}
			name := args[0]

			ws, err := a.workspaces()
			if err != nil {
				return err
			}

			if apiKey == "" {
				if apiKey, err = a.promptSecret(bufio.NewReader(a.stdin), "API key: "); err != nil {
					return err
				}
			}

			profile := config.Profile{
				Name:        name,
				APIKey:      apiKey,
				IngestURL:   ingestURL,
				Description: description,
			}
			if err := ws.Add(profile); err != nil {
				return err
			}
			if use {
				if err := ws.Use(name); err != nil {
					return err
				}
			}
			if err := ws.Save(); err != nil {
				return err
			}

			a.console.success("Workspace %s saved", name)
			if ws.Current == name {
				a.console.info("Current workspace: %s", name)
			}
			return nil
		},
	}
}

func (a *app) workspaceUseCommand() *command {
	return &command{
		name:    "use",
		summary: "Select the current workspace",
		usage:   "semrelay workspace use NAME",
		run: func(args []string) error {
			if err := requireArgs(args, 1, "a workspace name"); err != nil {
				return err
			}
			ws, err := a.workspaces()
			if err != nil {
				return err
			}
			if err := ws.Use(args[0]); err != nil {
				return err
			}
			if err := ws.Save(); err != nil {
				return err
			}
			a.console.success("Current workspace: %s", args[0])
			return nil
		},
	}
}

func (a *app) workspaceRemoveCommand() *command {
	return &command{
		name:    "remove",
		summary: "Delete a workspace profile",
		usage:   "semrelay workspace remove NAME",
		run: func(args []string) error {
			if err := requireArgs(args, 1, "a workspace name"); err != nil {
				return err
			}
			ws, err := a.workspaces()
			if err != nil {
				return err
			}
			if err := ws.Remove(args[0]); err != nil {
				return err
			}
			if err := ws.Save(); err != nil {
				return err
			}
			a.console.success("Workspace %s removed", args[0])
			return nil
		},
	}
}
