package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// command is one node of the CLI tree
type command struct {
	name    string
	summary string
	usage   string

	// flags builds the command's flag set; nil means the command takes none
	flags func() *pflag.FlagSet

	subcommands []*command

	// run receives the positional arguments left after flag parsing
	run func(args []string) error

	parent *command
}

// execute dispatches args to a subcommand or parses flags and runs c
func (c *command) execute(args []string, help io.Writer) error {
	if len(args) > 0 && isHelpArg(args[0]) {
		c.printHelp(help)
		return nil
	}

	if len(c.subcommands) > 0 {
		if len(args) == 0 || strings.HasPrefix(args[0], "-") {
			if c.run == nil {
				c.printHelp(help)
				return fmt.Errorf("%s: subcommand required", c.fullName())
			}
		} else {
			for _, sub := range c.subcommands {
				if sub.name == args[0] {
					sub.parent = c
					return sub.execute(args[1:], help)
				}
			}
			if c.run == nil {
				return fmt.Errorf("unknown command %q\n\nRun '%s --help' for usage", args[0], c.fullName())
			}
		}
	}

	if c.flags != nil {
		fs := c.flags()
		fs.SetOutput(io.Discard)
		if err := fs.Parse(args); err != nil {
			if err == pflag.ErrHelp {
				c.printHelp(help)
				return nil
			}
			return fmt.Errorf("%w\n\nRun '%s --help' for usage", err, c.fullName())
		}
		args = fs.Args()
	}

	if c.run == nil {
		c.printHelp(help)
		return fmt.Errorf("no action defined for %q", c.fullName())
	}
	return c.run(args)
}

func (c *command) printHelp(w io.Writer) {
	if c.summary != "" {
		fmt.Fprintf(w, "%s\n\n", c.summary)
	}

	switch {
	case c.usage != "":
		fmt.Fprintf(w, "Usage:\n  %s\n", c.usage)
	case len(c.subcommands) > 0:
		fmt.Fprintf(w, "Usage:\n  %s <command> [flags]\n", c.fullName())
	default:
		fmt.Fprintf(w, "Usage:\n  %s [flags]\n", c.fullName())
	}

	if len(c.subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.subcommands {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.name, sub.summary)
		}
		tw.Flush()
	}

	if c.flags != nil {
		var sb strings.Builder
		fs := c.flags()
		fs.SetOutput(&sb)
		fs.PrintDefaults()
		if sb.Len() > 0 {
			fmt.Fprintf(w, "\nFlags:\n%s", sb.String())
		}
	}
}

func (c *command) fullName() string {
	if c.parent == nil {
		return c.name
	}
	return c.parent.fullName() + " " + c.name
}

func isHelpArg(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}

// requireArgs checks the positional argument count
func requireArgs(args []string, n int, what string) error {
	if len(args) != n {
		return fmt.Errorf("expected %s, got %d argument(s)", what, len(args))
	}
	return nil
}
