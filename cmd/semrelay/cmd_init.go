package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/c360/semrelay/config"
	"github.com/c360/semrelay/errors"
)

func (a *app) initCommand() *command {
	var (
		apiKey    string
		workspace string
		ingestURL string
		output    string
		format    string
		force     bool
	)

	return &command{
		name:    "init",
		summary: "Create a configuration file interactively",
		usage:   "semrelay init [--api-key KEY] [--workspace NAME] [--force]",
		flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("init", pflag.ContinueOnError)
			fs.StringVar(&apiKey, "api-key", "", "API key (prompted when omitted)")
			fs.StringVar(&workspace, "workspace", "", "Workspace identifier (prompted when omitted)")
			fs.StringVar(&ingestURL, "ingest-url", "", "Gateway ingest URL (default "+config.DefaultIngestURL+")")
			fs.StringVarP(&output, "output", "o", "", "File to write (default ./.semrelayrc.json)")
			fs.StringVar(&format, "format", "json", "File format when --output is not given: json, yaml")
			fs.BoolVar(&force, "force", false, "Overwrite an existing file")
			return fs
		},
		run: func(args []string) error {
			if err := requireArgs(args, 0, "no arguments"); err != nil {
				return err
			}

			path, err := a.initPath(output, format)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return errors.WrapInvalid(fmt.Errorf("%s already exists (use --force to overwrite)", path),
					"CLI", "init", "check existing file")
			}

			in := bufio.NewReader(a.stdin)
			cfg := config.Default()

			if apiKey == "" {
				if apiKey, err = a.promptSecret(in, "API key: "); err != nil {
					return err
				}
			}
			if workspace == "" {
				if workspace, err = a.prompt(in, "Workspace: ", ""); err != nil {
					return err
				}
			}
			if ingestURL == "" {
				if ingestURL, err = a.prompt(in, "Ingest URL", config.DefaultIngestURL); err != nil {
					return err
				}
			}

			cfg.APIKey = apiKey
			cfg.Workspace = workspace
			cfg.IngestURL = ingestURL
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := cfg.SaveToFile(path); err != nil {
				return err
			}

			a.console.success("Configuration written to %s", path)
			a.console.info("Workspace %s, key %s", cfg.Workspace, config.MaskKey(cfg.APIKey))
			return nil
		},
	}
}

func (a *app) initPath(output, format string) (string, error) {
	if output != "" {
		return output, nil
	}
	dir := a.workDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, "CLI", "init", "get working directory")
		}
		dir = wd
	}

	switch strings.ToLower(format) {
	case "json":
		return config.DefaultPath(dir), nil
	case "yaml", "yml":
		return filepath.Join(dir, ".semrelayrc.yaml"), nil
	default:
		return "", errors.WrapInvalid(fmt.Errorf("unsupported format %q", format), "CLI", "init", "select format")
	}
}

// prompt reads one line; label gets a "[default]" suffix when def is set
func (a *app) prompt(in *bufio.Reader, label, def string) (string, error) {
	if def != "" {
		label = fmt.Sprintf("%s [%s]: ", label, def)
	}
	fmt.Fprint(a.stderr, label)

	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.Wrap(err, "CLI", "prompt", "read input")
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// promptSecret reads a value without echo when stdin is a terminal
func (a *app) promptSecret(in *bufio.Reader, label string) (string, error) {
	f, ok := a.stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return a.prompt(in, label, "")
	}

	fmt.Fprint(a.stderr, label)
	secret, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(a.stderr)
	if err != nil {
		return "", errors.Wrap(err, "CLI", "promptSecret", "read secret")
	}
	return strings.TrimSpace(string(secret)), nil
}
