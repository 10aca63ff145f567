// Package main implements the semrelay command-line client. It reads local event
// data and relays it to a remote ingestion gateway over HTTP, or holds a live
// WebSocket session with the gateway.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/semrelay/client"
	"github.com/c360/semrelay/config"
	"github.com/c360/semrelay/errors"
)

// Build information
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "semrelay"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	a := &app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	if err := a.run(os.Args[1:]); err != nil {
		a.errConsole.failure("%v", err)
		os.Exit(1)
	}
}

// app carries the process-wide state every subcommand shares
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	opts *globalOptions
	// console writes command output to stdout; errConsole writes notices to stderr
	console    *console
	errConsole *console
	logger     *slog.Logger

	// workspacesPath overrides the default profile store location
	workspacesPath string
	// workDir overrides the directory searched for configuration files
	workDir string
}

func (a *app) run(args []string) error {
	if a.console == nil {
		a.console = newConsole(a.stdout)
	}
	if a.errConsole == nil {
		a.errConsole = newConsole(a.stderr)
	}

	opts, rest, err := parseGlobalFlags(args)
	if err != nil {
		return err
	}
	a.opts = opts

	if opts.ShowVersion {
		a.console.printf("%s version %s (%s)\n", appName, Version, BuildTime)
		return nil
	}

	a.logger = setupLogger(opts.LogLevel, opts.LogFormat, a.stderr)
	slog.SetDefault(a.logger)

	root := a.commands()
	if opts.ShowHelp || len(rest) == 0 {
		root.printHelp(a.stdout)
		a.printGlobalHelp()
		return nil
	}
	return root.execute(rest, a.stdout)
}

func (a *app) commands() *command {
	return &command{
		name:    appName,
		summary: "Relay local event data to a semrelay ingestion gateway",
		subcommands: []*command{
			a.initCommand(),
			a.streamCommand(),
			a.sendCommand(),
			a.liveCommand(),
			a.pipelineCommand(),
			a.statusCommand(),
			a.workspaceCommand(),
		},
	}
}

func (a *app) printGlobalHelp() {
	var opts globalOptions
	fs := globalFlagSet(&opts)
	a.console.printf("\nGlobal flags:\n%s", fs.FlagUsages())
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func (a *app) signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (a *app) workspaces() (*config.Workspaces, error) {
	path := a.workspacesPath
	if path == "" {
		p, err := config.DefaultWorkspacesPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return config.LoadWorkspaces(path)
}

// loadConfig resolves the configuration once for the running command:
// defaults, then the selected workspace profile, then the config file, then
// SEMRELAY_* environment variables.
func (a *app) loadConfig() (*config.Config, error) {
	profile, err := a.selectedProfile()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Resolve(config.Options{
		File:    a.opts.ConfigPath,
		Dir:     a.workDir,
		Profile: profile,
	})
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Configuration loaded", "config", cfg.String())
	return cfg, nil
}

func (a *app) selectedProfile() (*config.Profile, error) {
	ws, err := a.workspaces()
	if err != nil {
		return nil, err
	}

	if a.opts.Workspace != "" {
		p, ok := ws.Profiles[a.opts.Workspace]
		if !ok {
			return nil, errors.WrapFatal(
				fmt.Errorf("%w: workspace %q", errors.ErrNotFound, a.opts.Workspace),
				"CLI", "loadConfig", "select workspace")
		}
		return &p, nil
	}

	if p, ok := ws.CurrentProfile(); ok {
		return p, nil
	}
	return nil, nil
}

func (a *app) newClient(cfg *config.Config) (*client.Client, error) {
	return client.New(cfg,
		client.WithLogger(a.logger),
		client.WithUserAgent(appName+"/"+Version),
	)
}
