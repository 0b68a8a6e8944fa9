// Package main provides the beacon CLI entrypoint.
//
// Usage:
//
//	beacon [serve]                      run the HTTP and MCP server (default)
//	beacon migrate                      apply store migrations and exit
//	beacon contract                     validate the execution engine contract once
//	beacon latest-run --campaign ID     print a campaign's reconciled latest run
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ashita-ai/beacon/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newApp(os.Stdout, newLogger(os.Stderr)).Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

func newApp(out io.Writer, logger *slog.Logger) *cli.App {
	return &cli.App{
		Name:           "beacon",
		Usage:          "Campaign execution read service",
		Version:        version,
		Writer:         out,
		ExitErrHandler: exitErrHandler,
		Action:         serveAction(logger),
		Commands: []*cli.Command{
			serveCommand(logger),
			migrateCommand(logger),
			contractCommand(logger),
			latestRunCommand(logger),
		},
	}
}

// newLogger builds the JSON logger at BEACON_LOG_LEVEL. An invalid level
// falls back to info; config validation reports it later.
func newLogger(w io.Writer) *slog.Logger {
	level, _ := config.ParseLogLevel(os.Getenv("BEACON_LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// exitErrHandler preserves exit codes from cli.Exit and prints everything else.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		if msg := exitCoder.Error(); msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
