/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/eleutherai/neoxctl/pkg/logging"
	"github.com/eleutherai/neoxctl/pkg/serializer"
)

const (
	name           = "neoxctl"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

// Flags shared across subcommands.
var (
	kubeconfigFlag = &cli.StringFlag{
		Name:  "kubeconfig",
		Usage: "Path to kubeconfig (default: $KUBECONFIG, then ~/.kube/config, then in-cluster)",
	}
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output file path (default: stdout)",
	}
	formatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"F"},
		Value:   string(serializer.FormatYAML),
		Usage:   "Output format: yaml or json",
		Sources: cli.EnvVars("NEOXCTL_FORMAT"),
	}
)

// Root assembles the full command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name:                  name,
		Usage:                 "Deploy distributed GPT-NeoX training jobs",
		Version:               fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("NEOXCTL_LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logging.SetDefaultStructuredLoggerWithLevel(name, version, cmd.String("log-level"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			deployCmd(),
			teardownCmd(),
			sweepCmd(),
			versionCmd(),
		},
	}
}

// Execute runs the CLI. Called by main.main().
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down gracefully...")
		cancel()
	}()

	if err := Root().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Flags: []cli.Flag{outputFlag, formatFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			outFormat := serializer.Format(cmd.String("format"))
			if outFormat.IsUnknown() {
				return fmt.Errorf("unknown output format: %q", outFormat)
			}

			w := serializer.NewFileWriterOrStdout(outFormat, cmd.String("output"))
			defer func() { _ = w.Close() }()

			return w.Serialize(struct {
				Version string `json:"version" yaml:"version"`
				Commit  string `json:"commit" yaml:"commit"`
				Date    string `json:"date" yaml:"date"`
			}{version, commit, date})
		},
	}
}
