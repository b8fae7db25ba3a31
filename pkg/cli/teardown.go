/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/eleutherai/neoxctl/pkg/config"
	"github.com/eleutherai/neoxctl/pkg/deploy"
	"github.com/eleutherai/neoxctl/pkg/k8s/client"
)

func teardownCmd() *cli.Command {
	return &cli.Command{
		Name:                  "teardown",
		EnableShellCompletion: true,
		Usage:                 "Remove a training deployment and its credential Secrets",
		ArgsUsage:             "[SUFFIX]",
		Description: `Delete the named deployment and every credential Secret labeled as
belonging to it, including stale Secrets left behind by earlier runs.
A deployment that does not exist is not an error.

The suffix defaults to the current user, matching deploy.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "namespace",
				Usage:   "Kubernetes namespace",
				Sources: cli.EnvVars("NEOXCTL_NAMESPACE"),
				Value:   config.DefaultNamespace,
			},
			kubeconfigFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Resolve(config.Options{
				Suffix:    cmd.Args().Get(0),
				Namespace: cmd.String("namespace"),
			})
			if err != nil {
				return err
			}

			clientset, restCfg, err := client.Build(cmd.String("kubeconfig"))
			if err != nil {
				return err
			}

			return deploy.New(clientset, restCfg, cfg).Teardown(ctx)
		},
	}
}
