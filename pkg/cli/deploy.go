/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/eleutherai/neoxctl/pkg/bootstrap"
	"github.com/eleutherai/neoxctl/pkg/config"
	"github.com/eleutherai/neoxctl/pkg/defaults"
	"github.com/eleutherai/neoxctl/pkg/deploy"
	apperrors "github.com/eleutherai/neoxctl/pkg/errors"
	"github.com/eleutherai/neoxctl/pkg/k8s/client"
	"github.com/eleutherai/neoxctl/pkg/manifest"
	"github.com/eleutherai/neoxctl/pkg/oci"
	"github.com/eleutherai/neoxctl/pkg/prereq"
	"github.com/eleutherai/neoxctl/pkg/provision"
	"github.com/eleutherai/neoxctl/pkg/serializer"
)

func deployCmd() *cli.Command {
	return &cli.Command{
		Name:                  "deploy",
		EnableShellCompletion: true,
		Usage:                 "Provision credentials and render or apply a training deployment",
		ArgsUsage:             "[BRANCH [NODES [SUFFIX [IMAGE]]]]",
		Description: `Resolve a deployment configuration, provision per-deployment SSH
credentials as a cluster Secret, and render the training Deployment manifest.

By default the resolved manifest is written to stdout (or --output) and
nothing is applied to the cluster beyond the credential Secret. With
--apply the command also deletes any previous deployment of the same name,
creates the new one, waits for it to become available, and stages a
DeepSpeed hostfile plus the SSH private key onto the primary pod.

# Examples

Render the manifest for a 4-node run of the main branch:
  neoxctl deploy

Deploy 8 nodes of an experiment branch and attach a shell:
  neoxctl deploy my-experiment 8 exp1 --apply --attach

Audit-push the rendered bundle to a registry:
  neoxctl deploy --push-bundle oci://ghcr.io/eleutherai/neox-bundles`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "branch",
				Usage: "gpt-neox branch to clone (overrides the BRANCH positional)",
			},
			&cli.IntFlag{
				Name:  "nodes",
				Usage: "Node count (overrides the NODES positional)",
			},
			&cli.StringFlag{
				Name:  "suffix",
				Usage: "Deployment name suffix (overrides the SUFFIX positional)",
			},
			&cli.StringFlag{
				Name:  "image",
				Usage: "Container image (overrides the IMAGE positional)",
			},
			&cli.StringFlag{
				Name:    "namespace",
				Usage:   "Kubernetes namespace",
				Sources: cli.EnvVars("NEOXCTL_NAMESPACE"),
				Value:   config.DefaultNamespace,
			},
			&cli.StringFlag{
				Name:  "template",
				Usage: "Base manifest template path (default: embedded template)",
			},
			&cli.BoolFlag{
				Name:  "apply",
				Usage: "Apply the manifest and wait for the deployment to become available",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Render only, never apply (overrides --apply)",
			},
			&cli.BoolFlag{
				Name:  "attach",
				Usage: "Open an interactive shell into the primary pod after staging (requires --apply)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Timeout for the deployment availability wait",
				Value: defaults.DeploymentAvailableTimeout,
			},
			&cli.StringFlag{
				Name:  "push-bundle",
				Usage: "Push the rendered manifest and bootstrap script to an OCI registry (oci://host/repo[:tag])",
			},
			&cli.StringFlag{
				Name:  "registry",
				Usage: "OCI registry host, alternative to --push-bundle (e.g. ghcr.io)",
			},
			&cli.StringFlag{
				Name:  "repository",
				Usage: "OCI repository path (used with --registry)",
			},
			&cli.StringFlag{
				Name:  "tag",
				Usage: "OCI bundle tag (default: deployment name)",
			},
			&cli.BoolFlag{
				Name:  "plain-http",
				Usage: "Use HTTP instead of HTTPS for the OCI registry (for local development)",
			},
			&cli.BoolFlag{
				Name:  "insecure-tls",
				Usage: "Skip TLS certificate verification for the OCI registry",
			},
			outputFlag,
			formatFlag,
			kubeconfigFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := parseDeployOptions(cmd)
			if err != nil {
				return err
			}

			if _, err := prereq.Check(ctx, prereq.Git); err != nil {
				return err
			}
			if err := prereq.ValidateBranch(ctx, opts.cfg.Branch); err != nil {
				return err
			}

			// Template problems abort before anything touches the cluster.
			tmpl, err := manifest.Load(opts.template)
			if err != nil {
				return err
			}

			clientset, restCfg, err := client.Build(opts.kubeconfig)
			if err != nil {
				return err
			}

			slog.Info("deploying",
				"deployment", opts.cfg.Name(),
				"branch", opts.cfg.Branch,
				"nodes", opts.cfg.NodeCount,
				"namespace", opts.cfg.Namespace,
				"apply", opts.apply,
			)

			creds, err := provision.New(clientset, opts.cfg).Provision(ctx)
			if err != nil {
				return err
			}
			defer creds.Cleanup()

			dep, err := tmpl.Resolve(opts.cfg, creds.SecretName)
			if err != nil {
				return err
			}
			rendered, err := manifest.Render(dep)
			if err != nil {
				return err
			}

			if opts.bundle != nil {
				if err := pushBundle(ctx, opts, rendered); err != nil {
					return err
				}
			}

			if !opts.apply {
				return writeManifest(opts, dep, rendered)
			}

			return deploy.New(clientset, restCfg, opts.cfg).Run(ctx, dep, creds, deploy.Options{
				Timeout: opts.timeout,
				Attach:  opts.attach,
			})
		},
	}
}

type deployOptions struct {
	cfg         config.Deployment
	apply       bool
	attach      bool
	timeout     time.Duration
	template    string
	kubeconfig  string
	output      string
	format      serializer.Format
	bundle      *oci.Reference
	plainHTTP   bool
	insecureTLS bool
}

func parseDeployOptions(cmd *cli.Command) (*deployOptions, error) {
	args := cmd.Args()
	raw := config.Options{
		Branch:    args.Get(0),
		Suffix:    args.Get(2),
		Image:     args.Get(3),
		Namespace: cmd.String("namespace"),
	}
	if nodes := args.Get(1); nodes != "" {
		n, err := strconv.Atoi(nodes)
		if err != nil || n < 1 {
			return nil, apperrors.Newf(apperrors.ErrCodeInvalidArgument,
				"node count must be a positive integer, got %q", nodes)
		}
		raw.NodeCount = n
	}

	// Flags take precedence over positionals.
	if v := cmd.String("branch"); v != "" {
		raw.Branch = v
	}
	if cmd.IsSet("nodes") {
		n := int(cmd.Int("nodes"))
		if n < 1 {
			return nil, apperrors.Newf(apperrors.ErrCodeInvalidArgument,
				"node count must be a positive integer, got %d", n)
		}
		raw.NodeCount = n
	}
	if v := cmd.String("suffix"); v != "" {
		raw.Suffix = v
	}
	if v := cmd.String("image"); v != "" {
		raw.Image = v
	}

	cfg, err := config.Resolve(raw)
	if err != nil {
		return nil, err
	}

	outFormat := serializer.Format(cmd.String("format"))
	if outFormat != serializer.FormatYAML && outFormat != serializer.FormatJSON {
		return nil, apperrors.Newf(apperrors.ErrCodeInvalidArgument,
			"unsupported manifest format %q (expected yaml or json)", cmd.String("format"))
	}

	bundle, err := bundleReference(cmd, cfg.Name())
	if err != nil {
		return nil, err
	}

	return &deployOptions{
		cfg:         cfg,
		apply:       cmd.Bool("apply") && !cmd.Bool("dry-run"),
		attach:      cmd.Bool("attach"),
		timeout:     cmd.Duration("timeout"),
		template:    cmd.String("template"),
		kubeconfig:  cmd.String("kubeconfig"),
		output:      cmd.String("output"),
		format:      outFormat,
		bundle:      bundle,
		plainHTTP:   cmd.Bool("plain-http"),
		insecureTLS: cmd.Bool("insecure-tls"),
	}, nil
}

// bundleReference resolves the OCI push target from either the combined
// --push-bundle URI or the granular --registry/--repository/--tag flags.
// Returns nil when no push was requested.
func bundleReference(cmd *cli.Command, defaultTag string) (*oci.Reference, error) {
	if target := cmd.String("push-bundle"); target != "" {
		ref, err := oci.ParseTarget(target)
		if err != nil {
			return nil, err
		}
		return ref.WithDefaultTag(defaultTag), nil
	}

	registry := cmd.String("registry")
	if registry == "" {
		return nil, nil
	}
	repository := cmd.String("repository")
	if repository == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidArgument,
			"--repository is required when --registry is set")
	}

	target := oci.URIScheme + registry + "/" + repository
	if tag := cmd.String("tag"); tag != "" {
		target += ":" + tag
	}
	ref, err := oci.ParseTarget(target)
	if err != nil {
		return nil, err
	}
	return ref.WithDefaultTag(defaultTag), nil
}

func pushBundle(ctx context.Context, opts *deployOptions, rendered []byte) error {
	script, err := bootstrap.Render(opts.cfg.Branch)
	if err != nil {
		return err
	}

	res, err := oci.Push(ctx, oci.Bundle{Manifest: rendered, Script: []byte(script)}, oci.PushOptions{
		Reference: opts.bundle,
		Annotations: map[string]string{
			"org.opencontainers.image.version": version,
			"ai.eleuther.neox.branch":          opts.cfg.Branch,
			"ai.eleuther.neox.nodes":           strconv.Itoa(opts.cfg.NodeCount),
		},
		PlainHTTP:   opts.plainHTTP,
		InsecureTLS: opts.insecureTLS,
	})
	if err != nil {
		return err
	}

	slog.Info("bundle pushed", "reference", res.Reference, "digest", res.Digest)
	return nil
}

func writeManifest(opts *deployOptions, dep any, rendered []byte) error {
	w := serializer.NewFileWriterOrStdout(opts.format, opts.output)
	defer func() { _ = w.Close() }()

	if opts.format == serializer.FormatJSON {
		b, err := json.MarshalIndent(dep, "", "  ")
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to encode manifest as JSON", err)
		}
		return w.WriteRaw(append(b, '\n'))
	}
	return w.WriteRaw(rendered)
}
