/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	apperrors "github.com/eleutherai/neoxctl/pkg/errors"
	"github.com/eleutherai/neoxctl/pkg/prereq"
	"github.com/eleutherai/neoxctl/pkg/sweep"
)

func sweepCmd() *cli.Command {
	return &cli.Command{
		Name:                  "sweep",
		EnableShellCompletion: true,
		Usage:                 "Render an sbatch array-job script for a hyperparameter sweep",
		Description: `Expand a hyperparameter grid into SLURM array-job trials and render the
sbatch submission script. Each --param contributes one swept dimension;
the trial count is the product of all value counts and the script's
--array directive covers one trial per array task.

# Examples

Render a 6-trial learning-rate/seed sweep to stdout:
  neoxctl sweep --param lr=1e-4,3e-4 --param seed=1,2,3

Write the script and submit it:
  neoxctl sweep --param lr=1e-4,3e-4 --set nodes=4 \
    --output sweep.sbatch --submit`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "param",
				Usage: "Swept parameter (format: name=value[,value...], can be repeated)",
			},
			&cli.StringSliceFlag{
				Name:  "set",
				Usage: "Sweep config override (format: field=value, e.g. nodes=4, time_limit=12:00:00)",
			},
			&cli.BoolFlag{
				Name:  "submit",
				Usage: "Submit the rendered script with sbatch",
			},
			outputFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, trials, err := parseSweepOptions(cmd)
			if err != nil {
				return err
			}

			script, err := sweep.Render(cfg, trials)
			if err != nil {
				return err
			}

			output := cmd.String("output")
			submit := cmd.Bool("submit")

			if output == "" && !submit {
				_, err = os.Stdout.Write(script)
				return err
			}

			if submit {
				if _, err := prereq.Check(ctx, prereq.Sbatch); err != nil {
					return err
				}
			}

			path := output
			if path == "" {
				path = filepath.Join(os.TempDir(), cfg.JobName+".sbatch")
			}
			if err := os.WriteFile(path, script, 0o644); err != nil {
				return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to write sbatch script", err)
			}
			slog.Info("sbatch script written", "path", path, "trials", len(trials))

			if !submit {
				return nil
			}

			jobID, err := sweep.Submit(ctx, path)
			if err != nil {
				return err
			}
			slog.Info("sweep submitted", "job_id", jobID, "trials", len(trials))
			fmt.Printf("Submitted batch job %s (%d trials)\n", jobID, len(trials))
			return nil
		},
	}
}

func parseSweepOptions(cmd *cli.Command) (sweep.Config, []sweep.Trial, error) {
	cfg := sweep.DefaultConfig()

	overrides := make(map[string]string)
	for _, raw := range cmd.StringSlice("set") {
		field, value, ok := strings.Cut(raw, "=")
		if !ok || field == "" {
			return sweep.Config{}, nil, apperrors.Newf(apperrors.ErrCodeInvalidArgument,
				"override %q must have the form field=value", raw)
		}
		overrides[field] = value
	}
	if err := sweep.ApplyOverrides(&cfg, overrides); err != nil {
		return sweep.Config{}, nil, err
	}

	params, err := sweep.ParseParams(cmd.StringSlice("param"))
	if err != nil {
		return sweep.Config{}, nil, err
	}

	return cfg, sweep.Expand(params), nil
}
