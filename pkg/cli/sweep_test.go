/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	apperrors "github.com/eleutherai/neoxctl/pkg/errors"
	"github.com/eleutherai/neoxctl/pkg/sweep"
)

func runSweepParse(t *testing.T, args ...string) (sweep.Config, []sweep.Trial, error) {
	t.Helper()

	var (
		cfg      sweep.Config
		trials   []sweep.Trial
		parseErr error
	)
	cmd := sweepCmd()
	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		cfg, trials, parseErr = parseSweepOptions(c)
		return nil
	}

	require.NoError(t, cmd.Run(context.Background(), append([]string{"sweep"}, args...)))
	return cfg, trials, parseErr
}

func TestParseSweepOptions(t *testing.T) {
	cfg, trials, err := runSweepParse(t,
		"--param", "lr=1e-4,3e-4",
		"--param", "seed=1,2,3",
		"--set", "nodes=4",
		"--set", "job_name=lr-sweep",
	)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Nodes)
	assert.Equal(t, "lr-sweep", cfg.JobName)
	assert.Len(t, trials, 6)
	assert.Equal(t, "--lr 1e-4 --seed 1", trials[0].Args())
}

func TestParseSweepOptionsNoParams(t *testing.T) {
	cfg, trials, err := runSweepParse(t)
	require.NoError(t, err)

	assert.Equal(t, sweep.DefaultConfig(), cfg)
	require.Len(t, trials, 1)
	assert.Empty(t, trials[0].Args())
}

func TestParseSweepOptionsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "malformed set", args: []string{"--set", "nodes"}},
		{name: "unknown set field", args: []string{"--set", "color=blue"}},
		{name: "malformed param", args: []string{"--param", "lr"}},
		{name: "duplicate param", args: []string{"--param", "lr=1", "--param", "lr=2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runSweepParse(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeInvalidArgument, apperrors.CodeOf(err))
		})
	}
}
