/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

// Package prereq verifies required external tools before any side effect.
// Cluster operations are performed in-process through client-go; the checks
// here cover the commands that optional flows shell out to (sbatch for sweep
// submission, git for local branch validation).
package prereq

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/eleutherai/neoxctl/pkg/defaults"
	"github.com/eleutherai/neoxctl/pkg/errors"
	"github.com/eleutherai/neoxctl/pkg/version"
)

// Tool describes one external command requirement.
type Tool struct {
	// Name is the binary looked up on PATH.
	Name string
	// VersionArgs invoke the version print (e.g. ["--version"]).
	VersionArgs []string
	// VersionPattern extracts the version from the output; first capture
	// group is the version string. Empty means no version gate.
	VersionPattern string
	// Min is the minimum accepted version. Ignored when VersionPattern is empty.
	Min version.Version
}

// Well-known tools.
var (
	// Sbatch submits SLURM array jobs for sweeps.
	Sbatch = Tool{
		Name:           "sbatch",
		VersionArgs:    []string{"--version"},
		VersionPattern: `slurm(?:-wlm)?\s+(\d+(?:\.\d+){0,2})`,
		Min:            version.Version{Major: 20},
	}
	// Git validates sweep branch references locally.
	Git = Tool{
		Name:           "git",
		VersionArgs:    []string{"--version"},
		VersionPattern: `git version\s+(\d+(?:\.\d+){0,2})`,
		Min:            version.Version{Major: 2},
	}
)

// Result is the outcome of a single tool check.
type Result struct {
	Name      string `json:"name" yaml:"name"`
	Installed bool   `json:"installed" yaml:"installed"`
	Version   string `json:"version,omitempty" yaml:"version,omitempty"`
	// Status is "ok", "missing", "outdated", or "unknown".
	Status string `json:"status" yaml:"status"`
}

// Check probes all tools concurrently and returns a MissingDependency error
// when any of them is absent or too old. It performs no writes, so callers
// can rely on it failing before any side effect.
func Check(ctx context.Context, tools ...Tool) ([]Result, error) {
	results := make([]Result, len(tools))

	g, ctx := errgroup.WithContext(ctx)
	for i, tool := range tools {
		g.Go(func() error {
			results[i] = checkTool(ctx, tool)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var failed []string
	for _, r := range results {
		if r.Status != "ok" && r.Status != "unknown" {
			failed = append(failed, fmt.Sprintf("%s (%s)", r.Name, r.Status))
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return results, errors.Newf(errors.ErrCodeMissingDependency,
			"required tools unavailable: %s", strings.Join(failed, ", "))
	}
	return results, nil
}

func checkTool(ctx context.Context, tool Tool) Result {
	r := Result{Name: tool.Name}

	path, err := exec.LookPath(tool.Name)
	if err != nil {
		r.Status = "missing"
		return r
	}
	r.Installed = true

	if tool.VersionPattern == "" {
		r.Status = "ok"
		return r
	}

	probeCtx, cancel := context.WithTimeout(ctx, defaults.PrereqCheckTimeout)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, path, tool.VersionArgs...).CombinedOutput()
	if err != nil {
		r.Status = "unknown"
		return r
	}

	match := regexp.MustCompile(tool.VersionPattern).FindStringSubmatch(string(out))
	if len(match) < 2 {
		r.Status = "unknown"
		return r
	}
	r.Version = match[1]

	v, err := version.Parse(match[1])
	if err != nil {
		r.Status = "unknown"
		return r
	}
	if !v.AtLeast(tool.Min) {
		r.Status = "outdated"
		return r
	}
	r.Status = "ok"
	return r
}
