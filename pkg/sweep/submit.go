/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

package sweep

import (
	"context"
	"os/exec"
	"regexp"
	"strings"

	"github.com/eleutherai/neoxctl/pkg/defaults"
	apperrors "github.com/eleutherai/neoxctl/pkg/errors"
)

var jobIDPattern = regexp.MustCompile(`Submitted batch job (\d+)`)

// Submit hands the rendered script at path to sbatch and returns the
// assigned job ID. Callers are expected to have preflight-checked that
// sbatch is available.
func Submit(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaults.SbatchSubmitTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "sbatch", path).CombinedOutput()
	if err != nil {
		return "", apperrors.WrapWithContext(apperrors.ErrCodeInternal, "sbatch submission failed", err,
			map[string]any{"output": strings.TrimSpace(string(out))})
	}

	if m := jobIDPattern.FindStringSubmatch(string(out)); m != nil {
		return m[1], nil
	}
	return "", apperrors.Newf(apperrors.ErrCodeInternal,
		"could not parse job ID from sbatch output: %s", strings.TrimSpace(string(out)))
}
