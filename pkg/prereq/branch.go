/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

package prereq

import (
	"context"
	"os/exec"

	"github.com/eleutherai/neoxctl/pkg/defaults"
	apperrors "github.com/eleutherai/neoxctl/pkg/errors"
)

// ValidateBranch checks that branch is a well-formed git branch name
// using git check-ref-format. The branch ends up interpolated into a
// clone command inside the container, so malformed names are rejected
// before any cluster call.
func ValidateBranch(ctx context.Context, branch string) error {
	ctx, cancel := context.WithTimeout(ctx, defaults.PrereqCheckTimeout)
	defer cancel()

	if err := exec.CommandContext(ctx, "git", "check-ref-format", "--branch", branch).Run(); err != nil {
		return apperrors.Newf(apperrors.ErrCodeInvalidArgument,
			"%q is not a valid git branch name", branch)
	}
	return nil
}
