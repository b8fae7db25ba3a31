/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

// Package bootstrap renders the post-start script that prepares each training
// container: it installs the deployment's public key for root SSH and checks
// out the requested gpt-neox branch.
package bootstrap

import (
	"strings"
	"text/template"

	"github.com/eleutherai/neoxctl/pkg/errors"
)

const (
	// UpstreamRepo is the training repository cloned into every container.
	UpstreamRepo = "https://github.com/EleutherAI/gpt-neox.git"

	// PublicKeyMountPath is where the credential Secret's public key entry is
	// mounted inside the container. Must match the secret volume in the base
	// manifest.
	PublicKeyMountPath = "/secrets/id_rsa.pub"

	// workDir is the application working directory the branch is cloned into.
	workDir = "/app"
)

// scriptTemplate interpolates the branch name only. Everything else is fixed
// so the rendered script stays reviewable as a literal.
var scriptTemplate = template.Must(template.New("post_start").Parse(`#!/usr/bin/env bash
set -euo pipefail

mkdir -p /root/.ssh
cat ` + PublicKeyMountPath + ` >> /root/.ssh/authorized_keys
chmod 600 /root/.ssh/authorized_keys
chmod 700 /root/.ssh
chown -R root:root /root/.ssh

rm -rf ` + workDir + `
git clone --single-branch --branch {{.Branch}} ` + UpstreamRepo + ` ` + workDir + `
`))

// Render produces the post-start script for the given branch. The script is
// regenerated on every invocation; it is never cached across runs.
func Render(branch string) (string, error) {
	if branch == "" {
		return "", errors.New(errors.ErrCodeInvalidArgument, "branch must not be empty")
	}
	// Branch names land unquoted in a shell command line.
	if strings.ContainsAny(branch, " \t\n'\"$`;&|") {
		return "", errors.Newf(errors.ErrCodeInvalidArgument,
			"branch %q contains shell metacharacters", branch)
	}

	var sb strings.Builder
	if err := scriptTemplate.Execute(&sb, struct{ Branch string }{Branch: branch}); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, "post-start script rendering failed", err)
	}
	return sb.String(), nil
}
