/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

// Package config resolves the deployment configuration from command inputs.
package config

import (
	"os"
	"os/user"

	"github.com/distribution/reference"

	"github.com/eleutherai/neoxctl/pkg/errors"
)

const (
	// DefaultBranch is the gpt-neox branch cloned into the containers.
	DefaultBranch = "main"
	// DefaultNodeCount is the number of training replicas.
	DefaultNodeCount = 4
	// DefaultNamespace is the namespace all resources are created in.
	DefaultNamespace = "default"

	// namePrefix is prepended to the suffix to form the deployment name.
	namePrefix = "neox-"
)

// Deployment is the resolved, immutable configuration for one invocation.
type Deployment struct {
	Branch    string `json:"branch" yaml:"branch"`
	NodeCount int    `json:"nodeCount" yaml:"nodeCount"`
	Suffix    string `json:"suffix" yaml:"suffix"`
	Image     string `json:"image,omitempty" yaml:"image,omitempty"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

// Name returns the deployment name, "neox-" + suffix with no normalization.
func (d Deployment) Name() string {
	return namePrefix + d.Suffix
}

// Options are the raw inputs prior to default resolution.
type Options struct {
	Branch    string
	NodeCount int // 0 means unset
	Suffix    string
	Image     string
	Namespace string
}

// Resolve applies defaults and validates the inputs. The suffix defaults to
// the invoking OS user when omitted; this is the only environment read.
func Resolve(opts Options) (Deployment, error) {
	d := Deployment{
		Branch:    opts.Branch,
		NodeCount: opts.NodeCount,
		Suffix:    opts.Suffix,
		Image:     opts.Image,
		Namespace: opts.Namespace,
	}

	if d.Branch == "" {
		d.Branch = DefaultBranch
	}
	if d.NodeCount == 0 {
		d.NodeCount = DefaultNodeCount
	}
	if d.Namespace == "" {
		d.Namespace = DefaultNamespace
	}
	if d.Suffix == "" {
		d.Suffix = currentUser()
		if d.Suffix == "" {
			return Deployment{}, errors.New(errors.ErrCodeInvalidArgument,
				"suffix omitted and current user could not be determined")
		}
	}

	if d.NodeCount < 1 {
		return Deployment{}, errors.Newf(errors.ErrCodeInvalidArgument,
			"node count must be a positive integer, got %d", d.NodeCount)
	}

	if d.Image != "" {
		if _, err := reference.ParseNormalizedNamed(d.Image); err != nil {
			return Deployment{}, errors.Wrap(errors.ErrCodeInvalidArgument,
				"invalid image reference "+d.Image, err)
		}
	}

	return d, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
