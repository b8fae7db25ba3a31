/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

// Package oci publishes rendered deployment bundles to OCI registries.
package oci

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"

	apperrors "github.com/eleutherai/neoxctl/pkg/errors"
)

// URIScheme marks a bundle target as an OCI registry reference
// (e.g. "oci://ghcr.io/eleutherai/neox-bundles:main").
const URIScheme = "oci://"

// Reference is a parsed OCI bundle target.
type Reference struct {
	// Registry is the registry host (e.g. "ghcr.io", "localhost:5000").
	Registry string
	// Repository is the repository path within the registry.
	Repository string
	// Tag is the bundle tag. Empty means none was given; the caller
	// applies a default (the deployment name).
	Tag string
}

// ParseTarget parses an oci:// bundle target into its components.
func ParseTarget(target string) (*Reference, error) {
	if !strings.HasPrefix(target, URIScheme) {
		return nil, apperrors.Newf(apperrors.ErrCodeInvalidArgument,
			"bundle target %q must use the %s scheme", target, URIScheme)
	}

	ref, err := reference.ParseNormalizedNamed(strings.TrimPrefix(target, URIScheme))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidArgument, "invalid OCI reference", err)
	}

	var tag string
	if tagged, ok := ref.(reference.Tagged); ok {
		tag = tagged.Tag()
	}

	return &Reference{
		Registry:   reference.Domain(ref),
		Repository: reference.Path(ref),
		Tag:        tag,
	}, nil
}

// WithDefaultTag returns a copy of the reference with tag applied
// when none was parsed from the target.
func (r *Reference) WithDefaultTag(tag string) *Reference {
	if r.Tag != "" {
		return r
	}
	return &Reference{Registry: r.Registry, Repository: r.Repository, Tag: tag}
}

// ImageReference returns the Docker-style reference without the oci:// scheme.
func (r *Reference) ImageReference() string {
	if r.Tag == "" {
		return fmt.Sprintf("%s/%s", r.Registry, r.Repository)
	}
	return fmt.Sprintf("%s/%s:%s", r.Registry, r.Repository, r.Tag)
}

// String returns the full oci:// form of the reference.
func (r *Reference) String() string {
	return URIScheme + r.ImageReference()
}
