package oci

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/eleutherai/neoxctl/pkg/errors"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantReg  string
		wantRepo string
		wantTag  string
		wantErr  bool
	}{
		{
			name:     "registry with tag",
			input:    "oci://ghcr.io/eleutherai/neox-bundles:main",
			wantReg:  "ghcr.io",
			wantRepo: "eleutherai/neox-bundles",
			wantTag:  "main",
		},
		{
			name:     "registry without tag",
			input:    "oci://ghcr.io/eleutherai/neox-bundles",
			wantReg:  "ghcr.io",
			wantRepo: "eleutherai/neox-bundles",
			wantTag:  "",
		},
		{
			name:     "local registry with port",
			input:    "oci://localhost:5000/neox/bundle:v1",
			wantReg:  "localhost:5000",
			wantRepo: "neox/bundle",
			wantTag:  "v1",
		},
		{
			name:    "missing scheme",
			input:   "ghcr.io/eleutherai/neox-bundles:main",
			wantErr: true,
		},
		{
			name:    "empty reference",
			input:   "oci://",
			wantErr: true,
		},
		{
			name:    "uppercase repository",
			input:   "oci://ghcr.io/EleutherAI/Bundle:v1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseTarget(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperrors.ErrCodeInvalidArgument, apperrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantReg, ref.Registry)
			assert.Equal(t, tt.wantRepo, ref.Repository)
			assert.Equal(t, tt.wantTag, ref.Tag)
		})
	}
}

func TestReferenceWithDefaultTag(t *testing.T) {
	ref, err := ParseTarget("oci://ghcr.io/eleutherai/neox-bundles")
	require.NoError(t, err)

	tagged := ref.WithDefaultTag("neox-exp1")
	assert.Equal(t, "neox-exp1", tagged.Tag)
	assert.Equal(t, "ghcr.io/eleutherai/neox-bundles:neox-exp1", tagged.ImageReference())
	assert.Equal(t, "oci://ghcr.io/eleutherai/neox-bundles:neox-exp1", tagged.String())

	// An existing tag is never overwritten.
	explicit := tagged.WithDefaultTag("other")
	assert.Equal(t, "neox-exp1", explicit.Tag)
}

func TestPushRejectsIncompleteInput(t *testing.T) {
	ctx := context.Background()
	bundle := Bundle{Manifest: []byte("apiVersion: apps/v1\n")}

	_, err := Push(ctx, bundle, PushOptions{})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidArgument, apperrors.CodeOf(err))

	untagged, err := ParseTarget("oci://ghcr.io/eleutherai/neox-bundles")
	require.NoError(t, err)
	_, err = Push(ctx, bundle, PushOptions{Reference: untagged})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidArgument, apperrors.CodeOf(err))

	tagged := untagged.WithDefaultTag("main")
	_, err = Push(ctx, Bundle{}, PushOptions{Reference: tagged})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest is empty")
}

func TestWriteBundle(t *testing.T) {
	dir := t.TempDir()
	bundle := Bundle{
		Manifest: []byte("apiVersion: apps/v1\n"),
		Script:   []byte("#!/usr/bin/env bash\n"),
	}

	require.NoError(t, writeBundle(dir, bundle))

	manifest, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, bundle.Manifest, manifest)

	script, err := os.ReadFile(filepath.Join(dir, ScriptFile))
	require.NoError(t, err)
	assert.Equal(t, bundle.Script, script)

	assert.Equal(t, []string{ManifestFile, ScriptFile}, bundleFiles(bundle))
	assert.Equal(t, []string{ManifestFile}, bundleFiles(Bundle{Manifest: bundle.Manifest}))
}
