/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

package oci

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	ociv1 "github.com/opencontainers/image-spec/specs-go/v1"
	oras "oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/file"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"

	apperrors "github.com/eleutherai/neoxctl/pkg/errors"
)

// ArtifactType identifies a neoxctl deployment bundle. The custom media
// type distinguishes bundles from runnable container images; consumers
// that don't understand it should treat the artifact as an opaque blob.
const ArtifactType = "application/vnd.eleutherai.neox.bundle"

// File names within the bundle layer.
const (
	ManifestFile = "deployment.yaml"
	ScriptFile   = "post_start_script.sh"
)

// Bundle holds the rendered artifacts published for one deployment.
type Bundle struct {
	// Manifest is the fully resolved deployment manifest in YAML form.
	Manifest []byte
	// Script is the rendered bootstrap script.
	Script []byte
}

// PushOptions configures a bundle push.
type PushOptions struct {
	// Reference is the parsed registry target. Tag must be set.
	Reference *Reference
	// Annotations are additional manifest annotations. The created
	// timestamp is always attached.
	Annotations map[string]string
	// PlainHTTP uses HTTP instead of HTTPS (local development registries).
	PlainHTTP bool
	// InsecureTLS skips TLS certificate verification.
	InsecureTLS bool
}

// PushResult describes a successfully pushed bundle.
type PushResult struct {
	// Digest is the SHA256 digest of the pushed artifact manifest.
	Digest string
	// Reference is the full image reference (registry/repository:tag).
	Reference string
}

// Push packages the bundle as an OCI 1.1 artifact and pushes it to the
// registry named by opts.Reference using ORAS. Credentials come from
// the standard Docker configuration.
func Push(ctx context.Context, bundle Bundle, opts PushOptions) (*PushResult, error) {
	if opts.Reference == nil || opts.Reference.Tag == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidArgument, "a tagged OCI reference is required to push a bundle")
	}
	if len(bundle.Manifest) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidArgument, "bundle manifest is empty")
	}

	dir, err := os.MkdirTemp("", "neoxctl-bundle-*")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create bundle staging directory", err)
	}
	defer os.RemoveAll(dir)

	if err := writeBundle(dir, bundle); err != nil {
		return nil, err
	}

	fs, err := file.New(dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create bundle file store", err)
	}
	defer func() { _ = fs.Close() }()
	fs.TarReproducible = true

	layers := make([]ociv1.Descriptor, 0, 2)
	for _, name := range bundleFiles(bundle) {
		desc, addErr := fs.Add(ctx, name, ociv1.MediaTypeImageLayer, filepath.Join(dir, name))
		if addErr != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to add bundle file to store", addErr)
		}
		layers = append(layers, desc)
	}

	annotations := map[string]string{
		ociv1.AnnotationCreated: time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range opts.Annotations {
		annotations[k] = v
	}

	manifestDesc, err := oras.PackManifest(ctx, fs, oras.PackManifestVersion1_1, ArtifactType, oras.PackManifestOptions{
		Layers:              layers,
		ManifestAnnotations: annotations,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to pack bundle manifest", err)
	}

	if err := fs.Tag(ctx, manifestDesc, opts.Reference.Tag); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to tag bundle in local store", err)
	}

	repo, err := remote.NewRepository(opts.Reference.Registry + "/" + opts.Reference.Repository)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidArgument, "failed to initialize remote repository", err)
	}
	repo.PlainHTTP = opts.PlainHTTP
	repo.Client = newAuthClient(opts.PlainHTTP, opts.InsecureTLS)

	slog.Debug("pushing bundle",
		"reference", opts.Reference.ImageReference(),
		"layers", len(layers),
	)

	desc, err := oras.Copy(ctx, fs, opts.Reference.Tag, repo, opts.Reference.Tag, oras.DefaultCopyOptions)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to push bundle to registry", err)
	}

	return &PushResult{
		Digest:    desc.Digest.String(),
		Reference: opts.Reference.ImageReference(),
	}, nil
}

func writeBundle(dir string, bundle Bundle) error {
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), bundle.Manifest, 0o644); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to stage bundle manifest", err)
	}
	if len(bundle.Script) > 0 {
		if err := os.WriteFile(filepath.Join(dir, ScriptFile), bundle.Script, 0o644); err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to stage bundle script", err)
		}
	}
	return nil
}

func bundleFiles(bundle Bundle) []string {
	files := []string{ManifestFile}
	if len(bundle.Script) > 0 {
		files = append(files, ScriptFile)
	}
	return files
}

// newAuthClient builds the registry HTTP client with Docker credential
// support and optional TLS relaxation.
func newAuthClient(plainHTTP, insecureTLS bool) *auth.Client {
	credStore, _ := credentials.NewStoreFromDocker(credentials.StoreOptions{})

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !plainHTTP && insecureTLS {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		} else {
			transport.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec
		}
	}

	return &auth.Client{
		Client:     &http.Client{Transport: transport},
		Cache:      auth.NewCache(),
		Credential: credentials.Credential(credStore),
	}
}
