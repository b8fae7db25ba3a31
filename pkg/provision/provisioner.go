/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

// Package provision creates the per-deployment credential Secret: a fresh SSH
// keypair plus the rendered post-start script, uploaded to the cluster under a
// timestamp-derived name.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/eleutherai/neoxctl/pkg/bootstrap"
	"github.com/eleutherai/neoxctl/pkg/config"
	"github.com/eleutherai/neoxctl/pkg/errors"
	"github.com/eleutherai/neoxctl/pkg/keys"
)

// Secret data keys, also the filenames mounted into the container.
const (
	PublicKeyEntry = "id_rsa.pub"
	ScriptEntry    = "post_start_script.sh"
)

// DeploymentLabel marks Secrets as belonging to a neoxctl deployment so
// teardown can enumerate them.
const DeploymentLabel = "neox.eleuther.ai/deployment"

// Result describes the provisioned credentials. WorkDir holds the transient
// local copies; callers must invoke Cleanup on every exit path once the
// private key has been staged (or the run aborted).
type Result struct {
	SecretName     string
	WorkDir        string
	PrivateKeyPath string
	PublicKeyPath  string
	ScriptPath     string
}

// Provisioner uploads deployment credentials to the cluster.
type Provisioner struct {
	clientset kubernetes.Interface
	cfg       config.Deployment

	// now is injectable for deterministic secret names in tests.
	now func() time.Time
}

// New creates a Provisioner for the given deployment.
func New(clientset kubernetes.Interface, cfg config.Deployment) *Provisioner {
	return &Provisioner{
		clientset: clientset,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Provision generates the keypair and post-start script, persists them to a
// scoped working directory, and creates the cluster Secret.
//
// Key generation happens strictly before any cluster call; a keygen or write
// failure aborts without touching the cluster. Once the Secret exists its name
// has been logged, so an abort after this point never loses track of it.
func (p *Provisioner) Provision(ctx context.Context) (*Result, error) {
	pair, err := keys.Generate()
	if err != nil {
		return nil, err
	}

	script, err := bootstrap.Render(p.cfg.Branch)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "neoxctl-*")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeKeyGeneration, "scoped working directory", err)
	}

	res := &Result{
		WorkDir:        workDir,
		PrivateKeyPath: filepath.Join(workDir, "id_rsa"),
		PublicKeyPath:  filepath.Join(workDir, PublicKeyEntry),
		ScriptPath:     filepath.Join(workDir, ScriptEntry),
	}

	if err := os.WriteFile(res.PrivateKeyPath, pair.PrivatePEM, 0o600); err != nil {
		res.Cleanup()
		return nil, errors.Wrap(errors.ErrCodeKeyGeneration, "write private key", err)
	}
	if err := os.WriteFile(res.PublicKeyPath, pair.PublicAuthorizedKey, 0o644); err != nil {
		res.Cleanup()
		return nil, errors.Wrap(errors.ErrCodeKeyGeneration, "write public key", err)
	}
	if err := os.WriteFile(res.ScriptPath, []byte(script), 0o700); err != nil {
		res.Cleanup()
		return nil, errors.Wrap(errors.ErrCodeKeyGeneration, "write post-start script", err)
	}

	name, err := p.createSecret(ctx, pair.PublicAuthorizedKey, []byte(script))
	if err != nil {
		res.Cleanup()
		return nil, err
	}
	res.SecretName = name

	return res, nil
}

// createSecret creates the Secret under a timestamp-derived name. A rerun of
// the same suffix within the same second collides; that one case is retried
// once with a random disambiguator before giving up.
func (p *Provisioner) createSecret(ctx context.Context, publicKey, script []byte) (string, error) {
	name := fmt.Sprintf("%s-%d", p.cfg.Name(), p.now().Unix())

	err := p.create(ctx, name, publicKey, script)
	if k8serrors.IsAlreadyExists(err) {
		retry := fmt.Sprintf("%s-%s", name, uuid.NewString()[:8])
		slog.Warn("secret name collision, retrying", "secret", name, "retry", retry)
		name, err = retry, p.create(ctx, retry, publicKey, script)
	}
	if err != nil {
		return "", errors.WrapWithContext(errors.ErrCodeSecretCreation,
			"failed to create credential secret "+name, err,
			map[string]any{"secret": name, "namespace": p.cfg.Namespace})
	}

	slog.Info("credential secret created",
		"secret", name,
		"namespace", p.cfg.Namespace,
		"deployment", p.cfg.Name())
	return name, nil
}

func (p *Provisioner) create(ctx context.Context, name string, publicKey, script []byte) error {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: p.cfg.Namespace,
			Labels: map[string]string{
				"app.kubernetes.io/name": "gpt-neox",
				DeploymentLabel:          p.cfg.Name(),
			},
		},
		Type: corev1.SecretTypeOpaque,
		Data: map[string][]byte{
			PublicKeyEntry: publicKey,
			ScriptEntry:    script,
		},
	}

	_, err := p.clientset.CoreV1().Secrets(p.cfg.Namespace).
		Create(ctx, secret, metav1.CreateOptions{})
	return err
}

// ReadPrivateKey loads the private key from the scoped working directory.
func (r *Result) ReadPrivateKey() ([]byte, error) {
	b, err := os.ReadFile(r.PrivateKeyPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "read private key", err)
	}
	return b, nil
}

// Cleanup removes the scoped working directory and everything in it. Safe to
// call multiple times.
func (r *Result) Cleanup() {
	if r.WorkDir == "" {
		return
	}
	if err := os.RemoveAll(r.WorkDir); err != nil {
		slog.Error("failed to remove working directory", "dir", r.WorkDir, "error", err)
		return
	}
	r.WorkDir = ""
}
