/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

// Package manifest loads the base Deployment template and resolves it against
// a deployment configuration. Resolution is a pure in-memory transformation:
// load, mutate typed fields, serialize. No cluster interaction happens here,
// so the result can be inspected or diffed before anything is applied.
package manifest

import (
	_ "embed"
	"os"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/yaml"

	"github.com/eleutherai/neoxctl/pkg/config"
	"github.com/eleutherai/neoxctl/pkg/errors"
)

// CredentialVolume is the name of the secret-backed volume in the base
// template that receives the per-deployment credential Secret reference.
const CredentialVolume = "deploy-credentials"

//go:embed templates/neox-deployment.yaml
var baseTemplate []byte

// Template is a parsed base manifest ready for resolution.
type Template struct {
	base *appsv1.Deployment
}

// Load parses the base manifest at path, or the embedded default when path is
// empty.
func Load(path string) (*Template, error) {
	raw := baseTemplate
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeMalformedTemplate, "read base manifest", err)
		}
	}

	var dep appsv1.Deployment
	if err := yaml.UnmarshalStrict(raw, &dep); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedTemplate, "parse base manifest", err)
	}

	t := &Template{base: &dep}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// validate checks that the structure the mutations target is present, so a
// malformed template fails before any field is written.
func (t *Template) validate() error {
	if len(t.base.Spec.Template.Spec.Containers) == 0 {
		return errors.New(errors.ErrCodeMalformedTemplate, "base manifest has no containers")
	}
	if _, err := credentialVolume(t.base); err != nil {
		return err
	}
	return nil
}

func credentialVolume(dep *appsv1.Deployment) (*corev1.Volume, error) {
	for i := range dep.Spec.Template.Spec.Volumes {
		v := &dep.Spec.Template.Spec.Volumes[i]
		if v.Name == CredentialVolume {
			if v.Secret == nil {
				return nil, errors.Newf(errors.ErrCodeMalformedTemplate,
					"volume %q is not secret-backed", CredentialVolume)
			}
			return v, nil
		}
	}
	return nil, errors.Newf(errors.ErrCodeMalformedTemplate,
		"base manifest has no %q volume", CredentialVolume)
}

// Resolve applies the deployment configuration to a copy of the base
// manifest. The mutation set is fixed: metadata.name, replicas, the
// credential volume's secret reference, and (when set) the primary
// container's image. Resolution is deterministic for identical inputs.
func (t *Template) Resolve(cfg config.Deployment, secretName string) (*appsv1.Deployment, error) {
	dep := t.base.DeepCopy()

	dep.ObjectMeta.Name = cfg.Name()
	dep.ObjectMeta.Namespace = cfg.Namespace
	dep.Spec.Replicas = ptr.To(int32(cfg.NodeCount)) //nolint:gosec // replica counts are small

	vol, err := credentialVolume(dep)
	if err != nil {
		return nil, err
	}
	vol.Secret.SecretName = secretName

	if cfg.Image != "" {
		dep.Spec.Template.Spec.Containers[0].Image = cfg.Image
	}

	return dep, nil
}

// Render serializes a resolved manifest back to YAML.
func Render(dep *appsv1.Deployment) ([]byte, error) {
	out, err := yaml.Marshal(dep)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "serialize manifest", err)
	}
	return out, nil
}

// BaseImage returns the primary container image of the base template,
// before any override.
func (t *Template) BaseImage() string {
	return t.base.Spec.Template.Spec.Containers[0].Image
}
