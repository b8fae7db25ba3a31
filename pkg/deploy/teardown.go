/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

package deploy

import (
	"context"
	"log/slog"

	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/eleutherai/neoxctl/pkg/errors"
	"github.com/eleutherai/neoxctl/pkg/provision"
)

// Teardown removes the deployment and every credential Secret labeled as
// belonging to it. A missing deployment is not an error; stale Secrets
// from earlier runs are still swept up.
func (d *Deployer) Teardown(ctx context.Context) error {
	name := d.cfg.Name()

	if err := d.deleteExisting(ctx, name); err != nil {
		return err
	}
	slog.Info("deployment removed", "deployment", name, "namespace", d.cfg.Namespace)

	selector := provision.DeploymentLabel + "=" + name
	secrets, err := d.clientset.CoreV1().Secrets(d.cfg.Namespace).
		List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to list credential secrets", err)
	}

	for _, s := range secrets.Items {
		delErr := d.clientset.CoreV1().Secrets(d.cfg.Namespace).
			Delete(ctx, s.Name, metav1.DeleteOptions{})
		if delErr != nil && !k8serrors.IsNotFound(delErr) {
			return errors.Wrap(errors.ErrCodeInternal, "failed to delete secret "+s.Name, delErr)
		}
		slog.Info("credential secret removed", "secret", s.Name)
	}
	return nil
}
