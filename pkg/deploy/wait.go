/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
)

// waitAvailable blocks until the deployment reports all replicas available,
// the timeout expires, or the context is canceled. It uses the watch API and
// reconnects when the server drops the stream; reconnects are paced by a
// token bucket so a flapping API server is not hammered.
func (d *Deployer) waitAvailable(ctx context.Context, dep *appsv1.Deployment, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(2*time.Second), 1)

	for {
		if err := limiter.Wait(waitCtx); err != nil {
			return fmt.Errorf("timed out after %s: %w", timeout, waitCtx.Err())
		}

		done, err := d.watchOnce(waitCtx, dep)
		if done || err != nil {
			return err
		}
		slog.Debug("watch stream ended, reconnecting", "deployment", dep.Name)
	}
}

// watchOnce consumes a single watch stream. It returns done=true when the
// deployment became available, err on timeout or watch error, and
// (false, nil) when the stream closed and a reconnect is needed.
func (d *Deployer) watchOnce(ctx context.Context, dep *appsv1.Deployment) (bool, error) {
	watcher, err := d.clientset.AppsV1().Deployments(d.cfg.Namespace).Watch(ctx,
		metav1.ListOptions{
			FieldSelector: fmt.Sprintf("metadata.name=%s", dep.Name),
		})
	if err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("watch aborted: %w", ctx.Err())
		}
		return false, nil
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, fmt.Errorf("deployment did not become available: %w", ctx.Err())

		case event, ok := <-watcher.ResultChan():
			if !ok {
				return false, nil
			}
			if event.Type == watch.Error {
				return false, fmt.Errorf("watch error: %v", event.Object)
			}

			current, ok := event.Object.(*appsv1.Deployment)
			if !ok {
				continue
			}
			if deploymentAvailable(current) {
				slog.Info("deployment available",
					"deployment", current.Name,
					"replicas", current.Status.AvailableReplicas)
				return true, nil
			}
			slog.Debug("waiting for deployment",
				"deployment", current.Name,
				"available", current.Status.AvailableReplicas,
				"desired", desiredReplicas(current))
		}
	}
}

func desiredReplicas(dep *appsv1.Deployment) int32 {
	if dep.Spec.Replicas == nil {
		return 1
	}
	return *dep.Spec.Replicas
}

func deploymentAvailable(dep *appsv1.Deployment) bool {
	return dep.Status.ObservedGeneration >= dep.Generation &&
		dep.Status.AvailableReplicas >= desiredReplicas(dep)
}
