/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

// Package deploy drives the cluster side of a training deployment: it applies
// the resolved manifest, waits for availability, harvests the hostfile, and
// stages credentials onto the primary pod.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/eleutherai/neoxctl/pkg/config"
	"github.com/eleutherai/neoxctl/pkg/defaults"
	"github.com/eleutherai/neoxctl/pkg/errors"
	"github.com/eleutherai/neoxctl/pkg/hostfile"
	"github.com/eleutherai/neoxctl/pkg/provision"
)

// Paths on the primary pod that receive the staged artifacts.
const (
	// HostfilePath is where DeepSpeed expects the hostfile.
	HostfilePath = "/job/hostfile"
	// PrivateKeyPath lets the primary pod SSH into the workers.
	PrivateKeyPath = "/root/.ssh/id_rsa"
)

// Options control the driver flow.
type Options struct {
	// Timeout bounds the availability wait. Fatal on expiry.
	Timeout time.Duration
	// Attach opens an interactive shell into the primary pod after staging.
	Attach bool
}

// Deployer submits a resolved manifest and brings the training job up.
type Deployer struct {
	clientset  kubernetes.Interface
	restConfig *rest.Config
	cfg        config.Deployment

	// newExecutor is swapped out in tests to avoid a real SPDY dialer.
	newExecutor executorFactory
}

// New creates a Deployer. restConfig may be nil when the exec subresource is
// never used (tests that stop before staging).
func New(clientset kubernetes.Interface, restConfig *rest.Config, cfg config.Deployment) *Deployer {
	return &Deployer{
		clientset:   clientset,
		restConfig:  restConfig,
		cfg:         cfg,
		newExecutor: spdyExecutor,
	}
}

// Run executes the driver flow against the resolved manifest. The local
// credential artifacts in creds are removed unconditionally before Run
// returns, on success and on every abort path.
func (d *Deployer) Run(ctx context.Context, dep *appsv1.Deployment, creds *provision.Result, opts Options) (err error) {
	defer creds.Cleanup()
	defer func(start time.Time) {
		observeRun(time.Since(start), err)
	}(time.Now())

	if opts.Timeout == 0 {
		opts.Timeout = defaults.DeploymentAvailableTimeout
	}

	if err = d.deleteExisting(ctx, dep.Name); err != nil {
		return err
	}

	if _, err = d.clientset.AppsV1().Deployments(d.cfg.Namespace).
		Create(ctx, dep, metav1.CreateOptions{}); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to create deployment "+dep.Name, err)
	}
	slog.Info("deployment created", "deployment", dep.Name, "replicas", *dep.Spec.Replicas)

	if err = d.waitAvailable(ctx, dep, opts.Timeout); err != nil {
		// No rollback: the deployment and secret stay up for inspection.
		return errors.WrapWithContext(errors.ErrCodeDeploymentTimeout,
			fmt.Sprintf("deployment %s not available within %s; deployment and secret %s left in place",
				dep.Name, opts.Timeout, creds.SecretName),
			err,
			map[string]any{"deployment": dep.Name, "secret": creds.SecretName, "namespace": d.cfg.Namespace})
	}

	pods, err := d.trainingPods(ctx, dep)
	if err != nil {
		return err
	}

	hf := hostfile.Build(pods)
	primary := pods[0]
	container := dep.Spec.Template.Spec.Containers[0].Name

	privateKey, err := creds.ReadPrivateKey()
	if err != nil {
		return err
	}

	if err = d.stageFile(ctx, primary.Name, container, HostfilePath, "644", []byte(hf)); err != nil {
		return err
	}
	if err = d.stageFile(ctx, primary.Name, container, PrivateKeyPath, "600", privateKey); err != nil {
		return err
	}
	slog.Info("hostfile and private key staged", "pod", primary.Name, "hosts", len(pods))

	if opts.Attach {
		return d.attach(ctx, primary.Name, container)
	}
	return nil
}

// deleteExisting removes a previous deployment with the same name, waiting
// for the delete to finish so the recreate does not race. Absence is not an
// error.
func (d *Deployer) deleteExisting(ctx context.Context, name string) error {
	propagation := metav1.DeletePropagationForeground
	err := d.clientset.AppsV1().Deployments(d.cfg.Namespace).Delete(ctx, name,
		metav1.DeleteOptions{PropagationPolicy: &propagation})
	if k8serrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to delete existing deployment "+name, err)
	}

	slog.Info("deleting existing deployment", "deployment", name)
	return wait.PollUntilContextTimeout(ctx, time.Second, defaults.DeploymentDeleteTimeout, true,
		func(ctx context.Context) (bool, error) {
			_, getErr := d.clientset.AppsV1().Deployments(d.cfg.Namespace).
				Get(ctx, name, metav1.GetOptions{})
			if k8serrors.IsNotFound(getErr) {
				return true, nil
			}
			return false, nil
		})
}

// trainingPods lists the running pods of the deployment, ordered by name so
// the primary pod choice is stable.
func (d *Deployer) trainingPods(ctx context.Context, dep *appsv1.Deployment) ([]corev1.Pod, error) {
	listCtx, cancel := context.WithTimeout(ctx, defaults.PodListTimeout)
	defer cancel()

	selector := labels.Set(dep.Spec.Selector.MatchLabels).String()
	list, err := d.clientset.CoreV1().Pods(d.cfg.Namespace).List(listCtx,
		metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to list training pods", err)
	}
	if len(list.Items) == 0 {
		return nil, errors.Newf(errors.ErrCodeInternal,
			"no pods found for deployment %s (selector %s)", dep.Name, selector)
	}

	pods := list.Items
	sort.Slice(pods, func(i, j int) bool { return pods[i].Name < pods[j].Name })
	return pods, nil
}
