/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

// Package defaults centralizes the timeout values used across neoxctl.
package defaults

import "time"

// Kubernetes timeouts for cluster API operations.
const (
	// DeploymentAvailableTimeout is the default wait for the training
	// Deployment to report all replicas available.
	DeploymentAvailableTimeout = 600 * time.Second

	// DeploymentDeleteTimeout is the wait for a prior Deployment with the
	// same name to be fully removed before recreating it.
	DeploymentDeleteTimeout = 120 * time.Second

	// SecretCreateTimeout bounds the Secret creation call.
	SecretCreateTimeout = 30 * time.Second

	// PodListTimeout bounds pod enumeration when harvesting the hostfile.
	PodListTimeout = 30 * time.Second

	// PodCopyTimeout bounds streaming a single file onto the primary pod.
	PodCopyTimeout = 60 * time.Second
)

// Preflight timeouts.
const (
	// PrereqCheckTimeout bounds a single external tool version probe.
	PrereqCheckTimeout = 10 * time.Second

	// ClusterPingTimeout bounds the API server reachability check that runs
	// before any local or remote side effect.
	ClusterPingTimeout = 15 * time.Second
)

// Sweep timeouts.
const (
	// SbatchSubmitTimeout bounds a single sbatch invocation.
	SbatchSubmitTimeout = 60 * time.Second
)
