// Package cli implements the command-line interface for the neoxctl tool.
//
// # Overview
//
// neoxctl deploys distributed GPT-NeoX training jobs onto Kubernetes
// clusters and renders SLURM array-job scripts for hyperparameter sweeps.
// It is aimed at researchers running multi-node training on shared
// infrastructure.
//
// # Commands
//
// deploy - Provision credentials and render/apply a training deployment:
//
//	neoxctl deploy [BRANCH [NODES [SUFFIX [IMAGE]]]] [--apply] [--attach]
//
// By default the command resolves the configuration, provisions per-deployment
// SSH credentials as a cluster Secret, and writes the resolved manifest to
// stdout (or --output). With --apply it also submits the Deployment, waits for
// availability, and stages a DeepSpeed hostfile plus the private key onto the
// primary pod.
//
// teardown - Remove a deployment and its credential Secrets:
//
//	neoxctl teardown [SUFFIX]
//
// sweep - Render (and optionally submit) an sbatch array-job script:
//
//	neoxctl sweep --param lr=1e-4,3e-4 --param seed=1,2,3 [--submit]
//
// version - Print version information.
package cli
