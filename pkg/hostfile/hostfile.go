/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

// Package hostfile builds the DeepSpeed hostfile from the deployment's pods.
package hostfile

import (
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
)

// SlotsPerNode is the GPU slot count per training node. The base manifest
// requests 8 GPUs per pod; the hostfile mirrors that.
const SlotsPerNode = 8

// Build renders hostfile lines ("<ip> slots=8") for each pod, in listing
// order. Pods without an assigned IP are skipped.
func Build(pods []corev1.Pod) string {
	var sb strings.Builder
	for _, pod := range pods {
		if pod.Status.PodIP == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s slots=%d\n", pod.Status.PodIP, SlotsPerNode)
	}
	return sb.String()
}
