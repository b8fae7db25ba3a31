/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

package deploy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neoxctl_deploy_total",
			Help: "Total number of deployment driver runs",
		},
		[]string{"status"}, // success or error
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "neoxctl_deploy_duration_seconds",
			Help:    "Time from manifest submission to staged hostfile",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		},
	)
)

func observeRun(elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	runTotal.WithLabelValues(status).Inc()
	runDuration.Observe(elapsed.Seconds())
}
