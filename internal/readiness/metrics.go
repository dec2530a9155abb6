// SPDX-License-Identifier: MIT

package readiness

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "hlsgate_readiness_checks_total",
	Help: "Readiness checks by resulting status",
}, []string{"profile", "status"})
