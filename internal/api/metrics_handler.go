// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"net/http"

	"github.com/ledgerql/gateway/internal/metrics"
	"github.com/ledgerql/gateway/internal/platform/respond"
)

// NewMetricsHandler constructs the GET /metrics handler, surfacing a
// point-in-time snapshot of every in-process counter.
func NewMetricsHandler(collector *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, collector.Snapshot())
	}
}
