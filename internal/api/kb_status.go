// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"net/http"
	"time"

	"github.com/ledgerql/gateway/internal/kb/scheduler"
	"github.com/ledgerql/gateway/internal/platform/respond"
	"github.com/ledgerql/gateway/pkg/pointer"
)

// kbStatusResponse is the GET /kb-status wire shape.
type kbStatusResponse struct {
	LastRefresh  *time.Time `json:"last_refresh,omitempty"`
	NextRefresh  *time.Time `json:"next_refresh,omitempty"`
	Status       string     `json:"status"`
	Version      string     `json:"version,omitempty"`
	TableCount   int        `json:"table_count"`
	Error        string     `json:"error,omitempty"`
	IsRefreshing bool       `json:"is_refreshing"`
}

// NewKBStatusHandler constructs the GET /kb-status handler.
func NewKBStatusHandler(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := sched.Status()

		resp := kbStatusResponse{
			Status:       string(status.State),
			Version:      status.Version,
			TableCount:   status.TableCount,
			Error:        status.LastError,
			IsRefreshing: status.InProgress,
		}
		if !status.LastRefresh.IsZero() {
			resp.LastRefresh = pointer.To(status.LastRefresh)
		}
		if !status.NextRefresh.IsZero() {
			resp.NextRefresh = pointer.To(status.NextRefresh)
		}

		respond.JSON(w, http.StatusOK, resp)
	}
}
