package controllers

import (
	"net/http"

	"github.com/angelmondragon/salesledger/api/responses"
	"github.com/angelmondragon/salesledger/internal/reports"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

func DashboardSummary(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		if svc == nil {
			return unavailable("reports")
		}
		summary, err := svc.Summary(r.Context())
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, summary)
		return nil
	})
}

// OrderReport returns per-row totals and the grand total of one order.
func OrderReport(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		if svc == nil {
			return unavailable("reports")
		}
		t, err := orderRoute(r, false)
		if err != nil {
			return err
		}
		report, err := svc.SalesReport(r.Context(), t.principal, t.orderID)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, report)
		return nil
	})
}
