package ticket_api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ms-admission/internal/auth"
	"ms-admission/internal/logger"
	"ms-admission/internal/metrics"
	"ms-admission/internal/models"
)

// NewRouter wires the public ticket routes and the staff routes guarded by
// staffAuth.
func NewRouter(h *Handler, staffAuth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics(h.Logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/shows/{showId}/seat-types/{seatTypeId}", func(r chi.Router) {
			r.Post("/tickets", h.PurchaseTicket)
			r.Get("/sold", h.GetSold)
		})
		r.Get("/shows/{showId}", h.GetShow)
		r.Get("/tickets/buyer/{identity}", h.ListTicketsByBuyer)
		r.Get("/tickets/{ticketId}", h.ViewTicket)
		r.Get("/tickets/{ticketId}/checkin-message", h.CheckinMessage)

		r.Group(func(r chi.Router) {
			r.Use(staffAuth)
			r.Use(h.requireGateStaff)
			r.Get("/checkin/nonce", h.CurrentNonce)
			r.Post("/checkin", h.CheckinTicket)
			r.Post("/tickets/{ticketId}/cancel", h.CancelTicket)
			r.Get("/shows/{showId}/checkins", h.ShowCheckins)

			r.Route("/admin", func(r chi.Router) {
				r.Post("/shows", h.CreateShow)
				r.Post("/shows/{showId}/seat-types", h.AddSeatType)
				r.Post("/shows/{showId}/schedule", h.ScheduleShow)
				r.Post("/shows/{showId}/cancel", h.CancelShow)
				r.Get("/staff", h.ListStaff)
				r.Post("/staff", h.AddStaff)
				r.Delete("/staff/{identity}", h.DeactivateStaff)
			})
		})
	})
	return r
}

// requireGateStaff lets through only identities on the active roster. A
// valid token alone is not enough: deactivation takes effect before the
// token expires.
func (h *Handler) requireGateStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := auth.StaffIdentity(r.Context())
		authorized, err := h.Staff.IsAuthorizedGateStaff(r.Context(), identity)
		if err != nil {
			h.fail(w, "Could not check staff roster", err)
			return
		}
		if !authorized {
			h.Logger.LogSecurity("UNAUTHORIZED_STAFF", fmt.Sprintf("%q called %s %s", identity, r.Method, r.URL.Path))
			h.fail(w, "Staff access denied", fmt.Errorf("%w: %s", models.ErrUnauthorizedStaff, identity))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestMetrics(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			status := strconv.Itoa(ww.Status())
			elapsed := time.Since(start)
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, status).Observe(elapsed.Seconds())
			log.LogAPI(r.Method, r.URL.Path, status, fmt.Sprintf("%dms", elapsed.Milliseconds()))
		})
	}
}
