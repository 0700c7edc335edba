package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/ordercore/internal/health"
)

// TimelineReader — источник таймлайна для HTTP.
type TimelineReader interface {
	GetOrderTimeline(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error)
}

type timelineEntry struct {
	ID             string            `json:"id"`
	Field          string            `json:"field"`
	OldStatus      string            `json:"old_status"`
	NewStatus      string            `json:"new_status"`
	ChangedBy      string            `json:"changed_by"`
	ChangedAt      time.Time         `json:"changed_at"`
	Note           string            `json:"note,omitempty"`
	IsSystemChange bool              `json:"is_system_change"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type timelineResponse struct {
	OrderID string          `json:"order_id"`
	Entries []timelineEntry `json:"entries"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// newHTTPRouter собирает служебные эндпоинты и read-only таймлайн заказа.
func newHTTPRouter(healthHandler *healthcheck.Handler, timeline TimelineReader, logger *log.Entry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/healthz", healthHandler)
	r.Get("/livez", healthcheck.LivenessHandler)
	r.Get("/readyz", healthHandler.ReadinessHandler)

	if timeline != nil {
		r.Get("/v1/orders/{orderID}/timeline", timelineHandler(timeline, logger))
	}
	return r
}

func timelineHandler(timeline TimelineReader, logger *log.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderID")

		entries, err := timeline.GetOrderTimeline(r.Context(), orderID)
		if err != nil {
			code := http.StatusInternalServerError
			message := "internal error"
			switch {
			case domain.IsValidation(err):
				code, message = http.StatusBadRequest, err.Error()
			case errors.Is(err, domain.ErrOrderNotFound):
				code, message = http.StatusNotFound, domain.ErrOrderNotFound.Error()
			default:
				logger.WithError(err).WithFields(log.Fields{
					"order_id":   orderID,
					"request_id": middleware.GetReqID(r.Context()),
				}).Error("failed to load timeline")
			}
			writeJSON(w, code, errorResponse{Error: message})
			return
		}

		resp := timelineResponse{OrderID: orderID, Entries: make([]timelineEntry, 0, len(entries))}
		for _, entry := range entries {
			resp.Entries = append(resp.Entries, timelineEntry{
				ID:             entry.ID,
				Field:          string(entry.Field),
				OldStatus:      entry.OldStatus,
				NewStatus:      entry.NewStatus,
				ChangedBy:      entry.ChangedBy,
				ChangedAt:      entry.ChangedAt,
				Note:           entry.Note,
				IsSystemChange: entry.IsSystemChange,
				Metadata:       entry.Metadata,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// startMetricsServer запускает HTTP-сервер с метриками, health checks и таймлайном.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
