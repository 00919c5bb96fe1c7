package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/buessow/glumagic/internal/models"
	"github.com/buessow/glumagic/internal/utils"
)

// NewRouter serves the feature service over HTTP together with health and
// metrics endpoints. Requests are access-logged to accessLog.
func NewRouter(svc FeatureAPI, gatherer prometheus.Gatherer, accessLog io.Writer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if accessLog == nil {
		accessLog = io.Discard
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := &httpHandlers{svc: svc, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/vector", h.vector).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/matrix", h.matrix).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return handlers.RecoveryHandler()(handlers.CompressHandler(handlers.LoggingHandler(accessLog, r)))
}

type httpHandlers struct {
	svc    FeatureAPI
	logger *slog.Logger
}

func (h *httpHandlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// vector answers GET /api/v1/vector?at=<RFC3339|unix ms>.
func (h *httpHandlers) vector(w http.ResponseWriter, r *http.Request) {
	at, err := utils.ParseInstant(r.URL.Query().Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := h.svc.BuildVector(r.Context(), models.VectorRequest{At: at})
	if err != nil {
		h.logger.Warn("vector request failed", slog.Any("error", err))
		writeError(w, httpStatus(err), err)
		return
	}
	// The wire form replaces NaN with null.
	out := ToProtoVectorResult(res)
	data, err := out.MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// matrix answers GET /api/v1/matrix?start=<instant>&format=csv|json.
func (h *httpHandlers) matrix(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := utils.ParseInstant(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	format := q.Get("format")
	if format != "" && format != "csv" && format != "json" {
		writeError(w, http.StatusBadRequest, errors.New("format must be csv or json"))
		return
	}
	m, err := h.svc.BuildMatrix(r.Context(), models.MatrixRequest{Start: start})
	if err != nil {
		h.logger.Warn("matrix request failed", slog.Any("error", err))
		writeError(w, httpStatus(err), err)
		return
	}
	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(http.StatusOK)
		if err := m.WriteCSV(w); err != nil {
			h.logger.Warn("writing csv failed", slog.Any("error", err))
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := m.WriteJSON(w); err != nil {
		h.logger.Warn("writing json failed", slog.Any("error", err))
	}
}

func httpStatus(err error) int {
	switch utils.KindOf(err) {
	case utils.KindInvalid:
		return http.StatusBadRequest
	case utils.KindUnavailable:
		return http.StatusServiceUnavailable
	case utils.KindDataQuality:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
