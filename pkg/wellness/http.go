package wellness

import (
	"encoding/json"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/carelink-health/wellness-import/pkg/common/logger"
)

type HTTPHandler struct {
	service  *Service
	maxBody  int64
	localEnv bool
}

func NewHTTPHandler(service *Service, maxBody int64, environment string) *HTTPHandler {
	return &HTTPHandler{
		service:  service,
		maxBody:  maxBody,
		localEnv: environment == "local",
	}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/wellness/import", h.handleImport).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleImport(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	runID := uuid.NewString()
	log := logger.WithFields(logrus.Fields{"run_id": runID})

	var rec WellnessRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		log.WithError(err).Warn("invalid import payload")
		http.Error(w, "Bad Request: invalid request body", http.StatusBadRequest)
		return
	}

	log.WithField("order_id", rec.OrderID).Info("import received")

	result, err := h.service.Import(r.Context(), &rec)
	if err != nil {
		if IsValidationError(err) {
			log.WithError(err).Warn("import rejected")
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}
		log.WithError(err).Error("import failed")
		sentry.CaptureException(err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Internal error"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if h.localEnv {
		json.NewEncoder(w).Encode(map[string]any{"status": http.StatusOK, "output": result})
		return
	}
	json.NewEncoder(w).Encode(result)
}
