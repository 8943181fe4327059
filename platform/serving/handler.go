package serving

import (
	"net/http"
	"time"

	"github.com/skiffml/skiff/dataset"
	"github.com/skiffml/skiff/pkg/log"
	"github.com/skiffml/skiff/platform/registry"
)

const csvContentType = "text/csv"

// invocationHandler serves the container invocation contract for one
// predictor: POST /invocations scores a text/csv feature body, GET /ping
// answers health checks.
type invocationHandler struct {
	predictor registry.Predictor
	logger    log.Logger
	mux       *http.ServeMux
}

func newInvocationHandler(predictor registry.Predictor, logger log.Logger) *invocationHandler {
	h := &invocationHandler{
		predictor: predictor,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	h.mux.HandleFunc("/invocations", h.invoke)
	h.mux.HandleFunc("/ping", h.ping)
	return h
}

func (h *invocationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *invocationHandler) ping(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *invocationHandler) invoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	started := time.Now()

	X, err := dataset.ReadFeaturesCSV(r.Body)
	if err != nil {
		h.logger.Warn("Rejected invocation payload", log.ErrAttrKey, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	predictions, err := h.predictor.Predict(X)
	if err != nil {
		h.logger.Warn("Invocation failed", log.ErrAttrKey, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", csvContentType)
	if err := dataset.WritePredictions(w, predictions); err != nil {
		h.logger.Error("Writing invocation response failed", log.ErrAttrKey, err)
		return
	}

	rows, _ := X.Dims()
	h.logger.Debug("Served invocation",
		log.SamplesKey, rows,
		log.DurationMsKey, time.Since(started).Milliseconds())
}
