package service

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// HealthzServer serves the liveness endpoint and the run results API.
type HealthzServer struct {
	ctx    context.Context
	server *http.Server
	runs   *RunStore
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Handle).Methods(http.MethodGet)
	r.HandleFunc("/runs", h.HandleRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/latest", h.HandleLatestRun).Methods(http.MethodGet)
	r.HandleFunc("/runs/{run-id}", h.HandleRun).Methods(http.MethodGet)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	server := &http.Server{
		Handler: c.Handler(r),
		Addr:    addr,
	}
	h.server = server
	h.ctx = ctx
	return h.server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

// HandleRuns serves the stored run reports, most recent first.
func (h *HealthzServer) HandleRuns(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, h.runs.List())
}

// HandleLatestRun serves the most recent run report.
func (h *HealthzServer) HandleLatestRun(w http.ResponseWriter, r *http.Request) {
	report, ok := h.runs.Latest()
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, errorResponse{Error: "no runs recorded yet"})
		return
	}
	writeJSONResponse(w, http.StatusOK, report)
}

// HandleRun serves a single run report by run ID.
func (h *HealthzServer) HandleRun(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	runID := vars["run-id"]

	report, ok := h.runs.Get(runID)
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, errorResponse{Error: "unknown run id: " + runID})
		return
	}
	writeJSONResponse(w, http.StatusOK, report)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, payload any) {
	body, err := json.MarshalIndent(payload, "", "    ")
	if err != nil {
		log.Error("failed to marshal response struct into string", "error", err)
		statusCode = http.StatusInternalServerError
		body = []byte(`{"error":"internal server error"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		log.Error("failed to send response for runs api", "error", err)
	}
}
