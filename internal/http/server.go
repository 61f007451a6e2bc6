package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/avenca/flowline/internal/log"
	"github.com/avenca/flowline/pkg/engine"
	"github.com/avenca/flowline/pkg/storage"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// NewRouter builds the engine's HTTP surface: webhook ingestion plus
// execution status and cancellation. Response-code mapping lives here; the
// engine itself knows nothing about HTTP.
func NewRouter(eng *engine.Engine, store storage.Store) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", HealthHandler)
	r.Get("/workflows", ListWorkflowsHandler(store))
	r.Post("/workflows/{workflowID}/trigger", TriggerHandler(eng))
	r.Post("/webhooks/{slug}", WebhookHandler(eng))
	r.Get("/executions/{executionID}", ExecutionStatusHandler(eng))
	r.Post("/executions/{executionID}/cancel", CancelExecutionHandler(eng))
	return r
}

func StartServer(port string, eng *engine.Engine, store storage.Store) error {
	log.GetLogger().Infof("Starting flowline server on :%s", port)
	return http.ListenAndServe(":"+port, NewRouter(eng, store))
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "flowline server is running")
}

func ListWorkflowsHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workflows, err := store.ListWorkflows()
		if err != nil {
			log.GetLogger().Errorf("Failed to list workflows: %v", err)
			http.Error(w, "Failed to list workflows", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, workflows)
	}
}

func TriggerHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workflowID := chi.URLParam(r, "workflowID")
		payload, err := decodePayload(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		execID, err := eng.TriggerManually(workflowID, payload)
		if err != nil {
			log.GetLogger().Errorf("Failed to trigger workflow %s: %v", workflowID, err)
			status := http.StatusInternalServerError
			if errors.Is(err, storage.ErrNotFound) {
				status = http.StatusNotFound
			} else if engine.IsDefinitionError(err) {
				status = http.StatusUnprocessableEntity
			}
			http.Error(w, fmt.Sprintf("Failed to trigger workflow: %v", err), status)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": execID})
	}
}

func WebhookHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		payload, err := decodePayload(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ids, err := eng.TriggerByWebhook(slug, payload)
		if err != nil {
			log.GetLogger().Errorf("Failed to dispatch webhook %s: %v", slug, err)
			http.Error(w, "Failed to dispatch webhook", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"execution_ids": ids})
	}
}

func ExecutionStatusHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		executionID := chi.URLParam(r, "executionID")
		exec, err := eng.GetExecutionStatus(executionID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "Execution not found", http.StatusNotFound)
				return
			}
			log.GetLogger().Errorf("Failed to get execution %s: %v", executionID, err)
			http.Error(w, "Failed to get execution", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, exec)
	}
}

func CancelExecutionHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		executionID := chi.URLParam(r, "executionID")
		if err := eng.CancelExecution(executionID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "Execution not found", http.StatusNotFound)
				return
			}
			log.GetLogger().Errorf("Failed to cancel execution %s: %v", executionID, err)
			http.Error(w, "Failed to cancel execution", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": executionID, "status": "cancellation requested"})
	}
}

func decodePayload(r *http.Request) (map[string]interface{}, error) {
	payload := map[string]interface{}{}
	if r.Body == nil || r.ContentLength == 0 {
		return payload, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "invalid JSON payload")
	}
	return payload, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}
