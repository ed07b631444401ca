package devserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ventilearn/ventilearn/internal/curriculum"
	"github.com/ventilearn/ventilearn/internal/syncapi"
)

const defaultLearnerID = "default"

// Handler serves the progress wire contract:
//
//	GET  /progress?moduleId=&lessonId=
//	PUT  /progress
//	POST /progress/sync
//
// When a curriculum graph is provided, writes to lessons the graph does not
// know are rejected with 404 so clients can exercise their not-found path.
type Handler struct {
	storage *Storage
	graph   *curriculum.Graph
	token   string
}

// NewHandler builds the handler. graph may be nil to accept writes for any
// lesson; token may be empty to disable authentication.
func NewHandler(storage *Storage, graph *curriculum.Graph, token string) *Handler {
	return &Handler{
		storage: storage,
		graph:   graph,
		token:   token,
	}
}

// Routes returns the HTTP mux for the handler.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /progress", h.handleList)
	mux.HandleFunc("PUT /progress", h.handleUpdate)
	mux.HandleFunc("POST /progress/sync", h.handleBulkSync)
	return mux
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if h.token == "" {
		return true
	}
	authorization := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authorization, "Bearer "); !ok || token != h.token {
		writeError(w, http.StatusUnauthorized, "invalid or missing bearer token", "unauthorized")
		return false
	}
	return true
}

func learnerID(r *http.Request) string {
	if id := r.Header.Get("X-Learner-ID"); id != "" {
		return id
	}
	return defaultLearnerID
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	records, err := h.storage.List(r.Context(), learnerID(r),
		r.URL.Query().Get("moduleId"), r.URL.Query().Get("lessonId"))
	if err != nil {
		slog.Error("Failed to list progress records", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to load progress", "internal")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var update syncapi.ProgressUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "bad_request")
		return
	}
	if status, message := h.validateUpdate(update); status != 0 {
		writeError(w, status, message, codeForStatus(status))
		return
	}

	record, _, err := h.storage.Merge(r.Context(), learnerID(r), update)
	if err != nil {
		slog.Error("Failed to merge progress update",
			slog.String("lessonId", update.LessonID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to store progress", "internal")
		return
	}

	response := syncapi.UpdateResponse{LessonProgress: record}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleBulkSync(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var updates []syncapi.ProgressUpdate
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "bad_request")
		return
	}
	for _, update := range updates {
		if status, message := h.validateUpdate(update); status != 0 {
			writeError(w, status, message, codeForStatus(status))
			return
		}
	}

	response := syncapi.BulkResponse{
		Merged:  make([]syncapi.MergeStatus, 0, len(updates)),
		Records: nil,
	}
	learner := learnerID(r)
	for _, update := range updates {
		record, merged, err := h.storage.Merge(r.Context(), learner, update)
		if err != nil {
			slog.Error("Failed to merge bulk progress update",
				slog.String("lessonId", update.LessonID), slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "failed to store progress", "internal")
			return
		}
		response.Merged = append(response.Merged, syncapi.MergeStatus{
			LessonID: update.LessonID,
			Merged:   merged,
		})
		response.Records = append(response.Records, record)
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) validateUpdate(update syncapi.ProgressUpdate) (int, string) {
	if update.LessonID == "" {
		return http.StatusBadRequest, "lessonId is required"
	}
	if update.ModuleID == "" {
		return http.StatusBadRequest, "moduleId is required"
	}
	if h.graph != nil {
		if _, ok := h.graph.Lesson(update.ModuleID, update.LessonID); !ok {
			return http.StatusNotFound, fmt.Sprintf("lesson %q is not provisioned", update.LessonID)
		}
	}
	return 0, ""
}

func codeForStatus(status int) string {
	if status == http.StatusNotFound {
		return "not_found"
	}
	return "bad_request"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	type errorBody struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	writeJSON(w, status, struct {
		Error errorBody `json:"error"`
	}{Error: errorBody{Message: message, Code: code}})
}
