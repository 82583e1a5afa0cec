package interfaces

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/avika/achexport/internal/auth"
	"github.com/avika/achexport/internal/payment/application"
	"go.uber.org/zap"
)

type buildBatchRequest struct {
	Date           string `json:"date"`
	Run            int    `json:"run"`
	EntryClassCode string `json:"entry_class_code"`
	IssueLink      bool   `json:"issue_link"`
	TTLMinutes     *int   `json:"ttl_minutes"`
}

type BatchHandler struct {
	builder      application.BatchBuilderInterface
	links        application.LinkServiceInterface
	respondJSON  RespondJSONFunc
	respondError RespondErrorFunc
	logger       *zap.Logger
}

func NewBatchHandler(
	builder application.BatchBuilderInterface,
	links application.LinkServiceInterface,
	respondJSON RespondJSONFunc,
	respondError RespondErrorFunc,
	logger *zap.Logger,
) *BatchHandler {
	if builder == nil || links == nil {
		log.Fatal("Services must not be nil")
		return nil
	}
	if respondJSON == nil || respondError == nil {
		log.Fatal("Respond functions must not be nil")
		return nil
	}
	return &BatchHandler{
		builder:      builder,
		links:        links,
		respondJSON:  respondJSON,
		respondError: respondError,
		logger:       logger,
	}
}

// BuildBatch builds the batch for a date and optionally issues a download
// link for it in the same call.
func (h *BatchHandler) BuildBatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req buildBatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")
		return
	}

	path, err := h.builder.Build(r.Context(), date, application.BatchOptions{
		EntryClassCode: req.EntryClassCode,
		RunNumber:      req.Run,
	})
	if err != nil {
		status, message, details := errorResponse(err, "Failed to build batch")
		if status >= http.StatusInternalServerError {
			h.logger.Error("Error during batch build", zap.String("date", req.Date), zap.String("actor", actor), zap.Error(err))
		}
		h.respondError(w, status, message, details)
		return
	}

	data := map[string]interface{}{"path": path}
	if req.IssueLink {
		issued, err := h.links.IssueLink(r.Context(), path, actor, req.TTLMinutes)
		if err != nil {
			status, message, details := errorResponse(err, "Batch built but the download link could not be issued")
			h.logger.Error("Error issuing link for new batch", zap.String("path", path), zap.Error(err))
			h.respondError(w, status, message, details)
			return
		}
		data["link"] = linkPayload(issued)
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Batch built.",
		"data":    data,
	})
}
