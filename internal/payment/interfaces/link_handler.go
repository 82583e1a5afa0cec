package interfaces

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/avika/achexport/internal/auth"
	"github.com/avika/achexport/internal/payment/application"
	"go.uber.org/zap"
)

const downloadPathPrefix = "/api/downloads/"

type issueLinkRequest struct {
	FilePath   string `json:"file_path"`
	TTLMinutes *int   `json:"ttl_minutes"`
}

type LinkHandler struct {
	service      application.LinkServiceInterface
	respondJSON  RespondJSONFunc
	respondError RespondErrorFunc
	logger       *zap.Logger
}

func NewLinkHandler(
	service application.LinkServiceInterface,
	respondJSON RespondJSONFunc,
	respondError RespondErrorFunc,
	logger *zap.Logger,
) *LinkHandler {
	if service == nil {
		log.Fatal("Service must not be nil")
		return nil
	}
	if respondJSON == nil || respondError == nil {
		log.Fatal("Respond functions must not be nil")
		return nil
	}
	return &LinkHandler{
		service:      service,
		respondJSON:  respondJSON,
		respondError: respondError,
		logger:       logger,
	}
}

func linkPayload(issued *application.IssuedLink) map[string]interface{} {
	return map[string]interface{}{
		"token":        issued.Token,
		"expires_at":   issued.ExpiresAt,
		"download_url": downloadPathPrefix + issued.Token,
	}
}

// IssueLink creates a one-time download link; the operator identity becomes
// the link's created_by.
func (h *LinkHandler) IssueLink(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req issueLinkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	issued, err := h.service.IssueLink(r.Context(), req.FilePath, actor, req.TTLMinutes)
	if err != nil {
		status, message, details := errorResponse(err, "Failed to issue download link")
		if status >= http.StatusInternalServerError {
			h.logger.Error("Error during link issue", zap.String("actor", actor), zap.Error(err))
		}
		h.respondError(w, status, message, details)
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Download link issued.",
		"data":    linkPayload(issued),
	})
}

// RedeemLink streams the batch file exactly once.
func (h *LinkHandler) RedeemLink(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	download, err := h.service.RedeemLink(r.Context(), token)
	if err != nil {
		status, message, details := errorResponse(err, "Failed to redeem download link")
		if status >= http.StatusInternalServerError {
			h.logger.Error("Error during link redemption", zap.Error(err))
		}
		h.respondError(w, status, message, details)
		return
	}
	defer download.File.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Name))
	w.Header().Set("Content-Length", strconv.FormatInt(download.Size, 10))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, download.File); err != nil {
		h.logger.Error("Error streaming batch file", zap.String("file", download.Name), zap.Error(err))
	}
}
