package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kanojo/studio/internal/auth"
	"github.com/kanojo/studio/internal/generations"
	"github.com/kanojo/studio/internal/logging"
)

// GenerateHandler exposes the generation pipeline.
type GenerateHandler struct {
	Generations GenerationService
}

// Create handles POST /api/generate.
func (h GenerateHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, ok := auth.UserFromContext(ctx)
	if !ok {
		respondUnauthorized(ctx, w)
		return
	}

	if h.Generations == nil {
		logger.Error("generation service unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}

	var req generations.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		logger.Warn("invalid generate payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.Generations.Generate(ctx, user.ID, req)
	if err != nil {
		status, message := generationFailure(err)
		if status >= http.StatusInternalServerError {
			logger.Error("generation failed", "error", err)
		}
		respondError(ctx, w, status, message)
		return
	}

	respondJSON(ctx, w, http.StatusOK, result)
}

// generationFailure maps pipeline errors to the status and message shown to
// the client. Unknown errors never leak their text.
func generationFailure(err error) (int, string) {
	var validationErr *generations.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Message
	case errors.Is(err, generations.ErrUpstreamGeneration):
		return http.StatusInternalServerError, generations.MessageGenerateFailed
	case errors.Is(err, generations.ErrPersistence):
		return http.StatusInternalServerError, generations.MessageSaveFailed
	case errors.Is(err, generations.ErrUpload):
		return http.StatusInternalServerError, generations.MessageUploadFailed
	case errors.Is(err, generations.ErrURLResolution):
		return http.StatusInternalServerError, generations.MessageUpdateFailed
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
