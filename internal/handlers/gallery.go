package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kanojo/studio/internal/auth"
	"github.com/kanojo/studio/internal/generations"
	"github.com/kanojo/studio/internal/logging"
	"github.com/kanojo/studio/internal/models"
	"github.com/kanojo/studio/internal/repositories"
)

const (
	// MomentsPageSize is the number of moments returned per page.
	MomentsPageSize = 12
	// GenerationsPageSize is the number of generations returned per page.
	GenerationsPageSize = 50
)

type generationResponse struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Prompt    string    `json:"prompt"`
	URL       *string   `json:"url"`
	Status    string    `json:"status"`
	Error     *string   `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}

type photoResponse struct {
	ID        string    `json:"id"`
	MomentID  string    `json:"moment_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type momentResponse struct {
	ID        string          `json:"id"`
	User      string          `json:"user"`
	Prompt    string          `json:"prompt"`
	CreatedAt time.Time       `json:"created_at"`
	Photos    []photoResponse `json:"photos"`
}

type generationsPage struct {
	Generations []generationResponse `json:"generations"`
	HasMore     bool                 `json:"hasMore"`
}

type momentsPage struct {
	Moments []momentResponse `json:"moments"`
	HasMore bool             `json:"hasMore"`
}

// GenerationsHandler lists and deletes the signed-in user's generations.
type GenerationsHandler struct {
	Generations GenerationStore
	Objects     ObjectRemover
}

// List handles GET /api/generations?offset=N, newest first.
func (h GenerationsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		respondUnauthorized(ctx, w)
		return
	}

	if h.Generations == nil {
		logging.FromContext(ctx).Error("generation store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}

	offset, ok := parseOffset(r)
	if !ok {
		respondError(ctx, w, http.StatusBadRequest, "Invalid offset")
		return
	}

	// One extra row tells whether another page exists.
	records, err := h.Generations.ListForUser(ctx, user.ID, offset, GenerationsPageSize+1)
	if err != nil {
		logging.FromContext(ctx).Error("list generations failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}

	page := generationsPage{HasMore: len(records) > GenerationsPageSize}
	if page.HasMore {
		records = records[:GenerationsPageSize]
	}
	page.Generations = make([]generationResponse, 0, len(records))
	for _, record := range records {
		page.Generations = append(page.Generations, toGenerationResponse(record))
	}

	respondJSON(ctx, w, http.StatusOK, page)
}

// Delete handles DELETE /api/generations/{id}. The stored image is removed
// after the record; a failure there is logged and otherwise ignored.
func (h GenerationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
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
		logger.Error("generation store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		respondError(ctx, w, http.StatusBadRequest, "Generation id is required")
		return
	}

	deleted, err := h.Generations.Delete(ctx, user.ID, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Generation not found")
			return
		}
		logger.Error("delete generation failed", "error", err, "generationId", id)
		respondError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if deleted.URL != nil && h.Objects != nil {
		key := generations.ObjectKey(user.ID, deleted.ID)
		if err := h.Objects.Delete(ctx, key); err != nil {
			logger.Warn("delete generation image failed", "error", err, "key", key)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// MomentsHandler pages through and deletes the signed-in user's moments.
type MomentsHandler struct {
	Moments MomentStore
}

// List handles GET /api/moments?offset=N.
func (h MomentsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		respondUnauthorized(ctx, w)
		return
	}

	if h.Moments == nil {
		logging.FromContext(ctx).Error("moment store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}

	offset, ok := parseOffset(r)
	if !ok {
		respondError(ctx, w, http.StatusBadRequest, "Invalid offset")
		return
	}

	moments, err := h.Moments.ListPage(ctx, user.ID, offset, MomentsPageSize)
	if err != nil {
		logging.FromContext(ctx).Error("list moments failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}

	page := momentsPage{Moments: make([]momentResponse, 0, len(moments)), HasMore: len(moments) == MomentsPageSize}
	for _, moment := range moments {
		page.Moments = append(page.Moments, toMomentResponse(moment))
	}

	respondJSON(ctx, w, http.StatusOK, page)
}

// Delete handles DELETE /api/moments/{id}.
func (h MomentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		respondUnauthorized(ctx, w)
		return
	}

	if h.Moments == nil {
		logging.FromContext(ctx).Error("moment store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}

	id := r.PathValue("id")
	if err := h.Moments.Delete(ctx, user.ID, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Moment not found")
			return
		}
		logging.FromContext(ctx).Error("delete moment failed", "error", err, "momentId", id)
		respondError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseOffset(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("offset")
	if raw == "" {
		return 0, true
	}
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		return 0, false
	}
	return offset, true
}

func toGenerationResponse(g models.Generation) generationResponse {
	return generationResponse{
		ID:        g.ID,
		User:      g.UserID,
		Prompt:    g.Prompt,
		URL:       g.URL,
		Status:    g.Status,
		Error:     g.Error,
		CreatedAt: g.CreatedAt,
	}
}

func toMomentResponse(m models.Moment) momentResponse {
	photos := make([]photoResponse, 0, len(m.Photos))
	for _, p := range m.Photos {
		photos = append(photos, photoResponse{ID: p.ID, MomentID: p.MomentID, URL: p.URL, CreatedAt: p.CreatedAt})
	}
	return momentResponse{ID: m.ID, User: m.UserID, Prompt: m.Prompt, CreatedAt: m.CreatedAt, Photos: photos}
}
