package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/questlore/questpub/pkg/questpub"
)

// MaxContentBytes caps the size of an uploaded quest document
const MaxContentBytes = 1 << 20

// PublishResponse is the response body for publish and unpublish
type PublishResponse struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
}

// ValidateResponse is the response body for a content dry run
type ValidateResponse struct {
	Valid bool            `json:"valid"`
	Quest *questpub.Quest `json:"quest"`
}

// QuestHandler serves quest search, lookup and publication
type QuestHandler struct {
	service questpub.Service
}

// NewQuestHandler creates a new quest handler
func NewQuestHandler(service questpub.Service) *QuestHandler {
	return &QuestHandler{service: service}
}

// Routes returns the quest routes. Reads are open to anonymous callers;
// writes act on the caller's own documents and need an identity.
//
//	GET    /quests                        search
//	GET    /quests/{id}                   one quest
//	POST   /quests/validate               dry-run a document
//	POST   /documents                     publish a new document
//	PUT    /documents/{docID}/publication publish or republish
//	DELETE /documents/{docID}/publication unpublish
func (h *QuestHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/quests", h.SearchQuests)
	r.Get("/quests/{id}", h.GetQuest)
	r.Post("/quests/validate", h.ValidateQuest)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/documents", h.PublishNewDocument)
		r.Put("/documents/{docID}/publication", h.PublishDocument)
		r.Delete("/documents/{docID}/publication", h.UnpublishDocument)
	})

	return r
}

// SearchQuests runs a search built from the URL query
func (h *QuestHandler) SearchQuests(w http.ResponseWriter, r *http.Request) {
	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	req, err := questpub.ParseSearchRequest(params)
	if err != nil {
		writeServiceError(w, r, "search", err)
		return
	}

	result, err := h.service.Search(r.Context(), UserIDFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, "search", err)
		return
	}

	render.JSON(w, r, result)
}

// GetQuest returns one quest. Drafts and unpublished quests are only shown
// to their owner.
func (h *QuestHandler) GetQuest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	quest, err := h.service.GetQuest(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "get", err)
		return
	}

	isOwner := quest.OwnerID != "" && quest.OwnerID == UserIDFromContext(r.Context())
	if !isOwner && (!quest.IsPublished() || quest.IsTombstoned()) {
		writeServiceError(w, r, "get", questpub.ErrQuestNotFound)
		return
	}

	render.JSON(w, r, quest)
}

// ValidateQuest translates the request body without storing anything
func (h *QuestHandler) ValidateQuest(w http.ResponseWriter, r *http.Request) {
	content, ok := readContent(w, r)
	if !ok {
		return
	}

	quest, err := h.service.ValidateContent(content)
	if err != nil {
		writeServiceError(w, r, "validate", err)
		return
	}

	render.JSON(w, r, ValidateResponse{Valid: true, Quest: quest})
}

// PublishNewDocument publishes the body under a freshly generated document id
func (h *QuestHandler) PublishNewDocument(w http.ResponseWriter, r *http.Request) {
	h.publish(w, r, uuid.NewString(), http.StatusCreated)
}

// PublishDocument publishes or republishes the caller's document
func (h *QuestHandler) PublishDocument(w http.ResponseWriter, r *http.Request) {
	h.publish(w, r, chi.URLParam(r, "docID"), http.StatusOK)
}

func (h *QuestHandler) publish(w http.ResponseWriter, r *http.Request, documentID string, status int) {
	content, ok := readContent(w, r)
	if !ok {
		return
	}

	id, err := h.service.Publish(r.Context(), UserIDFromContext(r.Context()), documentID, content)
	if err != nil {
		writeServiceError(w, r, "publish", err)
		return
	}

	render.Status(r, status)
	render.JSON(w, r, PublishResponse{ID: id, DocumentID: documentID})
}

// UnpublishDocument tombstones the caller's document
func (h *QuestHandler) UnpublishDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "docID")

	id, err := h.service.Unpublish(r.Context(), UserIDFromContext(r.Context()), documentID)
	if err != nil {
		writeServiceError(w, r, "unpublish", err)
		return
	}

	render.JSON(w, r, PublishResponse{ID: id, DocumentID: documentID})
}

func readContent(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxContentBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "content too large", nil)
			return nil, false
		}
		writeError(w, r, http.StatusBadRequest, "failed to read body", nil)
		return nil, false
	}
	return content, true
}
