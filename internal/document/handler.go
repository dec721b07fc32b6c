package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"collabdoc/internal/document/model"
	"collabdoc/internal/document/service"
	flagmodel "collabdoc/internal/moderation/model"
	"collabdoc/middleware"
	"collabdoc/pkg/apperr"
	"collabdoc/pkg/logger"
)

type DocumentHandler struct {
	Service *service.DocumentService
}

func NewDocumentHandler(service *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: service}
}

// Documents serves POST (create) and GET ?docId= (fetch) on one path.
func (h *DocumentHandler) Documents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.CreateDocument(w, r)
	case http.MethodGet:
		h.GetDocument(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var req model.CreateDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	doc, err := h.Service.CreateDocument(r.Context(), caller, req)
	if err != nil {
		writeError(w, "create document", err)
		return
	}
	writeJSON(w, http.StatusCreated, model.CreateDocResponse{DocID: doc.ID, Revision: doc.Revision})
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	docID, ok := requiredQuery(w, r, "docId")
	if !ok {
		return
	}

	doc, err := h.Service.GetDocument(r.Context(), caller, docID)
	if err != nil {
		writeError(w, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ViewDocument returns the document with approved flags as comments.
func (h *DocumentHandler) ViewDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	docID, ok := requiredQuery(w, r, "docId")
	if !ok {
		return
	}

	view, err := h.Service.ViewDocument(r.Context(), caller, docID)
	if err != nil {
		writeError(w, "view document", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *DocumentHandler) RecentDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	docs, err := h.Service.RecentlyApproved(r.Context(), caller)
	if err != nil {
		writeError(w, "list recent documents", err)
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// GetRevision returns the full text of one historical revision.
func (h *DocumentHandler) GetRevision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	docID, ok := requiredQuery(w, r, "docId")
	if !ok {
		return
	}
	rev, err := strconv.Atoi(r.URL.Query().Get("rev"))
	if err != nil {
		http.Error(w, "Invalid rev parameter", http.StatusBadRequest)
		return
	}

	content, err := h.Service.RevisionText(r.Context(), caller, docID, rev)
	if err != nil {
		writeError(w, "reconstruct revision", err)
		return
	}
	writeJSON(w, http.StatusOK, model.RevisionTextResponse{DocID: docID, Revision: rev, Content: content})
}

func (h *DocumentHandler) ListRevisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	docID, ok := requiredQuery(w, r, "docId")
	if !ok {
		return
	}
	from := 1
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "Invalid from parameter", http.StatusBadRequest)
			return
		}
		from = parsed
	}

	revs, err := h.Service.Revisions(r.Context(), caller, docID, from)
	if err != nil {
		writeError(w, "list revisions", err)
		return
	}
	if revs == nil {
		revs = []model.Revision{}
	}
	writeJSON(w, http.StatusOK, revs)
}

func (h *DocumentHandler) SubmitForReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var req model.SubmitForReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	doc, err := h.Service.SubmitForReview(r.Context(), caller, req.DocID)
	if err != nil {
		writeError(w, "submit for review", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var req model.SubmitReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	doc, err := h.Service.SubmitReview(r.Context(), caller, req)
	if err != nil {
		writeError(w, "submit review", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DocumentFlags serves POST (raise a flag) and GET ?docId= (list flags).
func (h *DocumentHandler) DocumentFlags(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req flagmodel.CreateFlagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		f, err := h.Service.CreateFlag(r.Context(), caller, req)
		if err != nil {
			writeError(w, "create flag", err)
			return
		}
		writeJSON(w, http.StatusCreated, f)
	case http.MethodGet:
		docID, ok := requiredQuery(w, r, "docId")
		if !ok {
			return
		}
		flags, err := h.Service.ListFlags(r.Context(), caller, docID)
		if err != nil {
			writeError(w, "list flags", err)
			return
		}
		if flags == nil {
			flags = []flagmodel.Flag{}
		}
		writeJSON(w, http.StatusOK, flags)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *DocumentHandler) GetFlag(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	flagID, ok := requiredQuery(w, r, "flagId")
	if !ok {
		return
	}

	f, err := h.Service.GetFlag(r.Context(), caller, flagID)
	if err != nil {
		writeError(w, "get flag", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *DocumentHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var req flagmodel.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FlagID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	f, err := h.Service.CastVote(r.Context(), caller, req)
	if err != nil {
		writeError(w, "cast vote", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func identity(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return caller, ok
}

func requiredQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := r.URL.Query().Get(name)
	if value == "" {
		http.Error(w, "Missing "+name+" parameter", http.StatusBadRequest)
		return "", false
	}
	return value, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error kind to a status code. Server-side kinds are
// logged; client mistakes are not.
func writeError(w http.ResponseWriter, action string, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		logger.Sugar.Errorf("Handler: Failed to %s: %v", action, err)
	}
	writeJSON(w, status, model.ErrorResponse{Code: string(kind), Message: apperr.Message(err)})
}
