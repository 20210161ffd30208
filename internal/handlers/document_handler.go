package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
	"github.com/tejasgodse24/chat-with-pdf/internal/services"
)

// multipart framing allowed on top of the file itself
const formOverhead = 1 << 20

// DocumentService is what the files API needs from the document layer
type DocumentService interface {
	UploadDocument(ctx context.Context, req *services.UploadDocumentRequest) (*services.UploadDocumentResponse, error)
	GetDocument(ctx context.Context, documentID string) (*repositories.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*repositories.Document, int, error)
	IngestDocument(ctx context.Context, documentID string) (services.IngestResult, error)
	HandleUploadEvent(ctx context.Context, key string) (*services.UploadEventResult, error)
}

// DocumentHandler handles HTTP requests for uploaded files
type DocumentHandler struct {
	docService DocumentService
	maxBytes   int64
	logger     logger.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(docService DocumentService, maxBytes int64, log logger.Logger) *DocumentHandler {
	if maxBytes <= 0 {
		maxBytes = services.MaxUploadBytes
	}
	return &DocumentHandler{
		docService: docService,
		maxBytes:   maxBytes,
		logger:     log,
	}
}

// DocumentListResponse is a page of documents
type DocumentListResponse struct {
	Files  []*repositories.Document `json:"files"`
	Total  int                      `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// UploadDocument handles PDF uploads
// @Summary Upload a PDF
// @Description Store a PDF and register it as uploaded. Ingestion is queued unless ingest=false.
// @Tags files
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF file"
// @Param ingest formData bool false "Queue ingestion after upload" default(true)
// @Success 201 {object} services.UploadDocumentResponse
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/files [post]
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Upload request from %s", r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, h.logger, apperrors.PayloadTooLarge("upload_document", err.Error()))
			return
		}
		sendError(w, h.logger, apperrors.New(apperrors.ErrValidation, "upload_document", "failed to parse form data", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		sendError(w, h.logger, apperrors.Validation("upload_document", "no file uploaded"))
		return
	}
	defer file.Close()

	resp, err := h.docService.UploadDocument(r.Context(), &services.UploadDocumentRequest{
		Filename:    header.Filename,
		FileContent: file,
		Ingest:      boolFormValue(r, "ingest", true),
	})
	if err != nil {
		sendError(w, h.logger, err)
		return
	}

	sendJSON(w, h.logger, http.StatusCreated, resp)
}

// ListDocuments handles requests to list uploaded files
// @Summary List files
// @Description Page through uploaded files, newest first
// @Tags files
// @Produce json
// @Param limit query int false "Page size (1-100)" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} DocumentListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/files [get]
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pagination(r)
	if err != nil {
		sendError(w, h.logger, err)
		return
	}

	docs, total, err := h.docService.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		sendError(w, h.logger, err)
		return
	}
	if docs == nil {
		docs = []*repositories.Document{}
	}

	sendJSON(w, h.logger, http.StatusOK, DocumentListResponse{
		Files:  docs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetDocument handles requests for one file
// @Summary Get file
// @Description Get a file's metadata, ingestion status and error message
// @Tags files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} repositories.Document
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/files/{id} [get]
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["id"]

	doc, err := h.docService.GetDocument(r.Context(), documentID)
	if err != nil {
		sendError(w, h.logger, err)
		return
	}

	sendJSON(w, h.logger, http.StatusOK, doc)
}

// IngestDocument runs ingestion for a file and waits for the outcome
// @Summary Ingest file
// @Description Extract, chunk, embed and index a file synchronously. Failures are reported in the body.
// @Tags files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} services.IngestResult
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/files/{id}/ingest [post]
func (h *DocumentHandler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["id"]
	h.logger.Info("Ingest request for %s", documentID)

	result, err := h.docService.IngestDocument(r.Context(), documentID)
	if err != nil {
		sendError(w, h.logger, err)
		return
	}

	sendJSON(w, h.logger, http.StatusOK, result)
}
