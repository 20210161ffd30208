package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
)

const (
	MaxUploadBytes      = 50 << 20
	maxFilenameLength   = 255
	invalidFilenameRune = `/\<>:"|?*`
)

// DocumentService stores uploaded PDFs and hands them to ingestion
type DocumentService struct {
	blobs    BlobStore
	docRepo  repositories.DocumentRepository
	ingester Ingester
	maxBytes int64
	logger   logger.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(
	blobs BlobStore,
	docRepo repositories.DocumentRepository,
	ingester Ingester,
	maxBytes int64,
	log logger.Logger,
) *DocumentService {
	if maxBytes <= 0 {
		maxBytes = MaxUploadBytes
	}
	return &DocumentService{
		blobs:    blobs,
		docRepo:  docRepo,
		ingester: ingester,
		maxBytes: maxBytes,
		logger:   log,
	}
}

// UploadDocumentRequest represents a request to upload a document
type UploadDocumentRequest struct {
	Filename    string
	FileContent io.Reader
	// Ingest queues ingestion right after the upload is stored
	Ingest bool
}

// UploadDocumentResponse represents the response from uploading a document
type UploadDocumentResponse struct {
	DocumentID string `json:"file_id"`
	Filename   string `json:"filename"`
	FileSize   int64  `json:"file_size"`
	StorageKey string `json:"storage_key"`
	Status     string `json:"status"`
	JobID      string `json:"job_id,omitempty"`
}

// UploadDocument stores the bytes and registers the document as uploaded
func (s *DocumentService) UploadDocument(ctx context.Context, req *UploadDocumentRequest) (*UploadDocumentResponse, error) {
	if err := validateUploadRequest(req); err != nil {
		s.logger.Warn("Invalid upload request: %v", err)
		return nil, err
	}

	content := bufio.NewReader(req.FileContent)
	head, err := content.Peek(len(pdfMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, apperrors.New(apperrors.ErrValidation, "upload_document", "failed to read upload", err)
	}
	if !bytes.HasPrefix(head, pdfMagic) {
		return nil, apperrors.New(apperrors.ErrUnsupportedFormat, "upload_document", "file is not a PDF", nil)
	}

	documentID := uuid.NewString()
	key := StorageKeyFor(documentID)

	limited := &io.LimitedReader{R: content, N: s.maxBytes + 1}
	size, err := s.blobs.Put(ctx, key, limited)
	if err != nil {
		s.logger.Error("Failed to store upload %s: %v", req.Filename, err)
		return nil, err
	}
	if size > s.maxBytes {
		// the oversized blob is left unreferenced
		return nil, apperrors.PayloadTooLarge("upload_document",
			fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}

	doc := &repositories.Document{
		ID:         documentID,
		Filename:   req.Filename,
		StorageKey: key,
		FileSize:   size,
		Status:     repositories.DocumentStatusUploaded,
	}
	if err := s.docRepo.Register(ctx, doc); err != nil {
		s.logger.Error("Failed to register document %s: %v", documentID, err)
		return nil, err
	}
	s.logger.Info("Stored document %s (%s, %d bytes)", documentID, req.Filename, size)

	resp := &UploadDocumentResponse{
		DocumentID: documentID,
		Filename:   req.Filename,
		FileSize:   size,
		StorageKey: key,
		Status:     string(doc.Status),
	}
	if req.Ingest {
		job, err := s.ingester.Enqueue(ctx, documentID)
		if err != nil {
			// the upload itself succeeded; ingestion can be triggered again
			s.logger.Error("Failed to enqueue ingestion for %s: %v", documentID, err)
		} else if job != nil {
			resp.JobID = job.ID
		}
	}
	return resp, nil
}

func validateUploadRequest(req *UploadDocumentRequest) error {
	if req.FileContent == nil {
		return apperrors.Validation("upload_document", "file content is required")
	}
	req.Filename = strings.TrimSpace(req.Filename)
	if req.Filename == "" {
		return apperrors.Validation("upload_document", "filename is required")
	}
	if len(req.Filename) > maxFilenameLength {
		return apperrors.Validation("upload_document", "filename is too long")
	}
	if strings.ContainsAny(req.Filename, invalidFilenameRune) {
		return apperrors.Validation("upload_document", "filename contains invalid characters")
	}
	if !strings.EqualFold(filepath.Ext(req.Filename), ".pdf") {
		return apperrors.New(apperrors.ErrUnsupportedFormat, "upload_document", "only .pdf files are accepted", nil)
	}
	return nil
}

// GetDocument retrieves document metadata
func (s *DocumentService) GetDocument(ctx context.Context, documentID string) (*repositories.Document, error) {
	return s.docRepo.Get(ctx, documentID)
}

// ListDocuments lists documents newest first
func (s *DocumentService) ListDocuments(ctx context.Context, offset, limit int) ([]*repositories.Document, int, error) {
	return s.docRepo.List(ctx, offset, limit)
}

// UploadEventResult reports what an upload notification triggered
type UploadEventResult struct {
	DocumentID string `json:"file_id"`
	JobID      string `json:"job_id,omitempty"`
	Queued     bool   `json:"queued"`
}

// HandleUploadEvent enqueues ingestion for the document stored under key.
// Documents already processing or completed are left alone.
func (s *DocumentService) HandleUploadEvent(ctx context.Context, key string) (*UploadEventResult, error) {
	documentID, err := ParseStorageKey(key)
	if err != nil {
		return nil, err
	}
	job, err := s.ingester.Enqueue(ctx, documentID)
	if err != nil {
		return nil, err
	}
	result := &UploadEventResult{DocumentID: documentID}
	if job != nil {
		result.JobID = job.ID
		result.Queued = true
	}
	return result, nil
}

// IngestDocument runs ingestion synchronously
func (s *DocumentService) IngestDocument(ctx context.Context, documentID string) (IngestResult, error) {
	if _, err := s.docRepo.Get(ctx, documentID); err != nil {
		return IngestResult{}, err
	}
	return s.ingester.Ingest(ctx, documentID), nil
}
