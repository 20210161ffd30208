package repositories

import (
	"context"
	"time"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
)

// DocumentRepository defines the interface for document registry operations
// This abstracts Redis operations for document metadata storage
type DocumentRepository interface {
	Register(ctx context.Context, doc *Document) error
	Get(ctx context.Context, documentID string) (*Document, error)
	// GetBatch returns the documents that exist, in input order. Missing ids are skipped.
	GetBatch(ctx context.Context, documentIDs []string) ([]*Document, error)
	List(ctx context.Context, offset, limit int) ([]*Document, int, error)
	ListByStatus(ctx context.Context, status DocumentStatus) ([]*Document, error)

	// TransitionStatus atomically moves a document from one of the allowed
	// statuses to another. If the current status is not in from, the document
	// is left untouched and a conflict error is returned. mutate, if set, is
	// applied to the document inside the same transaction.
	TransitionStatus(ctx context.Context, documentID string, from []DocumentStatus, to DocumentStatus, mutate func(*Document)) (*Document, error)

	Ping(ctx context.Context) error
}

// Document represents an uploaded PDF in the registry
type Document struct {
	ID           string         `json:"document_id"`
	Filename     string         `json:"filename"`
	StorageKey   string         `json:"storage_key"`
	FileSize     int64          `json:"file_size"`
	Status       DocumentStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ChunkCount   int            `json:"chunk_count"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// DocumentStatus represents the ingestion status of a document
type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// DocumentRepositoryError represents errors from the document repository
type DocumentRepositoryError struct {
	Kind       error
	Operation  string
	DocumentID string
	Err        error
	Message    string
}

func (e *DocumentRepositoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	prefix := e.Operation
	if e.DocumentID != "" {
		prefix += " (doc: " + e.DocumentID + ")"
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *DocumentRepositoryError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewDocumentRepositoryError creates a new document repository error for a
// failed store call
func NewDocumentRepositoryError(operation string, documentID string, err error, message string) *DocumentRepositoryError {
	return &DocumentRepositoryError{
		Kind:       apperrors.ErrExternalService,
		Operation:  operation,
		DocumentID: documentID,
		Err:        err,
		Message:    message,
	}
}

// Common error constructors
func DocumentNotFoundError(documentID string) error {
	return &DocumentRepositoryError{
		Kind:       apperrors.ErrNotFound,
		Operation:  "get_document",
		DocumentID: documentID,
		Message:    "document not found: " + documentID,
	}
}

func DocumentAlreadyExistsError(documentID string) error {
	return &DocumentRepositoryError{
		Kind:       apperrors.ErrConflict,
		Operation:  "register_document",
		DocumentID: documentID,
		Message:    "document already exists: " + documentID,
	}
}

func InvalidDocumentError(documentID string, reason string) error {
	return &DocumentRepositoryError{
		Kind:       apperrors.ErrValidation,
		Operation:  "validate_document",
		DocumentID: documentID,
		Message:    "invalid document: " + reason,
	}
}

// StatusConflictError reports a transition attempted from the wrong status.
type StatusConflictError struct {
	DocumentID string
	Current    DocumentStatus
	Target     DocumentStatus
}

func (e *StatusConflictError) Error() string {
	return "document " + e.DocumentID + " is " + string(e.Current) + ", cannot move to " + string(e.Target)
}

func (e *StatusConflictError) Unwrap() error {
	return apperrors.ErrConflict
}

// Validate checks the fields required to register a document
func (d *Document) Validate() error {
	if d.ID == "" {
		return InvalidDocumentError("", "document ID is required")
	}
	if d.Filename == "" {
		return InvalidDocumentError(d.ID, "filename is required")
	}
	if d.StorageKey == "" {
		return InvalidDocumentError(d.ID, "storage key is required")
	}
	if d.FileSize < 0 {
		return InvalidDocumentError(d.ID, "file size cannot be negative")
	}
	if d.Status != "" && !d.Status.IsValid() {
		return InvalidDocumentError(d.ID, "unknown status "+string(d.Status))
	}
	return nil
}

// IsValid checks if document status is valid
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusUploaded, DocumentStatusProcessing, DocumentStatusCompleted, DocumentStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of document status
func (s DocumentStatus) String() string {
	return string(s)
}
