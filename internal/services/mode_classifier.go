package services

import (
	"context"

	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
)

// Retrieval modes reported with an answer
const (
	RetrievalModeInline = "inline"
	RetrievalModeRAG    = "rag"
)

// ModePartition splits a set of documents by how they can be used this turn.
// Every input id lands in exactly one list, in input order.
type ModePartition struct {
	Inline      []string // uploaded, answered from raw bytes
	RAG         []string // completed, answered through search
	Unavailable []string // processing, failed or unknown

	docs map[string]*repositories.Document
}

// Document returns the registry entry read while partitioning
func (p ModePartition) Document(id string) (*repositories.Document, bool) {
	doc, ok := p.docs[id]
	return doc, ok
}

// IsRAG reports whether id is searchable this turn
func (p ModePartition) IsRAG(id string) bool {
	doc, ok := p.docs[id]
	return ok && doc.Status == repositories.DocumentStatusCompleted
}

// PartitionDocuments classifies ids by the status found in docs. Duplicate
// ids are reported once.
func PartitionDocuments(ids []string, docs map[string]*repositories.Document) ModePartition {
	p := ModePartition{docs: docs}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		doc, ok := docs[id]
		switch {
		case !ok:
			p.Unavailable = append(p.Unavailable, id)
		case doc.Status == repositories.DocumentStatusUploaded:
			p.Inline = append(p.Inline, id)
		case doc.Status == repositories.DocumentStatusCompleted:
			p.RAG = append(p.RAG, id)
		default:
			p.Unavailable = append(p.Unavailable, id)
		}
	}
	return p
}

// ModeClassifier reads current document status from the registry
type ModeClassifier struct {
	docRepo repositories.DocumentRepository
}

// NewModeClassifier creates a classifier over the document registry
func NewModeClassifier(docRepo repositories.DocumentRepository) *ModeClassifier {
	return &ModeClassifier{docRepo: docRepo}
}

// Classify reads each document's status now. Results are never cached:
// status may change between turns.
func (c *ModeClassifier) Classify(ctx context.Context, fileIDs []string) (ModePartition, error) {
	if len(fileIDs) == 0 {
		return ModePartition{}, nil
	}
	docs, err := c.docRepo.GetBatch(ctx, fileIDs)
	if err != nil {
		return ModePartition{}, err
	}
	byID := make(map[string]*repositories.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}
	return PartitionDocuments(fileIDs, byID), nil
}
