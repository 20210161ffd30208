package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
)

func TestPartitionDocuments(t *testing.T) {
	docs := map[string]*repositories.Document{
		"up":   {ID: "up", Status: repositories.DocumentStatusUploaded},
		"done": {ID: "done", Status: repositories.DocumentStatusCompleted},
		"busy": {ID: "busy", Status: repositories.DocumentStatusProcessing},
		"bad":  {ID: "bad", Status: repositories.DocumentStatusFailed},
	}

	p := PartitionDocuments([]string{"done", "up", "busy", "missing", "bad", "up"}, docs)

	assert.Equal(t, []string{"up"}, p.Inline)
	assert.Equal(t, []string{"done"}, p.RAG)
	assert.Equal(t, []string{"busy", "missing", "bad"}, p.Unavailable)
	assert.True(t, p.IsRAG("done"))
	assert.False(t, p.IsRAG("up"))
	assert.False(t, p.IsRAG("missing"))

	doc, ok := p.Document("up")
	require.True(t, ok)
	assert.Equal(t, "up", doc.ID)
}

func TestModeClassifier_ReadsCurrentStatus(t *testing.T) {
	repo := repositories.NewRedisDocumentRepository(newTestRedis(t))
	registerDoc(t, repo, "a", repositories.DocumentStatusUploaded, 10)
	registerDoc(t, repo, "b", repositories.DocumentStatusCompleted, 10)

	classifier := NewModeClassifier(repo)
	ctx := context.Background()

	p, err := classifier.Classify(ctx, []string{"a", "b", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, p.Inline)
	assert.Equal(t, []string{"b"}, p.RAG)
	assert.Equal(t, []string{"ghost"}, p.Unavailable)

	// a finishes ingestion between turns
	var machine IngestionStateMachine
	for _, next := range []repositories.DocumentStatus{repositories.DocumentStatusProcessing, repositories.DocumentStatusCompleted} {
		_, err := repo.TransitionStatus(ctx, "a", machine.Sources(next), next, nil)
		require.NoError(t, err)
	}

	p, err = classifier.Classify(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, p.Inline)
	assert.Equal(t, []string{"a", "b"}, p.RAG)
}

func TestModeClassifier_Empty(t *testing.T) {
	classifier := NewModeClassifier(repositories.NewRedisDocumentRepository(newTestRedis(t)))
	p, err := classifier.Classify(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, p.Inline)
	assert.Empty(t, p.RAG)
	assert.Empty(t, p.Unavailable)
}
