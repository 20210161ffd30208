package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
	"github.com/tejasgodse24/chat-with-pdf/internal/models"
	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
)

const (
	DefaultMaxMessages      = 20
	DefaultInlineSoftLimit  = 5 << 20
	DefaultInlineHardLimit  = 50 << 20
	DefaultFetchConcurrency = 4

	DefaultSystemPrompt = "You are a helpful assistant answering questions about the user's PDF documents. " +
		"Base your answers on the attached documents and on retrieved passages. " +
		"When documents are searchable, call search_documents to find relevant passages before answering. " +
		"If the documents do not answer the question, say so."
)

// MessageKind tells apart conversation messages from the ones the
// assembler synthesizes
type MessageKind string

const (
	KindSystemPrompt MessageKind = "system_prompt"
	KindConversation MessageKind = "conversation"
	KindAdvisory     MessageKind = "advisory"
	KindToolCall     MessageKind = "tool_call"
	KindToolResult   MessageKind = "tool_result"
)

// BuiltMessage is one entry of the context sent to the model. Position is
// assigned at build time and strictly increases along Messages.
type BuiltMessage struct {
	Position   int
	Kind       MessageKind
	Role       string
	Content    string
	Files      []models.FileAttachment
	ToolCalls  []models.LLMToolCall
	ToolCallID string

	// Sequence of the stored message, 0 for synthesized entries
	Sequence int64
	// Supports is the sequence of the assistant message an advisory replays
	Supports int64
	// DocumentIDs lists the documents whose bytes or chunks this entry carries
	DocumentIDs []string
}

// AssembledContext is the ordered message sequence for one model call
type AssembledContext struct {
	Messages []BuiltMessage

	InlineDocuments  []string // attached, in reference order
	DroppedDocuments []string // dropped to respect the soft limit
	InlineBytes      int64
	RAGFileIDs       []string
}

// LLMMessages converts the built sequence to wire messages
func (c *AssembledContext) LLMMessages() []models.LLMMessage {
	out := make([]models.LLMMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		out = append(out, models.LLMMessage{
			Role:       m.Role,
			Content:    m.Content,
			Files:      m.Files,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}
	return out
}

// AppendToolExchange adds the pending assistant tool call and its result
// right after the current last message
func (c *AssembledContext) AppendToolExchange(call ToolCall, record *repositories.RetrievalRecord) {
	c.Messages = append(c.Messages,
		BuiltMessage{
			Kind: KindToolCall,
			Role: string(repositories.RoleAssistant),
			ToolCalls: []models.LLMToolCall{{
				ID:   call.ID,
				Type: "function",
				Function: models.LLMFunctionCall{
					Name:      call.Capability,
					Arguments: string(call.Arguments),
				},
			}},
		},
		BuiltMessage{
			Kind:        KindToolResult,
			Role:        "tool",
			ToolCallID:  call.ID,
			Content:     formatRetrieval(record, "Search results"),
			DocumentIDs: record.FileIDs,
		},
	)
	c.renumber()
}

// PositionOf returns the position of the stored message with the given
// sequence, or -1
func (c *AssembledContext) PositionOf(sequence int64) int {
	for _, m := range c.Messages {
		if m.Sequence == sequence && m.Kind == KindConversation {
			return m.Position
		}
	}
	return -1
}

func (c *AssembledContext) renumber() {
	for i := range c.Messages {
		c.Messages[i].Position = i
	}
}

// AssembleInput is everything the assembler reads for one turn
type AssembleInput struct {
	// History holds stored messages in ascending sequence order
	History []*repositories.Message
	// NewMessage is the user message of this turn, not stored yet
	NewMessage *repositories.Message
	// References lists every document of the conversation, this turn's
	// attachments included, ordered by first reference
	References []repositories.FileReference
	// Partition classifies the referenced documents by current status
	Partition ModePartition
}

// AssemblerConfig bounds the assembled context
type AssemblerConfig struct {
	MaxMessages      int
	SoftLimitBytes   int64
	HardLimitBytes   int64
	FetchConcurrency int
	SystemPrompt     string
}

// ContextAssembler builds the bounded, ordered message sequence for a turn
type ContextAssembler struct {
	blobs  BlobStore
	cfg    AssemblerConfig
	logger logger.Logger
}

// NewContextAssembler creates an assembler with defaults applied
func NewContextAssembler(blobs BlobStore, cfg AssemblerConfig, log logger.Logger) *ContextAssembler {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	if cfg.SoftLimitBytes <= 0 {
		cfg.SoftLimitBytes = DefaultInlineSoftLimit
	}
	if cfg.HardLimitBytes <= 0 {
		cfg.HardLimitBytes = DefaultInlineHardLimit
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = DefaultFetchConcurrency
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &ContextAssembler{blobs: blobs, cfg: cfg, logger: log}
}

// MaxMessages is the size of the recency window
func (a *ContextAssembler) MaxMessages() int { return a.cfg.MaxMessages }

// Assemble builds the context for one turn:
// the system prompt, the most recent MaxMessages messages, inline document
// bytes on the first user message of the window, and after every assistant
// message backed by a retrieval an advisory replaying its chunks.
func (a *ContextAssembler) Assemble(ctx context.Context, in AssembleInput) (*AssembledContext, error) {
	if in.NewMessage == nil {
		return nil, apperrors.Validation("assemble_context", "new message is required")
	}

	window := append(append([]*repositories.Message{}, in.History...), in.NewMessage)
	if len(window) > a.cfg.MaxMessages {
		window = window[len(window)-a.cfg.MaxMessages:]
	}

	inline, dropped, err := a.selectInline(ctx, in)
	if err != nil {
		return nil, err
	}
	attachments, inlineBytes, err := a.fetchInline(ctx, inline, in.Partition)
	if err != nil {
		return nil, err
	}

	out := &AssembledContext{
		InlineDocuments:  docIDs(inline),
		DroppedDocuments: dropped,
		InlineBytes:      inlineBytes,
		RAGFileIDs:       in.Partition.RAG,
	}
	out.Messages = append(out.Messages, BuiltMessage{
		Kind:    KindSystemPrompt,
		Role:    string(repositories.RoleSystem),
		Content: a.cfg.SystemPrompt,
	})

	attached := false
	for _, msg := range window {
		built := BuiltMessage{
			Kind:     KindConversation,
			Role:     string(msg.Role),
			Content:  msg.Content,
			Sequence: msg.Sequence,
		}
		if !attached && msg.Role == repositories.RoleUser && len(attachments) > 0 {
			built.Files = attachments
			built.DocumentIDs = out.InlineDocuments
			attached = true
		}
		out.Messages = append(out.Messages, built)

		if msg.Role == repositories.RoleAssistant && msg.Retrieval != nil {
			if advisory, ok := a.replay(msg, in.Partition); ok {
				out.Messages = append(out.Messages, advisory)
			}
		}
	}
	out.renumber()

	a.logger.Debug("Assembled %d messages (%d inline documents, %d bytes, %d dropped)",
		len(out.Messages), len(out.InlineDocuments), inlineBytes, len(dropped))
	return out, nil
}

type inlineDoc struct {
	ref  repositories.FileReference
	size int64
}

func docIDs(docs []inlineDoc) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ref.DocumentID
	}
	return ids
}

// selectInline picks the uploaded documents to attach, in reference order.
// Least recently referenced documents are dropped while the total exceeds
// the soft limit and more than one remains.
func (a *ContextAssembler) selectInline(ctx context.Context, in AssembleInput) ([]inlineDoc, []string, error) {
	inlineSet := make(map[string]bool, len(in.Partition.Inline))
	for _, id := range in.Partition.Inline {
		inlineSet[id] = true
	}

	var (
		docs  []inlineDoc
		total int64
		seen  = make(map[string]bool, len(in.References))
	)
	for _, ref := range in.References {
		if !inlineSet[ref.DocumentID] || seen[ref.DocumentID] {
			continue
		}
		seen[ref.DocumentID] = true

		size, err := a.documentSize(ctx, ref.DocumentID, in.Partition)
		if err != nil {
			return nil, nil, err
		}
		docs = append(docs, inlineDoc{ref: ref, size: size})
		total += size
	}

	var dropped []string
	if total > a.cfg.SoftLimitBytes && len(docs) > 1 {
		byRecency := make([]int, len(docs))
		for i := range byRecency {
			byRecency[i] = i
		}
		sort.SliceStable(byRecency, func(i, j int) bool {
			return docs[byRecency[i]].ref.LastSequence < docs[byRecency[j]].ref.LastSequence
		})

		drop := make(map[int]bool)
		for _, idx := range byRecency {
			if total <= a.cfg.SoftLimitBytes || len(docs)-len(drop) <= 1 {
				break
			}
			drop[idx] = true
			total -= docs[idx].size
			dropped = append(dropped, docs[idx].ref.DocumentID)
		}

		kept := docs[:0]
		for i, d := range docs {
			if !drop[i] {
				kept = append(kept, d)
			}
		}
		docs = kept
		a.logger.Info("Dropped %d inline documents to fit %d bytes", len(dropped), a.cfg.SoftLimitBytes)
	}

	if total >= a.cfg.HardLimitBytes {
		return nil, nil, apperrors.PayloadTooLarge("assemble_context",
			fmt.Sprintf("inline payload of %d bytes reaches the %d byte limit", total, a.cfg.HardLimitBytes))
	}
	return docs, dropped, nil
}

func (a *ContextAssembler) documentSize(ctx context.Context, id string, p ModePartition) (int64, error) {
	doc, _ := p.Document(id)
	if doc.FileSize > 0 {
		return doc.FileSize, nil
	}
	return a.blobs.Size(ctx, doc.StorageKey)
}

// fetchInline downloads the kept documents concurrently. Results are stored
// by index so the attachments follow reference order whatever the
// completion order.
func (a *ContextAssembler) fetchInline(ctx context.Context, docs []inlineDoc, p ModePartition) ([]models.FileAttachment, int64, error) {
	if len(docs) == 0 {
		return nil, 0, nil
	}

	payloads := make([][]byte, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.FetchConcurrency)
	for i, d := range docs {
		doc, _ := p.Document(d.ref.DocumentID)
		g.Go(func() error {
			data, err := a.blobs.Fetch(gctx, doc.StorageKey)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", doc.ID, err)
			}
			payloads[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.Error("Failed to fetch inline documents: %v", err)
		return nil, 0, err
	}

	var total int64
	attachments := make([]models.FileAttachment, len(docs))
	for i, d := range docs {
		doc, _ := p.Document(d.ref.DocumentID)
		total += int64(len(payloads[i]))
		attachments[i] = models.FileAttachment{
			Filename: doc.Filename,
			Data:     base64.StdEncoding.EncodeToString(payloads[i]),
		}
	}
	if total >= a.cfg.HardLimitBytes {
		return nil, 0, apperrors.PayloadTooLarge("assemble_context",
			fmt.Sprintf("inline payload of %d bytes reaches the %d byte limit", total, a.cfg.HardLimitBytes))
	}
	return attachments, total, nil
}

// replay turns a stored retrieval into an advisory for the documents that
// are still completed. Others are skipped silently.
func (a *ContextAssembler) replay(msg *repositories.Message, p ModePartition) (BuiltMessage, bool) {
	record := &repositories.RetrievalRecord{
		Query:   msg.Retrieval.Query,
		FileIDs: msg.Retrieval.FileIDs,
		TopK:    msg.Retrieval.TopK,
	}
	docs := make([]string, 0)
	seen := make(map[string]bool)
	for _, c := range msg.Retrieval.Chunks {
		if !p.IsRAG(c.DocumentID) {
			continue
		}
		record.Chunks = append(record.Chunks, c)
		if !seen[c.DocumentID] {
			seen[c.DocumentID] = true
			docs = append(docs, c.DocumentID)
		}
	}
	if len(record.Chunks) == 0 {
		return BuiltMessage{}, false
	}
	return BuiltMessage{
		Kind:        KindAdvisory,
		Role:        string(repositories.RoleSystem),
		Content:     formatRetrieval(record, "Passages retrieved for the previous answer"),
		Supports:    msg.Sequence,
		DocumentIDs: docs,
	}, true
}

func formatRetrieval(record *repositories.RetrievalRecord, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (query: %q):\n", title, record.Query)
	if len(record.Chunks) == 0 {
		b.WriteString("\nNo matching passages were found.")
		return b.String()
	}
	for i, c := range record.Chunks {
		fmt.Fprintf(&b, "\n[%d] document %s, chunk %d, score %.3f\n%s\n", i+1, c.DocumentID, c.ChunkIndex, c.Score, c.Text)
	}
	return b.String()
}

// MergeReferences adds this turn's attachments to the stored references.
// New documents go last; already referenced ones get sequence as their last
// reference.
func MergeReferences(stored []repositories.FileReference, fileIDs []string, sequence int64) []repositories.FileReference {
	out := append([]repositories.FileReference{}, stored...)
	index := make(map[string]int, len(out))
	for i, ref := range out {
		index[ref.DocumentID] = i
	}
	for _, id := range fileIDs {
		if i, ok := index[id]; ok {
			if out[i].LastSequence < sequence {
				out[i].LastSequence = sequence
			}
			continue
		}
		index[id] = len(out)
		out = append(out, repositories.FileReference{DocumentID: id, FirstSequence: sequence, LastSequence: sequence})
	}
	return out
}

// ReferencedIDs returns the document ids of refs in order
func ReferencedIDs(refs []repositories.FileReference) []string {
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.DocumentID
	}
	return ids
}
