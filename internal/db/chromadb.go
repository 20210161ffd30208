package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ChromaDBConfig holds connection details for a Chroma server
type ChromaDBConfig struct {
	Host     string
	Port     int
	Tenant   string // default: "default_tenant"
	Database string // default: "default_database"
	Timeout  time.Duration

	// URL overrides Host/Port when set, e.g. for tests against httptest servers.
	URL string
}

// Collection is a Chroma collection as returned by the API
type Collection struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
}

// QueryResponse holds one result list per query embedding
type QueryResponse struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float32                `json:"distances"`
}

// ChromaError is a non-2xx answer from the server
type ChromaError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *ChromaError) Error() string {
	return fmt.Sprintf("chroma %s failed (status %d): %s", e.Operation, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from Chroma
func IsNotFound(err error) bool {
	var cerr *ChromaError
	return errors.As(err, &cerr) && cerr.StatusCode == http.StatusNotFound
}

type createCollectionRequest struct {
	Name        string                 `json:"name"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	GetOrCreate bool                   `json:"get_or_create"`
}

type upsertRequest struct {
	IDs        []string                 `json:"ids"`
	Documents  []string                 `json:"documents"`
	Embeddings [][]float32              `json:"embeddings"`
	Metadatas  []map[string]interface{} `json:"metadatas,omitempty"`
}

type queryRequest struct {
	QueryEmbeddings [][]float32            `json:"query_embeddings"`
	NResults        int                    `json:"n_results"`
	Include         []string               `json:"include"`
	Where           map[string]interface{} `json:"where,omitempty"`
}

type deleteRequest struct {
	IDs   []string               `json:"ids,omitempty"`
	Where map[string]interface{} `json:"where,omitempty"`
}

// ChromaDBClient talks to the Chroma v2 REST API. Collection ids are
// resolved by name once and cached.
type ChromaDBClient struct {
	hostURL    string
	baseURL    string
	httpClient *http.Client

	mu            sync.RWMutex
	collectionIDs map[string]string
}

func NewChromaDBClient(config ChromaDBConfig) *ChromaDBClient {
	if config.Tenant == "" {
		config.Tenant = "default_tenant"
	}
	if config.Database == "" {
		config.Database = "default_database"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	hostURL := config.URL
	if hostURL == "" {
		hostURL = fmt.Sprintf("http://%s:%d", config.Host, config.Port)
	}

	return &ChromaDBClient{
		hostURL: hostURL,
		baseURL: fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s",
			hostURL, url.PathEscape(config.Tenant), url.PathEscape(config.Database)),
		httpClient:    &http.Client{Timeout: config.Timeout},
		collectionIDs: make(map[string]string),
	}
}

func (c *ChromaDBClient) Heartbeat(ctx context.Context) error {
	return c.call(ctx, "heartbeat", http.MethodGet, c.hostURL+"/api/v2/heartbeat", nil, nil)
}

// GetOrCreateCollection returns the named collection, creating it when
// missing. Without metadata the collection uses cosine distance.
func (c *ChromaDBClient) GetOrCreateCollection(ctx context.Context, name string, metadata map[string]interface{}) (*Collection, error) {
	if metadata == nil {
		metadata = map[string]interface{}{"hnsw:space": "cosine"}
	}
	var collection Collection
	err := c.call(ctx, "create collection", http.MethodPost, c.baseURL+"/collections",
		createCollectionRequest{Name: name, Metadata: metadata, GetOrCreate: true}, &collection)
	if err != nil {
		return nil, err
	}
	c.rememberCollection(name, collection.ID)
	return &collection, nil
}

func (c *ChromaDBClient) GetCollection(ctx context.Context, name string) (*Collection, error) {
	var collection Collection
	err := c.call(ctx, "get collection", http.MethodGet, c.baseURL+"/collections/"+url.PathEscape(name), nil, &collection)
	if IsNotFound(err) {
		return nil, fmt.Errorf("collection not found: %s: %w", name, err)
	}
	if err != nil {
		return nil, err
	}
	c.rememberCollection(name, collection.ID)
	return &collection, nil
}

// Upsert adds or replaces records by id
func (c *ChromaDBClient) Upsert(ctx context.Context, collectionName string, ids []string, documents []string, embeddings [][]float32, metadatas []map[string]interface{}) error {
	req := upsertRequest{IDs: ids, Documents: documents, Embeddings: embeddings, Metadatas: metadatas}
	return c.collectionCall(ctx, "upsert", collectionName, http.MethodPost, "/upsert", req, nil)
}

// Query returns the nResults nearest records per query embedding
func (c *ChromaDBClient) Query(ctx context.Context, collectionName string, queryEmbeddings [][]float32, nResults int, where map[string]interface{}) (*QueryResponse, error) {
	req := queryRequest{
		QueryEmbeddings: queryEmbeddings,
		NResults:        nResults,
		Include:         []string{"documents", "metadatas", "distances"},
		Where:           where,
	}
	var resp QueryResponse
	if err := c.collectionCall(ctx, "query", collectionName, http.MethodPost, "/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete removes records matching ids and/or a where filter
func (c *ChromaDBClient) Delete(ctx context.Context, collectionName string, ids []string, where map[string]interface{}) error {
	return c.collectionCall(ctx, "delete", collectionName, http.MethodPost, "/delete", deleteRequest{IDs: ids, Where: where}, nil)
}

func (c *ChromaDBClient) Count(ctx context.Context, collectionName string) (int, error) {
	var count int
	err := c.collectionCall(ctx, "count", collectionName, http.MethodGet, "/count", nil, &count)
	return count, err
}

// Close releases idle connections
func (c *ChromaDBClient) Close() {
	c.httpClient.CloseIdleConnections()
}

// collectionCall resolves the collection id and calls a collection-scoped
// endpoint. A 404 drops the cached id so the next call resolves it again.
func (c *ChromaDBClient) collectionCall(ctx context.Context, op, name, method, suffix string, payload, out interface{}) error {
	id, err := c.collectionID(ctx, name)
	if err != nil {
		return err
	}
	err = c.call(ctx, op, method, c.baseURL+"/collections/"+id+suffix, payload, out)
	if IsNotFound(err) {
		c.forgetCollection(name)
	}
	return err
}

func (c *ChromaDBClient) collectionID(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	id, ok := c.collectionIDs[name]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	collection, err := c.GetCollection(ctx, name)
	if err != nil {
		return "", err
	}
	return collection.ID, nil
}

func (c *ChromaDBClient) rememberCollection(name, id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.collectionIDs[name] = id
	c.mu.Unlock()
}

func (c *ChromaDBClient) forgetCollection(name string) {
	c.mu.Lock()
	delete(c.collectionIDs, name)
	c.mu.Unlock()
}

// call sends payload as JSON and decodes a 2xx body into out, if given
func (c *ChromaDBClient) call(ctx context.Context, op, method, endpoint string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("chroma %s: failed to marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("chroma %s: failed to create request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chroma %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ChromaError{Operation: op, StatusCode: resp.StatusCode, Body: string(msg)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chroma %s: failed to decode response: %w", op, err)
	}
	return nil
}
