package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
)

// DocumentExtractor turns document bytes into plain text
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, filename string) (string, error)
}

var pdfMagic = []byte("%PDF-")

// IsPDF reports whether data starts with the PDF header
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// ExtractorClient talks to the document parsing service
type ExtractorClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ DocumentExtractor = (*ExtractorClient)(nil)

// ParseResponse represents the response from the parse endpoint
type ParseResponse struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
	Pages    []interface{}          `json:"pages"`
}

// NewExtractorClient creates a new extraction client
func NewExtractorClient(baseURL string, timeout time.Duration) *ExtractorClient {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &ExtractorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// ExtractText uploads a PDF to POST /parse/document and returns its text.
// Non-PDF input is rejected without a network call.
func (c *ExtractorClient) ExtractText(ctx context.Context, data []byte, filename string) (string, error) {
	const op = "extract_text"

	if !IsPDF(data) {
		return "", apperrors.New(apperrors.ErrUnsupportedFormat, op, "missing PDF header in "+filename, nil)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write file data: %w", err)
	}
	if err := writer.WriteField("extract_metadata", "false"); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/parse/document", body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.ExternalService(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType, resp.StatusCode == http.StatusUnprocessableEntity:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", apperrors.New(apperrors.ErrUnsupportedFormat, op, string(detail), nil)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", apperrors.ExternalService(op, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(detail)))
	}

	var result ParseResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", apperrors.ExternalService(op, fmt.Errorf("failed to decode response: %w", err))
	}

	if strings.TrimSpace(result.Text) == "" {
		return "", apperrors.New(apperrors.ErrEmptyContent, op, "no extractable text in "+filename, nil)
	}
	return result.Text, nil
}

// HealthCheck checks the parse service reports healthy
func (c *ExtractorClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/parse/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.ExternalService("extractor_health", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.ExternalService("extractor_health", fmt.Errorf("HTTP %d", resp.StatusCode))
	}
	return nil
}
