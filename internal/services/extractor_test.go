package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
)

var samplePDF = []byte("%PDF-1.7\n...")

func TestExtractorClient_ExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/parse/document", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)

		assert.Equal(t, "report.pdf", header.Filename)
		assert.Equal(t, samplePDF, data)
		assert.Equal(t, "false", r.FormValue("extract_metadata"))

		_, _ = w.Write([]byte(`{"text":"Hello from page one","pages":[1]}`))
	}))
	defer srv.Close()

	text, err := NewExtractorClient(srv.URL, 0).ExtractText(context.Background(), samplePDF, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Hello from page one", text)
}

func TestExtractorClient_RejectsNonPDFLocally(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	_, err := NewExtractorClient(srv.URL, 0).ExtractText(context.Background(), []byte("PK\x03\x04zip"), "x.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestExtractorClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unsupported media type", http.StatusUnsupportedMediaType, `{"detail":"bad"}`, apperrors.ErrUnsupportedFormat},
		{"server error", http.StatusInternalServerError, `oops`, apperrors.ErrExternalService},
		{"empty text", http.StatusOK, `{"text":"  \n "}`, apperrors.ErrEmptyContent},
		{"garbage body", http.StatusOK, `not json`, apperrors.ErrExternalService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewExtractorClient(srv.URL, 0).ExtractText(context.Background(), samplePDF, "a.pdf")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExtractorClient_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/parse/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()
	assert.NoError(t, NewExtractorClient(srv.URL, 0).HealthCheck(context.Background()))
}
