package handlers

import (
	"net/http"
	"net/url"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
	"github.com/tejasgodse24/chat-with-pdf/internal/services"
)

// UploadEvent is an upload notification. Either Key is set or, for S3
// event notifications, every record carries an object key.
type UploadEvent struct {
	Key     string          `json:"key,omitempty"`
	Records []S3EventRecord `json:"Records,omitempty"`
}

// S3EventRecord is the part of an S3 notification record we read
type S3EventRecord struct {
	S3 struct {
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// UploadEventResponse lists what each key triggered
type UploadEventResponse struct {
	Results []*services.UploadEventResult `json:"results"`
}

func (e UploadEvent) keys() ([]string, error) {
	if e.Key != "" {
		return []string{e.Key}, nil
	}
	keys := make([]string, 0, len(e.Records))
	for _, rec := range e.Records {
		// S3 URL-encodes object keys in notifications
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, apperrors.Validation("upload_event", "malformed object key")
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, apperrors.Validation("upload_event", "no object key in event")
	}
	return keys, nil
}

// UploadWebhook enqueues ingestion for uploaded objects
// @Summary Upload notification
// @Description Accepts {"key":"uploads/{uuid}.pdf"} or an S3 event notification and queues ingestion
// @Tags files
// @Accept json
// @Produce json
// @Param event body UploadEvent true "Upload event"
// @Success 202 {object} UploadEventResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/webhooks/upload [post]
func (h *DocumentHandler) UploadWebhook(w http.ResponseWriter, r *http.Request) {
	var event UploadEvent
	if err := decodeJSON(r, &event); err != nil {
		sendError(w, h.logger, err)
		return
	}

	keys, err := event.keys()
	if err != nil {
		sendError(w, h.logger, err)
		return
	}

	resp := UploadEventResponse{Results: make([]*services.UploadEventResult, 0, len(keys))}
	for _, key := range keys {
		result, err := h.docService.HandleUploadEvent(r.Context(), key)
		if err != nil {
			sendError(w, h.logger, err)
			return
		}
		h.logger.Info("Upload event for %s: queued=%t", result.DocumentID, result.Queued)
		resp.Results = append(resp.Results, result)
	}

	sendJSON(w, h.logger, http.StatusAccepted, resp)
}
