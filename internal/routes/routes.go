package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tejasgodse24/chat-with-pdf/internal/handlers"
)

// Handlers groups every handler the router serves
type Handlers struct {
	Health   *handlers.HealthHandler
	Document *handlers.DocumentHandler
	Chat     *handlers.ChatHandler
	Search   *handlers.SearchHandler
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(router *mux.Router, h *Handlers) {
	router.NotFoundHandler = http.HandlerFunc(handlers.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(handlers.MethodNotAllowed)

	router.HandleFunc("/health", h.Health.Health).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.MethodNotAllowedHandler = router.MethodNotAllowedHandler

	// Files
	api.HandleFunc("/files", h.Document.UploadDocument).Methods(http.MethodPost)
	api.HandleFunc("/files", h.Document.ListDocuments).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}", h.Document.GetDocument).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}/ingest", h.Document.IngestDocument).Methods(http.MethodPost)
	api.HandleFunc("/webhooks/upload", h.Document.UploadWebhook).Methods(http.MethodPost)

	// Chat
	api.HandleFunc("/chat", h.Chat.Chat).Methods(http.MethodPost)
	api.HandleFunc("/chats", h.Chat.ListConversations).Methods(http.MethodGet)
	api.HandleFunc("/chats/{id}", h.Chat.GetConversation).Methods(http.MethodGet)

	// Retrieval
	api.HandleFunc("/retrieve", h.Search.Retrieve).Methods(http.MethodPost)
}
