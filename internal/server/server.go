// Package server exposes the agent over HTTP, speaking a minimal
// Bot-Framework-style activity protocol on /api/messages.
package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/aaronba/SimpleChatAgent/internal/activity"
	"github.com/aaronba/SimpleChatAgent/internal/history"
	"github.com/aaronba/SimpleChatAgent/internal/logger"
	"github.com/aaronba/SimpleChatAgent/internal/relay"
)

const welcomeConfigured = "Welcome to the Azure AI Foundry Agent 🚀\n" +
	"Connected to Azure AI Foundry Agent Service.\n" +
	"Type /help for help or send a message to interact with the AI agent."

const welcomeEcho = "Welcome to the Echo Agent sample 🚀. " +
	"Type /help for help or send a message to see the echo feature in action.\n\n" +
	"To enable Azure AI Foundry integration, set:\n" +
	"- AZURE_AI_PROJECT_ENDPOINT\n" +
	"- AZURE_AI_MODEL_DEPLOYMENT_NAME"

// Server handles the activity endpoints.
type Server struct {
	relay *relay.Relay
	store *history.Store
}

// New creates the HTTP surface over the given relay and history store.
func New(r *relay.Relay, store *history.Store) *Server {
	return &Server{relay: r, store: store}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Post("/api/messages", s.handleActivity)
	r.Get("/api/conversations/{id}/messages", s.handleTranscript)
	return r
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var act activity.Activity
	if err := json.NewDecoder(r.Body).Decode(&act); err != nil {
		http.Error(w, "invalid activity payload", http.StatusBadRequest)
		return
	}

	switch act.Type {
	case activity.TypeConversationUpdate:
		if len(act.MembersAdded) == 0 {
			w.WriteHeader(http.StatusOK)
			return
		}
		writeActivity(w, act.Reply(s.welcome()))
	case activity.TypeMessage:
		s.handleMessage(w, r, act)
	default:
		// Other activity types (typing, endOfConversation, ...) are ignored.
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request, act activity.Activity) {
	trimmed := strings.TrimSpace(act.Text)
	if trimmed == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if strings.EqualFold(trimmed, "/help") {
		writeActivity(w, act.Reply(s.welcome()))
		return
	}

	logger.L.Info("inference request", "conversation_id", act.Conversation.ID, "text", act.Text)
	turn := s.relay.Respond(r.Context(), act.Text)

	if act.Conversation.ID != "" {
		s.store.Save(history.Message{ConversationID: act.Conversation.ID, Role: history.RoleUser, Content: turn.Input})
		s.store.Save(history.Message{ConversationID: act.Conversation.ID, Role: history.RoleAgent, Content: turn.Output})
	}

	writeActivity(w, act.Reply(turn.Output))
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	messages := s.store.List(conversationID)
	if messages == nil {
		messages = []history.Message{}
	}
	writeJSON(w, messages)
}

func (s *Server) welcome() string {
	if s.relay.Configured() {
		return welcomeConfigured
	}
	return welcomeEcho
}

func writeActivity(w http.ResponseWriter, act activity.Activity) {
	writeJSON(w, act)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Error("failed to encode response", "error", err)
	}
}
