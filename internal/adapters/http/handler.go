package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/PabloGalante/gemini-chat/internal/app/conversation"
	"github.com/PabloGalante/gemini-chat/internal/app/history"
	"github.com/PabloGalante/gemini-chat/internal/domain"
	"github.com/PabloGalante/gemini-chat/internal/observability"
)

// Client-facing error messages. They are part of the public contract and
// never carry internal details.
const (
	msgChatInitFailed   = "Failed to get Gemini API response."
	msgOperationFailed  = "Operation failed."
	msgTableNotFound    = "Error no resource found"
	msgItemNotFound     = "Resource not found"
	msgRetrievalFailed  = "Error retreiving ressource"
	msgMethodNotAllowed = "method not allowed"
)

type Server struct {
	chat    *conversation.Service
	history *history.Service
	gen     domain.Generator
}

// NewServer wires the routes and the middleware chain. gen may be nil, in
// which case /generate/ is not served.
func NewServer(chat *conversation.Service, hist *history.Service, gen domain.Generator) http.Handler {
	s := &Server{chat: chat, history: hist, gen: gen}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)

	// /chat/ → one chat turn (POST)
	mux.HandleFunc("/chat/", s.handleChat)

	// /describe-table/ → status of the history table (GET)
	mux.HandleFunc("/describe-table/", s.handleDescribeTable)

	// /get-item/{session_id} → stored history (GET)
	mux.HandleFunc("/get-item/", s.handleGetItem)

	if gen != nil {
		// /generate/ → stateless generation (POST)
		mux.HandleFunc("/generate/", s.handleGenerate)
	}

	return chainMiddlewares(mux,
		withRecover,
		withCORS,
		withLogging,
		withRequestID,
	)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type chatRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Response  string `json:"response"`
}

type describeTableResponse struct {
	Status string `json:"status"`
}

type historyRecordResponse struct {
	Role  string `json:"role"`
	Parts string `json:"parts"`
}

type getItemResponse struct {
	SessionID string                  `json:"session_id"`
	History   []historyRecordResponse `json:"history"`
}

type generateRequest struct {
	Prompt            string `json:"prompt"`
	SystemInstruction string `json:"system_instruction,omitempty"`
}

type generateResponse struct {
	Role     string `json:"role"`
	Response string `json:"response"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/chat/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	log := observability.LoggerFromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("invalid chat body", "error", err)
		badRequest(w, msgOperationFailed)
		return
	}

	out, err := s.chat.Chat(r.Context(), conversation.ChatInput{
		SessionID: domain.SessionID(req.SessionID),
		Prompt:    req.Prompt,
	})
	if err != nil {
		if errors.Is(err, conversation.ErrChatInit) || errors.Is(err, conversation.ErrNoReply) {
			log.Warn("no model reply", "session_id", req.SessionID, "error", err)
			badRequest(w, msgChatInitFailed)
			return
		}
		log.Warn("chat failed", "session_id", req.SessionID, "error", err)
		badRequest(w, msgOperationFailed)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		SessionID: string(out.SessionID),
		Role:      string(out.Role),
		Response:  out.Response,
	})
}

func (s *Server) handleDescribeTable(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/describe-table/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	status, err := s.history.DescribeTable(r.Context())
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("describe table failed",
			"table", s.history.Table(), "error", err)
		writeError(w, http.StatusInternalServerError, msgRetrievalFailed)
		return
	}
	if !status.Found {
		writeError(w, http.StatusNotFound, msgTableNotFound)
		return
	}

	writeJSON(w, http.StatusOK, describeTableResponse{Status: status.Status})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	// expected path: /get-item/{session_id}
	id := strings.TrimPrefix(r.URL.Path, "/get-item/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	records, err := s.history.GetSessionHistory(r.Context(), domain.SessionID(id))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgItemNotFound)
			return
		}
		observability.LoggerFromContext(r.Context()).Error("get item failed",
			"session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, msgRetrievalFailed)
		return
	}

	writeJSON(w, http.StatusOK, getItemResponse{
		SessionID: id,
		History:   toHistoryResponse(records),
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/generate/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	log := observability.LoggerFromContext(r.Context())

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("invalid generate body", "error", err)
		badRequest(w, msgOperationFailed)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		badRequest(w, msgOperationFailed)
		return
	}

	text, err := s.gen.Generate(r.Context(), req.Prompt, req.SystemInstruction)
	if err != nil {
		log.Warn("generate failed", "error", err)
		badRequest(w, msgOperationFailed)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		Role:     string(domain.RoleModel),
		Response: text,
	})
}

// ─────────────────────────────────────────────
// History Helpers
// ─────────────────────────────────────────────

func toHistoryResponse(records []domain.HistoryRecord) []historyRecordResponse {
	out := make([]historyRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, historyRecordResponse{
			Role:  string(rec.Role()),
			Parts: rec.Text(),
		})
	}
	return out
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, msgOperationFailed)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
}
