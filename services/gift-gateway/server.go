package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxRequestBody = 1 << 20

// Server exposes the REST surface of the gift-card gateway.
type Server struct {
	auth   *Authenticator
	store  *SQLiteStore
	node   NodeClient
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewServer wires the gateway HTTP handler.
func NewServer(auth *Authenticator, store *SQLiteStore, node NodeClient, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{auth: auth, store: store, node: node, logger: logger, nowFn: time.Now}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type transferRequest struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

type redeemRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount,omitempty"`
}

type reclaimRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/healthz" {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "unable to read request body")
		return
	}
	if len(body) > maxRequestBody {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body exceeds limit")
		return
	}

	principal, err := s.auth.Authenticate(r, body)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)

	rec := &responseRecorder{header: http.Header{}, status: http.StatusOK}
	s.route(rec, r, body)

	for key, values := range rec.header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(rec.status)
	w.Write(rec.body.Bytes())

	entry := AuditEntry{
		RequestID: requestID,
		APIKey:    principal.APIKey,
		Method:    r.Method,
		Path:      r.URL.Path,
		CardID:    cardIDFromPath(r.URL.Path),
		Status:    rec.status,
		CreatedAt: s.nowFn().UTC(),
	}
	if err := s.store.InsertAuditLog(r.Context(), entry); err != nil {
		s.logger.Error("audit log write failed", "error", err, "request_id", requestID)
	}
}

func (s *Server) route(w http.ResponseWriter, r *http.Request, body []byte) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/v1/giftcards" && r.Method == http.MethodPost:
		s.withIdempotency(w, r, body, s.handleIssue)
	case strings.HasPrefix(path, "/v1/giftcards/"):
		rest := strings.TrimPrefix(path, "/v1/giftcards/")
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			s.handleGet(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "audit" && r.Method == http.MethodGet:
			s.handleAudit(w, r, parts[0])
		case len(parts) == 2 && r.Method == http.MethodPost:
			action, ok := s.actionHandler(parts[1])
			if !ok {
				writeError(w, http.StatusNotFound, "not_found", "unknown action")
				return
			}
			s.withIdempotency(w, r, body, func(w http.ResponseWriter, r *http.Request, body []byte) {
				action(w, r, parts[0], body)
			})
		default:
			writeError(w, http.StatusNotFound, "not_found", "unknown route")
		}
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown route")
	}
}

type actionFunc func(w http.ResponseWriter, r *http.Request, cardID string, body []byte)

func (s *Server) actionHandler(name string) (actionFunc, bool) {
	switch name {
	case "transfer":
		return s.handleTransfer, true
	case "redeem":
		return s.handleRedeem, true
	case "reclaim":
		return s.handleReclaim, true
	default:
		return nil, false
	}
}

// withIdempotency replays the stored response when an Idempotency-Key is
// reused with an identical payload and rejects reuse with a different one.
func (s *Server) withIdempotency(w http.ResponseWriter, r *http.Request, body []byte, next func(http.ResponseWriter, *http.Request, []byte)) {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		next(w, r, body)
		return
	}

	hash := hashRequest(r.Method, r.URL.Path, body)
	record, err := s.store.LookupIdempotency(r.Context(), key)
	if err != nil {
		s.logger.Error("idempotency lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "idempotency lookup failed")
		return
	}
	if record != nil {
		if record.RequestHash != hash {
			writeError(w, http.StatusConflict, "idempotency_mismatch", ErrIdempotencyMismatch.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Idempotent-Replay", "true")
		w.WriteHeader(record.StatusCode)
		w.Write(record.Response)
		return
	}

	rec := &responseRecorder{header: http.Header{}, status: http.StatusOK}
	next(rec, r, body)

	if err := s.store.SaveIdempotency(r.Context(), IdempotencyRecord{
		Key:         key,
		RequestHash: hash,
		StatusCode:  rec.status,
		Response:    rec.body.Bytes(),
		CreatedAt:   s.nowFn().UTC(),
	}); err != nil {
		s.logger.Error("idempotency save failed", "error", err)
	}

	for name, values := range rec.header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(rec.status)
	w.Write(rec.body.Bytes())
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request, body []byte) {
	var req IssueRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON payload")
		return
	}
	if strings.TrimSpace(req.Issuer) == "" || strings.TrimSpace(req.Merchant) == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "issuer and merchant are required")
		return
	}
	if strings.TrimSpace(req.Amount) == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "amount is required")
		return
	}
	card, err := s.node.GiftIssue(r.Context(), req)
	if err != nil {
		s.writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, cardID string, body []byte) {
	var req transferRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON payload")
		return
	}
	if strings.TrimSpace(req.Caller) == "" || strings.TrimSpace(req.NewOwner) == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "caller and newOwner are required")
		return
	}
	card, err := s.node.GiftTransfer(r.Context(), cardID, req.Caller, req.NewOwner)
	if err != nil {
		s.writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request, cardID string, body []byte) {
	var req redeemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON payload")
		return
	}
	if strings.TrimSpace(req.Caller) == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "caller is required")
		return
	}
	card, err := s.node.GiftRedeem(r.Context(), cardID, req.Caller, req.Amount)
	if err != nil {
		s.writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleReclaim(w http.ResponseWriter, r *http.Request, cardID string, body []byte) {
	var req reclaimRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON payload")
		return
	}
	if strings.TrimSpace(req.Caller) == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "caller is required")
		return
	}
	card, err := s.node.GiftReclaim(r.Context(), cardID, req.Caller)
	if err != nil {
		s.writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, cardID string) {
	card, err := s.node.GiftGet(r.Context(), cardID)
	if err != nil {
		s.writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request, cardID string) {
	entries, err := s.store.AuditTrail(r.Context(), cardID, 50)
	if err != nil {
		s.logger.Error("audit trail query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "audit trail unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) writeNodeError(w http.ResponseWriter, err error) {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		status, code := mapNodeError(nodeErr.Code)
		writeError(w, status, code, nodeErr.Message)
		return
	}
	s.logger.Error("node request failed", "error", err)
	writeError(w, http.StatusBadGateway, "node_unreachable", "gift network node unavailable")
}

func mapNodeError(code int) (int, string) {
	switch code {
	case -32021:
		return http.StatusBadRequest, "invalid_request"
	case -32022:
		return http.StatusNotFound, "not_found"
	case -32023:
		return http.StatusForbidden, "forbidden"
	case -32024:
		return http.StatusConflict, "conflict"
	default:
		return http.StatusBadGateway, "node_error"
	}
}

func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func hashRequest(method, path string, body []byte) string {
	digest := sha256.New()
	digest.Write([]byte(method))
	digest.Write([]byte{0})
	digest.Write([]byte(path))
	digest.Write([]byte{0})
	digest.Write(body)
	return hex.EncodeToString(digest.Sum(nil))
}

// responseRecorder buffers a handler's response so it can be persisted for
// idempotent replay before being flushed to the client.
type responseRecorder struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func (r *responseRecorder) Header() http.Header {
	return r.header
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	return r.body.Write(p)
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
}

func cardIDFromPath(path string) string {
	rest := strings.TrimPrefix(strings.TrimSuffix(path, "/"), "/v1/giftcards/")
	if rest == path || rest == "" {
		return ""
	}
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}
