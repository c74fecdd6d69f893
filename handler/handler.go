package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"axioma-bot/internal/domain"
	"axioma-bot/internal/inbound"
	"axioma-bot/internal/logging"
	"axioma-bot/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	signatureHeader   = "X-Chatwoot-Signature"
	serviceName       = "axioma-bot"
	maxBodyBytes      = 1 << 20
)

type Relay interface {
	Handle(ctx context.Context, ev domain.InboundEvent) usecase.Outcome
	Malformed() usecase.Outcome
	DispatchMode() usecase.DispatchMode
}

// ServiceInfo is reported by the readiness endpoint.
type ServiceInfo struct {
	Model        string
	ChatwootURL  string
	AuthMode     string
	TokenPresent bool
}

type Handler struct {
	relay   Relay
	info    ServiceInfo
	logger  *slog.Logger
	secret  []byte
	logBody bool
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSignatureSecret makes POST /chat reject bodies without a valid
// HMAC-SHA256 signature.
func WithSignatureSecret(secret string) Option {
	return func(h *Handler) {
		h.secret = []byte(strings.TrimSpace(secret))
	}
}

// WithBodyLogging logs every inbound webhook body.
func WithBodyLogging(enabled bool) Option {
	return func(h *Handler) {
		h.logBody = enabled
	}
}

func NewHandler(relay Relay, info ServiceInfo, opts ...Option) (*Handler, error) {
	if relay == nil {
		return nil, errors.New("handler: relay must not be nil")
	}
	h := &Handler{relay: relay, info: info, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type replyResponse struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	Private     bool   `json:"private"`
}

type ackResponse struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Deduped bool   `json:"deduped,omitempty"`
	Posted  *bool  `json:"posted,omitempty"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type chatwootInfo struct {
	URL          string `json:"url"`
	AuthMode     string `json:"auth_mode"`
	TokenPresent bool   `json:"token_present"`
}

type healthResponse struct {
	OK           bool         `json:"ok"`
	Service      string       `json:"service"`
	Model        string       `json:"model"`
	DispatchMode string       `json:"dispatch_mode"`
	Chatwoot     chatwootInfo `json:"chatwoot"`
}

type response struct {
	status int
	body   any
}

func (h *Handler) chat(ctx context.Context, headers http.Header, body []byte) response {
	logger := logging.FromContext(ctx)
	if h.logBody {
		logger.Info("webhook received", "content_type", headers.Get("Content-Type"), "body", string(body))
	}
	if len(h.secret) > 0 && !validSignature(h.secret, headers.Get(signatureHeader), body) {
		logger.Warn("rejected webhook with invalid signature")
		return response{status: http.StatusUnauthorized, body: errorResponse{Error: "invalid_signature"}}
	}

	var outcome usecase.Outcome
	ev, err := inbound.Normalize(body)
	if err != nil {
		logger.Warn("malformed webhook payload", "err", err)
		outcome = h.relay.Malformed()
	} else {
		outcome = h.relay.Handle(ctx, ev)
	}
	return response{status: http.StatusOK, body: renderOutcome(outcome)}
}

func renderOutcome(o usecase.Outcome) any {
	switch o.Kind {
	case usecase.OutcomeSkipped:
		return ackResponse{OK: true, Skipped: true, Reason: o.Reason}
	case usecase.OutcomeDeduped:
		return ackResponse{OK: true, Deduped: true}
	}
	if o.Inline {
		return replyResponse{Content: o.Reply, ContentType: "text", Private: false}
	}
	posted := o.Posted
	return ackResponse{OK: true, Posted: &posted}
}

func (h *Handler) health() response {
	url := h.info.ChatwootURL
	if url == "" {
		url = "[unset]"
	}
	return response{status: http.StatusOK, body: healthResponse{
		OK:           true,
		Service:      serviceName,
		Model:        h.info.Model,
		DispatchMode: string(h.relay.DispatchMode()),
		Chatwoot: chatwootInfo{
			URL:          url,
			AuthMode:     h.info.AuthMode,
			TokenPresent: h.info.TokenPresent,
		},
	}}
}

func notFound() response {
	return response{status: http.StatusNotFound, body: errorResponse{Error: "not_found"}}
}

// Routes returns the net/http surface: POST /chat and GET /.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", h.serveChat)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, h.health())
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, notFound())
	})
	return h.withCorrelationID(mux)
}

func (h *Handler) serveChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logging.FromContext(r.Context()).Warn("failed to read webhook body", "err", err)
		body = nil
	}
	writeJSON(w, h.chat(r.Context(), r.Header, body))
}

func (h *Handler) withCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := correlationID(r.Header)
		w.Header().Set(correlationHeader, id)
		ctx := logging.WithLogger(r.Context(), h.logger.With("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, res response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.status)
	_ = json.NewEncoder(w).Encode(res.body)
}

// Handle is the API Gateway (REST, proxy integration) entry point.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	headers := make(http.Header, len(event.Headers))
	for k, v := range event.Headers {
		headers.Set(k, v)
	}
	for k, vs := range event.MultiValueHeaders {
		if headers.Get(k) != "" {
			continue
		}
		for _, v := range vs {
			headers.Add(k, v)
		}
	}

	id := correlationID(headers)
	ctx = logging.WithLogger(ctx, h.logger.With("request_id", id))

	var res response
	path := strings.TrimRight(event.Path, "/")
	switch {
	case event.HTTPMethod == http.MethodPost && path == "/chat":
		body := []byte(event.Body)
		if event.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(event.Body)
			if err != nil {
				logging.FromContext(ctx).Warn("failed to decode base64 body", "err", err)
			}
			body = decoded
		}
		res = h.chat(ctx, headers, body)
	case event.HTTPMethod == http.MethodGet && path == "":
		res = h.health()
	default:
		res = notFound()
	}

	raw, err := json.Marshal(res.body)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return events.APIGatewayProxyResponse{
		StatusCode: res.status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: id,
		},
		Body: string(raw),
	}, nil
}

func correlationID(headers http.Header) string {
	if id := strings.TrimSpace(headers.Get(correlationHeader)); id != "" {
		return id
	}
	return newUUID()
}

// validSignature checks a hex HMAC-SHA256 of body, optionally prefixed
// with "sha256=".
func validSignature(secret []byte, signature string, body []byte) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

var newUUID = func() string {
	return uuid.NewString()
}
