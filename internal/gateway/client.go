package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"teamchat/internal/domain"
)

// ChatGateway define el contrato request/response que consume el motor de
// sincronización. El formato de wire vive únicamente en esta capa.
type ChatGateway interface {
	ListMessages(ctx context.Context, teamID string, since *time.Time) ([]domain.Message, error)
	CreateMessage(ctx context.Context, teamID, body string) (domain.Message, error)
	DeleteMessage(ctx context.Context, id string, mode domain.DeleteMode) error
}

// HTTPGateway implementa ChatGateway contra el API REST de chat.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPGateway construye un gateway apuntando al API de chat.
func NewHTTPGateway(baseURL, token string, logger *zap.Logger) *HTTPGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// ListMessages pide el historial del equipo; con since, solo los mensajes
// estrictamente posteriores al cursor. El cursor se serializa RFC3339Nano.
func (g *HTTPGateway) ListMessages(ctx context.Context, teamID string, since *time.Time) ([]domain.Message, error) {
	endpoint := fmt.Sprintf("%s/teams/%s/messages", g.baseURL, url.PathEscape(teamID))
	if since != nil {
		endpoint += "?since=" + url.QueryEscape(since.Format(time.RFC3339Nano))
	}

	respBody, err := g.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var payload struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("list messages: unmarshal response: %w", err)
	}
	for i := range payload.Messages {
		payload.Messages[i].Origin = domain.OriginConfirmed
	}
	return payload.Messages, nil
}

// CreateMessage crea el mensaje y devuelve la versión con id y created_at
// asignados por el servidor.
func (g *HTTPGateway) CreateMessage(ctx context.Context, teamID, body string) (domain.Message, error) {
	endpoint := fmt.Sprintf("%s/teams/%s/messages", g.baseURL, url.PathEscape(teamID))

	reqBytes, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return domain.Message{}, fmt.Errorf("create message: marshal request: %w", err)
	}

	respBody, err := g.do(ctx, http.MethodPost, endpoint, reqBytes)
	if err != nil {
		return domain.Message{}, fmt.Errorf("create message: %w", err)
	}

	var payload struct {
		Message domain.Message `json:"message"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return domain.Message{}, fmt.Errorf("create message: unmarshal response: %w", err)
	}
	if payload.Message.ID == "" {
		return domain.Message{}, fmt.Errorf("create message: server returned no id")
	}
	payload.Message.Origin = domain.OriginConfirmed
	return payload.Message, nil
}

// DeleteMessage borra en el modo pedido: "mine" solo para el usuario actual,
// "everyone" para todo el equipo.
func (g *HTTPGateway) DeleteMessage(ctx context.Context, id string, mode domain.DeleteMode) error {
	if !mode.Valid() {
		return fmt.Errorf("delete message: invalid mode %q", mode)
	}
	endpoint := fmt.Sprintf("%s/messages/%s?mode=%s", g.baseURL, url.PathEscape(id), url.QueryEscape(string(mode)))

	if _, err := g.do(ctx, http.MethodDelete, endpoint, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (g *HTTPGateway) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		g.logger.Warn("chat api error",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("chat api error: status=%d", resp.StatusCode)
	}

	return respBody, nil
}
