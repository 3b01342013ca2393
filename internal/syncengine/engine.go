package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"teamchat/internal/domain"
	"teamchat/internal/gateway"
)

// Engine es la fachada que consume la UI: activa/desactiva la sesión de una
// conversación, expone la vista de mensajes y las mutaciones (enviar, borrar).
// Mantiene a lo sumo una sesión viva; las respuestas en vuelo de una sesión
// desmontada se descartan comparando el contador de generación, no intentando
// cancelar la llamada de red.
type Engine struct {
	gateway  gateway.ChatGateway
	logger   *zap.Logger
	interval time.Duration

	mu   sync.Mutex
	gen  uint64
	sess *session
}

type session struct {
	teamID     string
	gen        uint64
	store      *Store
	cancel     context.CancelFunc
	polling    bool
	loadedOnce bool
	lastErr    error
}

var ErrNoActiveSession = errors.New("no active chat session")

const defaultPollInterval = 2 * time.Second

// NewEngine construye un motor sobre el gateway dado. interval <= 0 usa el
// default de 2s.
func NewEngine(gw gateway.ChatGateway, logger *zap.Logger, interval time.Duration) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Engine{
		gateway:  gw,
		logger:   logger,
		interval: interval,
	}
}

// Activate inicia (o reinicia) la sesión para el equipo dado. Si había otra
// sesión activa, incluso del mismo equipo, se desmonta primero.
func (e *Engine) Activate(teamID string) {
	e.mu.Lock()
	e.teardownLocked()
	e.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		teamID: teamID,
		gen:    e.gen,
		store:  NewStore(),
		cancel: cancel,
	}
	e.sess = s
	e.mu.Unlock()

	e.logger.Info("chat session activated", zap.String("team_id", teamID))
	go e.run(ctx, s)
}

// Deactivate desmonta la sesión actual. Seguro de llamar sin sesión activa.
func (e *Engine) Deactivate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
}

func (e *Engine) teardownLocked() {
	if e.sess == nil {
		return
	}
	e.logger.Info("chat session deactivated", zap.String("team_id", e.sess.teamID))
	e.sess.cancel()
	e.sess = nil
	e.gen++
}

func (e *Engine) currentLocked(s *session) bool {
	return e.sess == s && s.gen == e.gen
}

// run ejecuta el fetch inicial y luego el loop de polling. Corre en su propia
// goroutine; toda mutación de estado pasa por el mutex del Engine y se aplica
// solo si la generación capturada sigue vigente.
func (e *Engine) run(ctx context.Context, s *session) {
	messages, err := e.gateway.ListMessages(ctx, s.teamID, nil)

	e.mu.Lock()
	if !e.currentLocked(s) {
		e.mu.Unlock()
		return
	}
	if err != nil {
		// Un fetch inicial fallido no bloquea la sesión: arranca vacía con
		// cursor en "ahora" y el polling sigue intentando.
		s.store.Seed(nil)
		s.lastErr = fmt.Errorf("initial load: %w", err)
		e.logger.Warn("initial fetch failed", zap.String("team_id", s.teamID), zap.Error(err))
	} else {
		s.store.Seed(messages)
	}
	s.loadedOnce = true
	s.polling = true
	e.mu.Unlock()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollOnce(ctx, s)
		}
	}
}

// pollOnce pide los mensajes posteriores al cursor y los reconcilia. Un fallo
// se registra y se reintenta en el próximo tick, sin backoff.
func (e *Engine) pollOnce(ctx context.Context, s *session) {
	e.mu.Lock()
	if !e.currentLocked(s) {
		e.mu.Unlock()
		return
	}
	since := s.store.Cursor()
	e.mu.Unlock()

	messages, err := e.gateway.ListMessages(ctx, s.teamID, &since)

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.currentLocked(s) {
		return
	}
	if err != nil {
		s.lastErr = err
		e.logger.Warn("poll failed", zap.String("team_id", s.teamID), zap.Error(err))
		return
	}
	s.lastErr = nil
	if added := s.store.Merge(messages); added > 0 {
		e.logger.Debug("poll merged messages", zap.String("team_id", s.teamID), zap.Int("added", added))
	}
}

// Send crea el mensaje en el servidor y, confirmado el id, lo inserta de
// forma optimista para que la UI lo muestre antes del próximo poll.
func (e *Engine) Send(ctx context.Context, body string) (domain.Message, error) {
	e.mu.Lock()
	s := e.sess
	if s == nil {
		e.mu.Unlock()
		return domain.Message{}, ErrNoActiveSession
	}
	teamID := s.teamID
	e.mu.Unlock()

	msg, err := e.gateway.CreateMessage(ctx, teamID, body)
	if err != nil {
		return domain.Message{}, fmt.Errorf("send message: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentLocked(s) {
		s.store.InsertOptimistic(msg)
	}
	return msg, nil
}

// DeleteForMe borra el mensaje solo para el usuario actual. El estado local
// se toca únicamente después de que el servidor confirma.
func (e *Engine) DeleteForMe(ctx context.Context, id string) error {
	return e.deleteMessage(ctx, id, domain.DeleteForMe)
}

// DeleteForEveryone borra el mensaje para todo el equipo. Los demás clientes
// lo observan por ausencia en su próximo poll.
func (e *Engine) DeleteForEveryone(ctx context.Context, id string) error {
	return e.deleteMessage(ctx, id, domain.DeleteForEveryone)
}

func (e *Engine) deleteMessage(ctx context.Context, id string, mode domain.DeleteMode) error {
	e.mu.Lock()
	s := e.sess
	e.mu.Unlock()
	if s == nil {
		return ErrNoActiveSession
	}

	if err := e.gateway.DeleteMessage(ctx, id, mode); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentLocked(s) {
		s.store.Remove(id)
	}
	return nil
}

// Messages devuelve la vista actual, siempre ordenada por created_at.
func (e *Engine) Messages() []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return nil
	}
	return e.sess.store.Messages()
}

// ActiveTeam devuelve el equipo de la sesión activa, o "" sin sesión.
func (e *Engine) ActiveTeam() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return ""
	}
	return e.sess.teamID
}

// IsPolling reporta si el loop de polling está corriendo. Es informativo
// para la UI; no condiciona la correctitud del motor.
func (e *Engine) IsPolling() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess != nil && e.sess.polling
}

// HasLoadedOnce distingue "vacío porque no hay mensajes" de "todavía cargando
// la primera página". Queda en true aunque el fetch inicial haya fallado.
func (e *Engine) HasLoadedOnce() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess != nil && e.sess.loadedOnce
}

// Err devuelve el último error transitorio (carga inicial o poll fallido),
// o nil después de un poll sano.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return nil
	}
	return e.sess.lastErr
}
