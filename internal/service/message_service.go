package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"teamchat/internal/domain"
	"teamchat/internal/repository"
)

// MessageService encapsula la lógica del lado servidor para mensajes de equipo:
// alta, listado incremental y los dos modos de borrado.
type MessageService struct {
	repo   repository.MessageRepository
	hidden HiddenMessageStore
}

var (
	ErrMessageServiceNotConfigured = errors.New("message service not configured")
	ErrMessageInvalidInput         = errors.New("message invalid input")
	ErrMessageNotFound             = errors.New("message not found")
	ErrMessageForbidden            = errors.New("message forbidden")
)

const maxMessageBodyLen = 4000

func NewMessageService(repo repository.MessageRepository, hidden HiddenMessageStore) *MessageService {
	if hidden == nil {
		hidden = NewMemoryHiddenStore()
	}
	return &MessageService{repo: repo, hidden: hidden}
}

// Post crea un mensaje con id y created_at asignados por el servidor.
func (s *MessageService) Post(ctx context.Context, teamID, authorID, authorName, body string) (domain.Message, error) {
	if s == nil || s.repo == nil {
		return domain.Message{}, ErrMessageServiceNotConfigured
	}

	teamID = strings.TrimSpace(teamID)
	authorID = strings.TrimSpace(authorID)
	body = strings.TrimSpace(body)

	if teamID == "" || authorID == "" || body == "" || len(body) > maxMessageBodyLen {
		return domain.Message{}, ErrMessageInvalidInput
	}

	msg := domain.Message{
		ID:         uuid.NewString(),
		TeamID:     teamID,
		AuthorID:   authorID,
		AuthorName: strings.TrimSpace(authorName),
		Body:       body,
		CreatedAt:  time.Now().UTC(),
		Origin:     domain.OriginConfirmed,
	}

	if err := s.repo.Create(ctx, msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// ListSince devuelve los mensajes del equipo posteriores al cursor (todos si
// since es nil), excluyendo los que el usuario ocultó para sí mismo.
func (s *MessageService) ListSince(ctx context.Context, teamID, userID string, since *time.Time) ([]domain.Message, error) {
	if s == nil || s.repo == nil {
		return nil, ErrMessageServiceNotConfigured
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return []domain.Message{}, nil
	}

	messages, err := s.repo.ListByTeam(ctx, teamID, since)
	if err != nil {
		return nil, err
	}

	hidden, err := s.hidden.HiddenFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(hidden) == 0 {
		return messages, nil
	}

	visible := make([]domain.Message, 0, len(messages))
	for _, msg := range messages {
		if _, ok := hidden[msg.ID]; ok {
			continue
		}
		visible = append(visible, msg)
	}
	return visible, nil
}

// Delete aplica el modo pedido: "mine" oculta el mensaje solo para el usuario,
// "everyone" lo elimina para todos y exige ser el autor.
func (s *MessageService) Delete(ctx context.Context, userID, messageID string, mode domain.DeleteMode) error {
	if s == nil || s.repo == nil {
		return ErrMessageServiceNotConfigured
	}
	userID = strings.TrimSpace(userID)
	messageID = strings.TrimSpace(messageID)
	if userID == "" || messageID == "" || !mode.Valid() {
		return ErrMessageInvalidInput
	}

	if mode == domain.DeleteForMe {
		return s.hidden.Hide(ctx, userID, messageID)
	}

	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return ErrMessageNotFound
	}
	if msg.AuthorID != userID {
		return ErrMessageForbidden
	}

	deleted, err := s.repo.Delete(ctx, messageID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrMessageNotFound
	}
	return nil
}
