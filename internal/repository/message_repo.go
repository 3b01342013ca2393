package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"teamchat/internal/domain"
)

type MessageRepository interface {
	Create(ctx context.Context, message domain.Message) error
	ListByTeam(ctx context.Context, teamID string, since *time.Time) ([]domain.Message, error)
	GetByID(ctx context.Context, id string) (domain.Message, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

func (r *PgMessageRepository) Create(ctx context.Context, message domain.Message) error {
	const query = `
		INSERT INTO messages (id, team_id, author_id, author_name, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		message.ID,
		message.TeamID,
		message.AuthorID,
		message.AuthorName,
		message.Body,
		message.CreatedAt,
	)
	return err
}

// ListByTeam devuelve los mensajes de un equipo en orden de creación.
// Con since, solo los estrictamente posteriores al cursor.
func (r *PgMessageRepository) ListByTeam(ctx context.Context, teamID string, since *time.Time) ([]domain.Message, error) {
	query := `
		SELECT id, team_id, author_id, author_name, body, created_at
		FROM messages
		WHERE team_id = $1
		ORDER BY created_at ASC
	`
	args := []interface{}{teamID}
	if since != nil {
		query = `
			SELECT id, team_id, author_id, author_name, body, created_at
			FROM messages
			WHERE team_id = $1 AND created_at > $2
			ORDER BY created_at ASC
		`
		args = append(args, *since)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		err = rows.Scan(
			&msg.ID,
			&msg.TeamID,
			&msg.AuthorID,
			&msg.AuthorName,
			&msg.Body,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		msg.Origin = domain.OriginConfirmed
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *PgMessageRepository) GetByID(ctx context.Context, id string) (domain.Message, error) {
	const query = `
		SELECT id, team_id, author_id, author_name, body, created_at
		FROM messages
		WHERE id = $1
	`
	var msg domain.Message
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID,
		&msg.TeamID,
		&msg.AuthorID,
		&msg.AuthorName,
		&msg.Body,
		&msg.CreatedAt,
	)
	if err != nil {
		return domain.Message{}, err
	}
	msg.Origin = domain.OriginConfirmed
	return msg, nil
}

// Delete elimina el mensaje y reporta si existía.
func (r *PgMessageRepository) Delete(ctx context.Context, id string) (bool, error) {
	const query = `DELETE FROM messages WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
