package domain

import "time"

// Origin indica si un mensaje fue confirmado por el servidor o insertado
// de forma optimista en el cliente. No viaja por la red.
type Origin string

const (
	OriginConfirmed  Origin = "confirmed"
	OriginOptimistic Origin = "optimistic"
)

// DeleteMode distingue borrado local ("mine") de borrado propagado ("everyone").
type DeleteMode string

const (
	DeleteForMe       DeleteMode = "mine"
	DeleteForEveryone DeleteMode = "everyone"
)

// Valid reporta si el modo de borrado es uno de los soportados.
func (m DeleteMode) Valid() bool {
	return m == DeleteForMe || m == DeleteForEveryone
}

type Message struct {
	ID         string    `json:"id"`
	TeamID     string    `json:"team_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	Origin     Origin    `json:"-"`
}
