package syncengine

import (
	"sort"
	"time"

	"teamchat/internal/domain"
)

// Store mantiene la vista canónica de una conversación: mensajes ordenados
// por created_at, sin duplicados por id, más el cursor de sincronización.
// No es seguro para uso concurrente por sí mismo; el Engine serializa todo
// acceso bajo su propio mutex.
type Store struct {
	ordered    []domain.Message
	byID       map[string]int
	tombstones map[string]struct{}
	cursor     time.Time
}

func NewStore() *Store {
	return &Store{
		byID:       make(map[string]int),
		tombstones: make(map[string]struct{}),
	}
}

// Seed reemplaza la vista completa con el resultado del fetch inicial.
// Con entrada vacía el cursor queda en "ahora", para que los polls
// siguientes solo pidan mensajes creados después de la activación.
func (s *Store) Seed(messages []domain.Message) {
	s.ordered = s.ordered[:0]
	s.byID = make(map[string]int)
	s.tombstones = make(map[string]struct{})

	for _, msg := range messages {
		if idx, ok := s.byID[msg.ID]; ok {
			s.ordered[idx] = msg
			continue
		}
		s.byID[msg.ID] = len(s.ordered)
		s.ordered = append(s.ordered, msg)
	}
	s.sortAndReindex()

	if len(s.ordered) == 0 {
		s.cursor = time.Now().UTC()
		return
	}
	s.cursor = s.maxCreatedAt()
}

// Merge incorpora mensajes nuevos de un poll incremental. Los ids ya
// presentes se actualizan en su lugar (un envío optimista pasa a confirmado
// sin duplicarse); los ids con tombstone no se resucitan. Devuelve cuántos
// mensajes se agregaron.
func (s *Store) Merge(messages []domain.Message) int {
	added := 0
	for _, msg := range messages {
		if _, dead := s.tombstones[msg.ID]; dead {
			continue
		}
		if idx, ok := s.byID[msg.ID]; ok {
			s.ordered[idx] = msg
			continue
		}
		s.byID[msg.ID] = len(s.ordered)
		s.ordered = append(s.ordered, msg)
		added++
	}
	if added > 0 {
		s.sortAndReindex()
	}
	s.advanceCursor(messages)
	return added
}

// InsertOptimistic agrega un mensaje recién confirmado por el servidor antes
// de que el polling lo observe. Participa del dedup como cualquier otro.
func (s *Store) InsertOptimistic(msg domain.Message) {
	if _, dead := s.tombstones[msg.ID]; dead {
		return
	}
	msg.Origin = domain.OriginOptimistic
	if idx, ok := s.byID[msg.ID]; ok {
		s.ordered[idx] = msg
	} else {
		s.byID[msg.ID] = len(s.ordered)
		s.ordered = append(s.ordered, msg)
	}
	s.sortAndReindex()
	if msg.CreatedAt.After(s.cursor) {
		s.cursor = msg.CreatedAt
	}
}

// Remove elimina por id y deja un tombstone para que un poll en vuelo con
// datos viejos no lo reintroduzca en esta sesión. Idempotente.
func (s *Store) Remove(id string) bool {
	s.tombstones[id] = struct{}{}
	idx, ok := s.byID[id]
	if !ok {
		return false
	}
	s.ordered = append(s.ordered[:idx], s.ordered[idx+1:]...)
	delete(s.byID, id)
	for i := idx; i < len(s.ordered); i++ {
		s.byID[s.ordered[i].ID] = i
	}
	return true
}

// Messages devuelve una copia de la vista ordenada.
func (s *Store) Messages() []domain.Message {
	result := make([]domain.Message, len(s.ordered))
	copy(result, s.ordered)
	return result
}

func (s *Store) Cursor() time.Time {
	return s.cursor
}

func (s *Store) Len() int {
	return len(s.ordered)
}

func (s *Store) sortAndReindex() {
	// Sort estable: los empates de created_at conservan el orden de llegada,
	// que es el orden de retorno del servidor.
	sort.SliceStable(s.ordered, func(i, j int) bool {
		return s.ordered[i].CreatedAt.Before(s.ordered[j].CreatedAt)
	})
	for i, msg := range s.ordered {
		s.byID[msg.ID] = i
	}
}

func (s *Store) advanceCursor(messages []domain.Message) {
	for _, msg := range messages {
		if msg.CreatedAt.After(s.cursor) {
			s.cursor = msg.CreatedAt
		}
	}
}

func (s *Store) maxCreatedAt() time.Time {
	max := s.ordered[0].CreatedAt
	for _, msg := range s.ordered[1:] {
		if msg.CreatedAt.After(max) {
			max = msg.CreatedAt
		}
	}
	return max
}
