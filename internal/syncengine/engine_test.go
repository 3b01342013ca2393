package syncengine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"teamchat/internal/domain"
)

type mockGateway struct {
	mu sync.Mutex

	full     map[string][]domain.Message // historial completo por equipo
	fullErr  error
	incr     []domain.Message // respuesta de los polls incrementales
	incrErr  error
	released chan struct{} // si no es nil, ListMessages espera antes de responder

	lastSince  *time.Time
	fullCalls  int
	incrCalls  int
	created    domain.Message
	createErr  error
	deletedIDs []string
	deleteMode domain.DeleteMode
	deleteErr  error
}

func newMockGateway() *mockGateway {
	return &mockGateway{full: make(map[string][]domain.Message)}
}

func (m *mockGateway) ListMessages(_ context.Context, teamID string, since *time.Time) ([]domain.Message, error) {
	m.mu.Lock()
	released := m.released
	m.mu.Unlock()
	if released != nil {
		<-released
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if since == nil {
		m.fullCalls++
		if m.fullErr != nil {
			return nil, m.fullErr
		}
		return append([]domain.Message(nil), m.full[teamID]...), nil
	}
	m.incrCalls++
	sinceCopy := *since
	m.lastSince = &sinceCopy
	if m.incrErr != nil {
		return nil, m.incrErr
	}
	return append([]domain.Message(nil), m.incr...), nil
}

func (m *mockGateway) CreateMessage(_ context.Context, teamID, body string) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return domain.Message{}, m.createErr
	}
	msg := m.created
	msg.TeamID = teamID
	msg.Body = body
	return msg, nil
}

func (m *mockGateway) DeleteMessage(_ context.Context, id string, mode domain.DeleteMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletedIDs = append(m.deletedIDs, id)
	m.deleteMode = mode
	return nil
}

func (m *mockGateway) setIncremental(msgs []domain.Message, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incr = msgs
	m.incrErr = err
}

func (m *mockGateway) incrementalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incrCalls
}

func (m *mockGateway) sinceSeen() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSince == nil {
		return nil
	}
	sinceCopy := *m.lastSince
	return &sinceCopy
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func newTestEngine(gw *mockGateway) *Engine {
	return NewEngine(gw, zap.NewNop(), 10*time.Millisecond)
}

func TestEngineActivate_SeedsStoreAndPolls(t *testing.T) {
	base := time.Now().UTC().Add(-time.Minute)
	gw := newMockGateway()
	gw.full["t1"] = []domain.Message{
		msgAt("m1", base.Add(1*time.Second)),
		msgAt("m2", base.Add(2*time.Second)),
	}

	engine := newTestEngine(gw)
	defer engine.Deactivate()
	engine.Activate("t1")

	waitFor(t, 2*time.Second, engine.HasLoadedOnce)
	msgs := engine.Messages()
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("unexpected seeded view: %+v", msgs)
	}
	if !engine.IsPolling() {
		t.Fatalf("expected polling after initial load")
	}

	// El primer poll usa el created_at del mensaje más nuevo como cursor.
	waitFor(t, 2*time.Second, func() bool { return gw.incrementalCalls() > 0 })
	since := gw.sinceSeen()
	if since == nil || !since.Equal(base.Add(2*time.Second)) {
		t.Fatalf("expected since=T2, got %v", since)
	}

	// Un poll posterior entrega m3 y el cursor avanza.
	gw.setIncremental([]domain.Message{msgAt("m3", base.Add(3*time.Second))}, nil)
	waitFor(t, 2*time.Second, func() bool { return len(engine.Messages()) == 3 })
	gw.setIncremental(nil, nil)
	waitFor(t, 2*time.Second, func() bool {
		s := gw.sinceSeen()
		return s != nil && s.Equal(base.Add(3*time.Second))
	})
}

func TestEngineActivate_InitialFailureDoesNotBlockPolling(t *testing.T) {
	gw := newMockGateway()
	gw.fullErr = errors.New("boom")

	engine := newTestEngine(gw)
	defer engine.Deactivate()

	before := time.Now().UTC()
	engine.Activate("t1")

	waitFor(t, 2*time.Second, engine.HasLoadedOnce)
	if engine.Err() == nil {
		t.Fatalf("expected surfaced initial load error")
	}
	if len(engine.Messages()) != 0 {
		t.Fatalf("expected empty store after failed initial load")
	}

	// El polling sigue igual, con cursor defaulteado a "ahora".
	waitFor(t, 2*time.Second, func() bool { return gw.incrementalCalls() > 0 })
	since := gw.sinceSeen()
	if since == nil || since.Before(before) {
		t.Fatalf("expected since ~now, got %v", since)
	}

	// Un poll sano limpia el error transitorio.
	waitFor(t, 2*time.Second, func() bool { return engine.Err() == nil })
}

func TestEnginePollFailure_IsTransientAndRetried(t *testing.T) {
	gw := newMockGateway()
	engine := newTestEngine(gw)
	defer engine.Deactivate()
	engine.Activate("t1")
	waitFor(t, 2*time.Second, engine.HasLoadedOnce)

	gw.setIncremental(nil, errors.New("network down"))
	waitFor(t, 2*time.Second, func() bool { return engine.Err() != nil })
	if !engine.IsPolling() {
		t.Fatalf("expected polling to continue after failure")
	}

	failedAt := gw.incrementalCalls()
	gw.setIncremental(nil, nil)
	waitFor(t, 2*time.Second, func() bool { return gw.incrementalCalls() > failedAt })
	waitFor(t, 2*time.Second, func() bool { return engine.Err() == nil })
}

func TestEngineSend_OptimisticInsertThenPollNoDuplicate(t *testing.T) {
	base := time.Now().UTC().Add(-time.Minute)
	gw := newMockGateway()
	gw.full["t1"] = []domain.Message{msgAt("m1", base)}
	gw.created = msgAt("m9", base.Add(4*time.Second))

	engine := newTestEngine(gw)
	defer engine.Deactivate()
	engine.Activate("t1")
	waitFor(t, 2*time.Second, engine.HasLoadedOnce)

	msg, err := engine.Send(context.Background(), "hola equipo")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ID != "m9" {
		t.Fatalf("expected server id m9, got %q", msg.ID)
	}

	msgs := engine.Messages()
	if len(msgs) != 2 || msgs[1].ID != "m9" {
		t.Fatalf("expected optimistic m9 visible immediately, got %+v", msgs)
	}
	if msgs[1].Origin != domain.OriginOptimistic {
		t.Fatalf("expected optimistic origin, got %s", msgs[1].Origin)
	}

	// El poll devuelve el mismo id ya confirmado: nada se duplica.
	gw.setIncremental([]domain.Message{msgAt("m9", base.Add(4 * time.Second))}, nil)
	waitFor(t, 2*time.Second, func() bool {
		current := engine.Messages()
		return len(current) == 2 && current[1].Origin == domain.OriginConfirmed
	})
}

func TestEngineSend_FailureLeavesStoreUntouched(t *testing.T) {
	gw := newMockGateway()
	gw.createErr = errors.New("rejected")

	engine := newTestEngine(gw)
	defer engine.Deactivate()
	engine.Activate("t1")
	waitFor(t, 2*time.Second, engine.HasLoadedOnce)

	if _, err := engine.Send(context.Background(), "hola"); err == nil {
		t.Fatalf("expected send error")
	}
	if len(engine.Messages()) != 0 {
		t.Fatalf("expected no optimistic insert on failed create")
	}
}

func TestEngineSend_WithoutSession(t *testing.T) {
	engine := newTestEngine(newMockGateway())
	if _, err := engine.Send(context.Background(), "hola"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	if err := engine.DeleteForMe(context.Background(), "m1"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestEngineDeleteForEveryone_RemovesAndBlocksStalePoll(t *testing.T) {
	base := time.Now().UTC().Add(-time.Minute)
	gw := newMockGateway()
	gw.full["t1"] = []domain.Message{
		msgAt("m1", base.Add(1*time.Second)),
		msgAt("m2", base.Add(2*time.Second)),
	}

	engine := newTestEngine(gw)
	defer engine.Deactivate()
	engine.Activate("t1")
	waitFor(t, 2*time.Second, engine.HasLoadedOnce)

	if err := engine.DeleteForEveryone(context.Background(), "m2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	gw.mu.Lock()
	mode := gw.deleteMode
	gw.mu.Unlock()
	if mode != domain.DeleteForEveryone {
		t.Fatalf("expected everyone mode, got %s", mode)
	}
	for _, msg := range engine.Messages() {
		if msg.ID == "m2" {
			t.Fatalf("expected m2 removed immediately")
		}
	}

	// Una respuesta vieja cacheada que todavía trae m2 no lo reintroduce.
	gw.setIncremental([]domain.Message{msgAt("m2", base.Add(2 * time.Second))}, nil)
	calls := gw.incrementalCalls()
	waitFor(t, 2*time.Second, func() bool { return gw.incrementalCalls() > calls+1 })
	for _, msg := range engine.Messages() {
		if msg.ID == "m2" {
			t.Fatalf("stale poll resurrected deleted message")
		}
	}
}

func TestEngineDeleteForMe_FailureKeepsMessage(t *testing.T) {
	base := time.Now().UTC().Add(-time.Minute)
	gw := newMockGateway()
	gw.full["t1"] = []domain.Message{msgAt("m1", base)}
	gw.deleteErr = errors.New("boom")

	engine := newTestEngine(gw)
	defer engine.Deactivate()
	engine.Activate("t1")
	waitFor(t, 2*time.Second, engine.HasLoadedOnce)

	if err := engine.DeleteForMe(context.Background(), "m1"); err == nil {
		t.Fatalf("expected delete error")
	}
	if len(engine.Messages()) != 1 {
		t.Fatalf("expected message kept after failed delete")
	}
}

func TestEngineSwitchTeam_StartsFreshSession(t *testing.T) {
	base := time.Now().UTC().Add(-time.Minute)
	gw := newMockGateway()
	gw.full["t1"] = []domain.Message{msgAt("m1", base)}
	gw.full["t2"] = []domain.Message{msgAt("m7", base.Add(7*time.Second))}

	engine := newTestEngine(gw)
	defer engine.Deactivate()
	engine.Activate("t1")
	waitFor(t, 2*time.Second, engine.HasLoadedOnce)

	engine.Activate("t2")
	// La sesión nueva arranca sin cargar: hasLoadedOnce vuelve a false hasta
	// su propio fetch inicial.
	if engine.ActiveTeam() != "t2" {
		t.Fatalf("expected active team t2, got %q", engine.ActiveTeam())
	}
	waitFor(t, 2*time.Second, engine.HasLoadedOnce)
	msgs := engine.Messages()
	if len(msgs) != 1 || msgs[0].ID != "m7" {
		t.Fatalf("expected only t2 history, got %+v", msgs)
	}
}

func TestEngineDeactivate_DiscardsInFlightResponse(t *testing.T) {
	base := time.Now().UTC().Add(-time.Minute)
	gw := newMockGateway()
	gw.full["t1"] = []domain.Message{msgAt("m1", base)}
	released := make(chan struct{})
	gw.released = released

	engine := newTestEngine(gw)
	engine.Activate("t1")

	// El fetch inicial quedó en vuelo; la sesión se desmonta antes de que
	// responda.
	engine.Deactivate()
	close(released)

	time.Sleep(50 * time.Millisecond)
	if engine.HasLoadedOnce() {
		t.Fatalf("expected torn-down session to stay inactive")
	}
	if len(engine.Messages()) != 0 {
		t.Fatalf("expected no messages applied after teardown")
	}
	if engine.IsPolling() {
		t.Fatalf("expected no polling after teardown")
	}
}

func TestEngineDeactivate_SafeWhenInactive(t *testing.T) {
	engine := newTestEngine(newMockGateway())
	engine.Deactivate()
	engine.Deactivate()
	if engine.ActiveTeam() != "" {
		t.Fatalf("expected no active team")
	}
}
