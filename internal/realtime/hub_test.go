package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/nutribot/internal/domain"
	"github.com/ashureev/nutribot/internal/state"
	"github.com/ashureev/nutribot/internal/voice"
)

type fakeReporter struct {
	mu      sync.Mutex
	reports []voice.State
}

func (f *fakeReporter) Report(st voice.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, st)
}

func (f *fakeReporter) got() []voice.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]voice.State(nil), f.reports...)
}

type frame struct {
	Type       string          `json:"type"`
	State      json.RawMessage `json:"state"`
	Command    string          `json:"command"`
	Language   string          `json:"language"`
	Continuous bool            `json:"continuous"`
}

func newTestHub(t *testing.T, opts ...Option) (*Hub, *state.Container, string) {
	t.Helper()
	c := state.New(domain.PersistedState{UserID: "user_1_abcdefg", PrepTime: 30})
	h := NewHub(c, opts...)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, c, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// readUntil returns the next frame of the given type.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string) frame {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read waiting for %q: %v", typ, err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("frame %s: %v", data, err)
		}
		if f.Type == typ {
			return f
		}
	}
}

func decodeSnapshot(t *testing.T, f frame) domain.Snapshot {
	t.Helper()
	var snap domain.Snapshot
	if err := json.Unmarshal(f.State, &snap); err != nil {
		t.Fatalf("state payload: %v", err)
	}
	return snap
}

func TestInitialStateFrame(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h, _, url := newTestHub(t)
	conn := dial(t, ctx, url)

	snap := decodeSnapshot(t, readUntil(t, ctx, conn, TypeState))
	if snap.UserID != "user_1_abcdefg" || snap.PrepTime != 30 {
		t.Errorf("initial snapshot = %+v", snap)
	}
	if h.Clients() != 1 {
		t.Errorf("Clients = %d, want 1", h.Clients())
	}
}

func TestMutationBroadcastsState(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, c, url := newTestHub(t)
	conn := dial(t, ctx, url)
	readUntil(t, ctx, conn, TypeState)

	c.SetPrepTime(60)
	snap := decodeSnapshot(t, readUntil(t, ctx, conn, TypeState))
	if snap.PrepTime != 60 {
		t.Errorf("prep_time = %d, want 60", snap.PrepTime)
	}
}

func TestViewShapesStatePayload(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, url := newTestHub(t, WithView(func(snap domain.Snapshot) any {
		return map[string]string{"who": snap.UserID}
	}))
	conn := dial(t, ctx, url)

	f := readUntil(t, ctx, conn, TypeState)
	var v map[string]string
	if err := json.Unmarshal(f.State, &v); err != nil {
		t.Fatalf("state payload: %v", err)
	}
	if v["who"] != "user_1_abcdefg" {
		t.Errorf("view payload = %v", v)
	}
}

func TestPingPong(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, url := newTestHub(t)
	conn := dial(t, ctx, url)
	readUntil(t, ctx, conn, TypeState)

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	readUntil(t, ctx, conn, TypePong)
}

func TestVoiceStateReachesReporter(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep := &fakeReporter{}
	_, _, url := newTestHub(t, WithReporter(rep))
	conn := dial(t, ctx, url)
	readUntil(t, ctx, conn, TypeState)

	frames := []string{
		`not json`,
		`{"type":"voice_state","listening":true,"transcript":"hola"}`,
		`{"type":"ping"}`,
	}
	for _, f := range frames {
		if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	// The pong is answered after the voice_state frame was handled.
	readUntil(t, ctx, conn, TypePong)

	got := rep.got()
	if len(got) != 1 || !got[0].Listening || got[0].Transcript != "hola" {
		t.Errorf("reports = %+v", got)
	}
}

func TestSendVoiceCommand(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h, _, url := newTestHub(t)

	cmd := voice.Command{Command: voice.CommandStart, Language: "es-ES"}
	if err := h.SendVoiceCommand(ctx, cmd); !errors.Is(err, ErrNoClients) {
		t.Fatalf("err = %v, want ErrNoClients", err)
	}

	conn := dial(t, ctx, url)
	readUntil(t, ctx, conn, TypeState)
	if err := h.SendVoiceCommand(ctx, cmd); err != nil {
		t.Fatalf("SendVoiceCommand: %v", err)
	}
	f := readUntil(t, ctx, conn, TypeVoiceCommand)
	if f.Command != voice.CommandStart || f.Language != "es-ES" || f.Continuous {
		t.Errorf("voice command frame = %+v", f)
	}
}

func TestEnqueueDropsOldest(t *testing.T) {
	t.Parallel()

	c := &client{send: make(chan []byte, 2)}
	for _, s := range []string{"a", "b", "c"} {
		enqueue(c, []byte(s))
	}
	first, second := string(<-c.send), string(<-c.send)
	if first != "b" || second != "c" {
		t.Errorf("buffer = %q %q, want b c", first, second)
	}
}

func TestOlderSnapshotNeverOverwritesNewer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entered := make(chan struct{})
	release := make(chan struct{})
	var enterOnce, releaseOnce sync.Once
	t.Cleanup(func() { releaseOnce.Do(func() { close(release) }) })

	// Rendering the loading snapshot stalls until the newer mutation has
	// been applied.
	_, c, url := newTestHub(t, WithView(func(snap domain.Snapshot) any {
		if snap.IsLoading {
			enterOnce.Do(func() { close(entered) })
			<-release
		}
		return snap
	}))
	conn := dial(t, ctx, url)
	readUntil(t, ctx, conn, TypeState)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.SetLoading(true)
	}()
	select {
	case <-entered:
	case <-ctx.Done():
		t.Fatal("loading snapshot was never rendered")
	}
	go func() {
		defer wg.Done()
		c.SetLoading(false)
	}()
	for c.Snapshot().Version < 2 {
		if ctx.Err() != nil {
			t.Fatal("second mutation was never applied")
		}
		time.Sleep(time.Millisecond)
	}
	releaseOnce.Do(func() { close(release) })
	wg.Wait()

	for {
		snap := decodeSnapshot(t, readUntil(t, ctx, conn, TypeState))
		if snap.Version == 2 {
			if snap.IsLoading {
				t.Fatalf("version 2 frame has is_loading=true")
			}
			break
		}
	}

	// Nothing may follow the newest frame.
	quiet, stop := context.WithTimeout(ctx, 200*time.Millisecond)
	defer stop()
	if _, data, err := conn.Read(quiet); err == nil {
		t.Errorf("frame after newest state: %s", data)
	}
}
