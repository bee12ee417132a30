package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Nitesh802/customerintel-sub008/internal/config"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

type fakeSource struct {
	events []domain.Event
}

func (f *fakeSource) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	if runID != "run_1" {
		return nil, nil
	}
	return &domain.Run{RunID: runID, Status: domain.RunStatusRunning}, nil
}

func (f *fakeSource) GetRunEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	var out []domain.Event
	for _, ev := range f.events {
		if ev.Ts > afterTs {
			out = append(out, ev)
		}
	}
	return out, nil
}

func event(id string, ts int64, typ domain.EventType) domain.Event {
	return domain.Event{EventID: id, RunID: "run_1", Ts: ts, Type: typ, Payload: json.RawMessage(`{}`)}
}

func startServer(t *testing.T, source EventSource) (*Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	e := echo.New()
	srv := NewServer(config.Default().Stream, hub, source, nil)
	e.GET("/v1/runs/:run_id/stream", srv.HandleStream)
	ts := httptest.NewServer(e)
	t.Cleanup(func() {
		cancel()
		<-stopped
		ts.Close()
	})
	return hub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev domain.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return ev
}

func TestStreamReplaysThenFollows(t *testing.T) {
	source := &fakeSource{events: []domain.Event{
		event("evt_1", 10, domain.EventTypeRunStarted),
		event("evt_2", 20, domain.EventTypePhaseStarted),
	}}
	hub, base := startServer(t, source)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/v1/runs/run_1/stream", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for hub.Subscribers("run_1") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// evt_2 is already replayed and must not be delivered twice
	hub.Publish("run_1", event("evt_2", 20, domain.EventTypePhaseStarted))
	hub.Publish("run_2", event("evt_x", 25, domain.EventTypeRunStarted))
	hub.Publish("run_1", event("evt_3", 30, domain.EventTypePhaseCompleted))

	var got []string
	for i := 0; i < 3; i++ {
		got = append(got, readEvent(t, conn).EventID)
	}
	want := []string{"evt_1", "evt_2", "evt_3"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got events %v, want %v", got, want)
	}
}

func TestStreamAfterTs(t *testing.T) {
	source := &fakeSource{events: []domain.Event{
		event("evt_1", 10, domain.EventTypeRunStarted),
		event("evt_2", 20, domain.EventTypePhaseStarted),
	}}
	_, base := startServer(t, source)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/v1/runs/run_1/stream?after_ts=10", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if ev := readEvent(t, conn); ev.EventID != "evt_2" {
		t.Fatalf("expected evt_2 first, got %s", ev.EventID)
	}
}

func TestStreamUnknownRun(t *testing.T) {
	_, base := startServer(t, &fakeSource{})

	_, resp, err := websocket.DefaultDialer.Dial(base+"/v1/runs/nope/stream", nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 response, got %+v", resp)
	}
}

func TestHubClosesConnectionsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	conn := hub.NewConnection(nil, "run_1")
	if !hub.Register(conn) {
		t.Fatalf("Register failed on a running hub")
	}
	cancel()
	<-stopped

	if _, ok := <-conn.Send; ok {
		t.Fatalf("expected send channel closed")
	}
	if hub.Register(hub.NewConnection(nil, "run_1")) {
		t.Fatalf("Register succeeded on a stopped hub")
	}
	hub.Publish("run_1", event("evt_1", 1, domain.EventTypeRunStarted))
	hub.Unregister(conn)
}
