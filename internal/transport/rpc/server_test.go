package rpc

import (
	"context"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"testing"
	"time"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
	"github.com/Nitesh802/customerintel-sub008/internal/testutil/servicetest"
)

func startServer(t *testing.T) *rpc.Client {
	t.Helper()
	svc, _ := servicetest.New(t)
	srv, err := NewServer(svc, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve(ln)

	client, err := jsonrpc.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return client
}

func TestEnqueueExecuteStatus(t *testing.T) {
	client := startServer(t)

	var queued domain.RunSummary
	req := &domain.CreateRunRequest{
		SourceCompany: "Acme",
		Chunks:        []domain.Chunk{{Text: "Acme ships globally.", SourceID: "doc1", EndOffset: 20}},
	}
	if err := client.Call("Pipeline.Enqueue", req, &queued); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if queued.Status != domain.RunStatusQueued || queued.RunID == "" {
		t.Fatalf("unexpected summary: %+v", queued)
	}

	var done domain.RunSummary
	if err := client.Call("Pipeline.Execute", &RunRequest{RunID: queued.RunID}, &done); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if done.Status != domain.RunStatusCompleted || done.State != domain.StateCompleted {
		t.Fatalf("expected completed, got %+v", done)
	}

	var status domain.RunSummary
	if err := client.Call("Pipeline.Status", &RunRequest{RunID: queued.RunID}, &status); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != done {
		t.Fatalf("status %+v differs from execute result %+v", status, done)
	}
}

func TestValidationErrors(t *testing.T) {
	client := startServer(t)

	var resp domain.RunSummary
	if err := client.Call("Pipeline.Enqueue", &domain.CreateRunRequest{}, &resp); err == nil {
		t.Fatalf("expected error for missing source_company")
	}
	if err := client.Call("Pipeline.Status", &RunRequest{}, &resp); err == nil {
		t.Fatalf("expected error for missing run_id")
	}
	if err := client.Call("Pipeline.Status", &RunRequest{RunID: "run_missing"}, &resp); err == nil || err.Error() != "run not found" {
		t.Fatalf("expected run not found, got %v", err)
	}
	if err := client.Call("Pipeline.Cancel", &RunRequest{RunID: "run_missing"}, &resp); err == nil {
		t.Fatalf("expected error cancelling unknown run")
	}
}

func TestCancelQueuedRun(t *testing.T) {
	client := startServer(t)

	var queued domain.RunSummary
	if err := client.Call("Pipeline.Enqueue", &domain.CreateRunRequest{SourceCompany: "Acme"}, &queued); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	var cancelled domain.RunSummary
	if err := client.Call("Pipeline.Cancel", &RunRequest{RunID: queued.RunID}, &cancelled); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	var done domain.RunSummary
	if err := client.Call("Pipeline.Execute", &RunRequest{RunID: queued.RunID}, &done); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if done.Status != domain.RunStatusFailed || done.Error != "run cancelled" {
		t.Fatalf("expected cancelled failure, got %+v", done)
	}
}
