package runner

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeService struct {
	name     string
	startErr error
	stopErr  error

	mu      sync.Mutex
	started bool
	stopped bool
	log     *[]string
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	if s.log != nil {
		*s.log = append(*s.log, "start:"+s.name)
	}
	return nil
}

func (s *fakeService) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return s.stopErr
}

func TestRunStartsInOrderAndStopsOnCancel(t *testing.T) {
	var log []string
	a := &fakeService{name: "a", log: &log}
	b := &fakeService{name: "b", log: &log}

	ctx, cancel := context.WithCancel(context.Background())
	r := New([]Service{a, b})

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// give the runner a moment to start both services, then shut down
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}

	if len(log) != 2 || log[0] != "start:a" || log[1] != "start:b" {
		t.Fatalf("start order = %v", log)
	}
	if !a.stopped || !b.stopped {
		t.Fatalf("services not stopped: a=%v b=%v", a.stopped, b.stopped)
	}
}

func TestRunRollsBackOnStartFailure(t *testing.T) {
	a := &fakeService{name: "a"}
	b := &fakeService{name: "b", startErr: errors.New("port taken")}

	err := New([]Service{a, b}).Run(context.Background())
	if err == nil {
		t.Fatal("expected start error")
	}
	if !a.stopped {
		t.Fatal("already started service was not stopped")
	}
	if b.stopped {
		t.Fatal("failed service should not be stopped")
	}
}

func TestStopErrorsAreReported(t *testing.T) {
	a := &fakeService{name: "a", stopErr: errors.New("flush failed")}

	ctx, cancel := context.WithCancel(context.Background())
	r := New([]Service{a})

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	err := <-done
	if err == nil || !strings.Contains(err.Error(), "flush failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestHTTPService(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	svc := NewHTTPService("http", &http.Server{Addr: "127.0.0.1:0", Handler: mux})

	// binding to a random free port never fails
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	healthy := &healthService{fakeService: fakeService{name: "ok"}}
	sick := &healthService{fakeService: fakeService{name: "sick"}, healthErr: errors.New("db gone")}

	if err := New([]Service{healthy}).HealthCheck(context.Background()); err != nil {
		t.Fatalf("healthy runner: %v", err)
	}
	err := New([]Service{healthy, sick}).HealthCheck(context.Background())
	if err == nil {
		t.Fatal("expected health error")
	}
	if !strings.Contains(err.Error(), "service sick unhealthy") {
		t.Fatalf("err = %v", err)
	}
}

type healthService struct {
	fakeService
	healthErr error
}

func (s *healthService) HealthCheck(context.Context) error { return s.healthErr }
