package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"threebody/sim/internal/logging"
	"threebody/sim/internal/replay"
	"threebody/sim/internal/simulation"
)

type fakeReadiness struct {
	clients    int
	startupErr error
	uptime     time.Duration
	terminated bool
}

func (f *fakeReadiness) ClientCount() int      { return f.clients }
func (f *fakeReadiness) StartupError() error   { return f.startupErr }
func (f *fakeReadiness) Uptime() time.Duration { return f.uptime }
func (f *fakeReadiness) Terminated() bool      { return f.terminated }

func TestLivenessHandler(t *testing.T) {
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger()})
	recorder := httptest.NewRecorder()
	handlers.LivenessHandler()(recorder, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"alive"`) {
		t.Fatalf("unexpected body %q", recorder.Body.String())
	}
}

func TestReadinessHandlerReportsStartupError(t *testing.T) {
	handlers := NewHandlerSet(Options{
		Logger:    logging.NewTestLogger(),
		Readiness: &fakeReadiness{startupErr: errors.New("scene failed to load")},
	})
	recorder := httptest.NewRecorder()
	handlers.ReadinessHandler()(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "scene failed to load") {
		t.Fatalf("error missing from body %q", recorder.Body.String())
	}
}

func TestReadinessHandlerIncludesTermination(t *testing.T) {
	handlers := NewHandlerSet(Options{
		Logger:    logging.NewTestLogger(),
		Readiness: &fakeReadiness{clients: 2, uptime: 90 * time.Second, terminated: true},
	})
	recorder := httptest.NewRecorder()
	handlers.ReadinessHandler()(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, `"terminated":true`) || !strings.Contains(body, `"clients":2`) {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestMetricsHandlerEmitsSimSeries(t *testing.T) {
	handlers := NewHandlerSet(Options{
		Logger:     logging.NewTestLogger(),
		Readiness:  &fakeReadiness{clients: 3, uptime: 60 * time.Second},
		Tick:       func() uint64 { return 4200 },
		BodyCount:  func() int { return 4 },
		Broadcasts: func() int64 { return 99 },
		TickStats: func() simulation.TickStats {
			return simulation.TickStats{Samples: 4200, Average: 2 * time.Millisecond, Max: 9 * time.Millisecond}
		},
		ReplayStats: func() replay.Stats {
			return replay.Stats{BufferedFrames: 7, BufferedBytes: 512, Dumps: 1}
		},
	})
	recorder := httptest.NewRecorder()
	handlers.MetricsHandler()(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := recorder.Body.String()
	for _, want := range []string{
		"sim_uptime_seconds 60",
		"sim_clients 3",
		"sim_ticks_total 4200",
		"sim_bodies 4",
		"sim_broadcasts_total 99",
		"sim_tick_duration_avg_seconds 0.002000",
		"sim_tick_duration_max_seconds 0.009000",
		"sim_replay_buffer_frames 7",
		"sim_replay_buffer_bytes 512",
		"sim_replay_dumps_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestReplayDumpHandlerAuthorisation(t *testing.T) {
	dumped := 0
	handlers := NewHandlerSet(Options{
		Logger:     logging.NewTestLogger(),
		AdminToken: "secret",
		Replay: ReplayDumperFunc(func(ctx context.Context) (string, error) {
			dumped++
			return "/replays/run.json", nil
		}),
	})
	handler := handlers.ReplayDumpHandler()

	//1.- GET is refused outright.
	recorder := httptest.NewRecorder()
	handler(recorder, httptest.NewRequest(http.MethodGet, "/replay/dump", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", recorder.Code)
	}

	//2.- A missing token is unauthorized.
	recorder = httptest.NewRecorder()
	handler(recorder, httptest.NewRequest(http.MethodPost, "/replay/dump", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}

	//3.- A bearer token matching the configured secret triggers the dump.
	request := httptest.NewRequest(http.MethodPost, "/replay/dump", nil)
	request.Header.Set("Authorization", "Bearer secret")
	recorder = httptest.NewRecorder()
	handler(recorder, request)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if dumped != 1 {
		t.Fatalf("expected one dump, got %d", dumped)
	}
	if !strings.Contains(recorder.Body.String(), "/replays/run.json") {
		t.Fatalf("location missing from body %q", recorder.Body.String())
	}
}

func TestReplayDumpHandlerRateLimited(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	limiter := NewSlidingWindowLimiter(time.Minute, 1, func() time.Time { return now })
	handlers := NewHandlerSet(Options{
		Logger:      logging.NewTestLogger(),
		AdminToken:  "secret",
		RateLimiter: limiter,
		Replay: ReplayDumperFunc(func(ctx context.Context) (string, error) {
			return "ok", nil
		}),
	})
	handler := handlers.ReplayDumpHandler()

	for attempt, want := range []int{http.StatusAccepted, http.StatusTooManyRequests} {
		request := httptest.NewRequest(http.MethodPost, "/replay/dump", nil)
		request.Header.Set("X-Admin-Token", "secret")
		recorder := httptest.NewRecorder()
		handler(recorder, request)
		if recorder.Code != want {
			t.Fatalf("attempt %d: expected %d, got %d", attempt, want, recorder.Code)
		}
	}
}

func TestSlidingWindowLimiterRecovers(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	limiter := NewSlidingWindowLimiter(time.Minute, 2, func() time.Time { return now })

	if !limiter.Allow() || !limiter.Allow() {
		t.Fatalf("first two events should pass")
	}
	if limiter.Allow() {
		t.Fatalf("third event within the window should be refused")
	}
	//1.- Advancing past the window frees capacity again.
	now = now.Add(2 * time.Minute)
	if !limiter.Allow() {
		t.Fatalf("event after the window elapsed should pass")
	}
}
