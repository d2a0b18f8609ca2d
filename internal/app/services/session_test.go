package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/yisheng0/ai-interview/internal/domain/answer"
	"github.com/yisheng0/ai-interview/internal/domain/chat/store"
	platTesting "github.com/yisheng0/ai-interview/internal/platform/testing"
)

type backendCalls struct {
	mu      sync.Mutex
	creates int
	saves   int
	history int
}

func newSessionFixture(t *testing.T, resumeID string) (*SessionService, *backendCalls, store.Store) {
	t.Helper()

	calls := &backendCalls{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.mu.Lock()
		defer calls.mu.Unlock()
		switch {
		case r.URL.Path == "/sessions" && r.Method == http.MethodPost:
			calls.creates++
			w.Write([]byte(`{"code":0,"message":"ok","data":{"sessionId":"sess-new"}}`))
		case r.URL.Path == "/conversations/save":
			calls.saves++
			w.Write([]byte(`{"code":0,"message":"ok","data":null}`))
		case r.Method == http.MethodGet:
			calls.history++
			w.Write([]byte(`{"code":0,"message":"ok","data":[{"id":"user-1","role":"user","content":"旧问题","timestamp":1}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := platTesting.SetupTestConfig(t)
	cfg.AI.BaseURL = srv.URL
	cfg.Session.InterviewID = "iv-1"
	cfg.Session.RoundID = "r-1"
	cfg.Session.ResumeSessionID = resumeID

	logger := platTesting.SetupTestLogger(t)
	client := NewAIClient(cfg.AI.BaseURL, cfg.AI.Token, cfg.AI.Timeout, logger)
	streamer := answer.NewStreamer(cfg.AI.BaseURL, cfg.AI.Token, logger)
	st := store.NewMemory()

	svc := NewSessionService(SessionDeps{
		Config:   cfg,
		Logger:   logger,
		AIClient: client,
		Opener:   streamer,
		Store:    st,
	})
	return svc, calls, st
}

func TestEnsureSessionCreatesAndPersists(t *testing.T) {
	svc, calls, st := newSessionFixture(t, "")

	if err := svc.ensureSession(context.Background()); err != nil {
		t.Fatalf("ensureSession error: %v", err)
	}

	if calls.creates != 1 {
		t.Errorf("expected one create call, got %d", calls.creates)
	}
	if got := svc.history.SessionID(); got != "sess-new" {
		t.Errorf("expected sess-new, got %s", got)
	}
	stored, _ := st.Load(context.Background())
	if stored != "sess-new" {
		t.Errorf("session pointer not persisted: %q", stored)
	}
}

func TestEnsureSessionResumesFromStore(t *testing.T) {
	svc, calls, st := newSessionFixture(t, "")
	st.Save(context.Background(), "sess-old")

	if err := svc.ensureSession(context.Background()); err != nil {
		t.Fatalf("ensureSession error: %v", err)
	}

	if calls.creates != 0 {
		t.Error("resume should not create a new session")
	}
	if calls.history != 1 {
		t.Errorf("expected one history fetch, got %d", calls.history)
	}
	if got := svc.history.SessionID(); got != "sess-old" {
		t.Errorf("expected sess-old, got %s", got)
	}
	if svc.history.Len() != 1 {
		t.Errorf("expected restored history, got %d messages", svc.history.Len())
	}
}

func TestEnsureSessionResumeIDFromConfigWins(t *testing.T) {
	svc, _, st := newSessionFixture(t, "sess-cfg")
	st.Save(context.Background(), "sess-stored")

	if err := svc.ensureSession(context.Background()); err != nil {
		t.Fatalf("ensureSession error: %v", err)
	}
	if got := svc.history.SessionID(); got != "sess-cfg" {
		t.Errorf("config resume id should win, got %s", got)
	}
}

func TestExitFlushesHistory(t *testing.T) {
	svc, calls, _ := newSessionFixture(t, "")
	if err := svc.ensureSession(context.Background()); err != nil {
		t.Fatalf("ensureSession error: %v", err)
	}

	svc.history.AddUserMessage("问题")
	svc.history.AddAssistantMessage("回答")

	if err := svc.Exit(context.Background()); err != nil {
		t.Fatalf("Exit error: %v", err)
	}
	if calls.saves != 1 {
		t.Errorf("expected one save call, got %d", calls.saves)
	}
}

func TestExitWithoutSessionIsNoop(t *testing.T) {
	svc, calls, _ := newSessionFixture(t, "")
	if err := svc.Exit(context.Background()); err != nil {
		t.Fatalf("Exit error: %v", err)
	}
	if calls.saves != 0 {
		t.Error("no session, nothing to flush")
	}
}

func TestExitSaveFailureIsLoggedOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sessions" {
			w.Write([]byte(`{"code":0,"message":"ok","data":{"sessionId":"sess-new"}}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cfg := platTesting.SetupTestConfig(t)
	cfg.AI.BaseURL = srv.URL
	logger := platTesting.SetupTestLogger(t)

	svc := NewSessionService(SessionDeps{
		Config:   cfg,
		Logger:   logger,
		AIClient: NewAIClient(cfg.AI.BaseURL, cfg.AI.Token, cfg.AI.Timeout, logger),
		Opener:   answer.NewStreamer(cfg.AI.BaseURL, cfg.AI.Token, logger),
		Store:    store.NewMemory(),
	})

	if err := svc.ensureSession(context.Background()); err != nil {
		t.Fatalf("ensureSession error: %v", err)
	}
	// 回传失败不阻塞退出
	if err := svc.Exit(context.Background()); err != nil {
		t.Fatalf("Exit should swallow save failures, got %v", err)
	}
}
