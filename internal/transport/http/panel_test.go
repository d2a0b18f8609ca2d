package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yisheng0/ai-interview/internal/domain/chat"
	"github.com/yisheng0/ai-interview/internal/domain/session"
	platTesting "github.com/yisheng0/ai-interview/internal/platform/testing"
)

type fakeFacade struct {
	display session.Display
	history []chat.Message
	exitErr error
	exits   int
}

func (f *fakeFacade) Display() session.Display { return f.display }
func (f *fakeFacade) History() []chat.Message  { return f.history }
func (f *fakeFacade) Exit(ctx context.Context) error {
	f.exits++
	return f.exitErr
}

func setupPanel(t *testing.T, facade *fakeFacade) *httptest.Server {
	t.Helper()
	cfg := platTesting.SetupTestConfig(t)
	cfg.Web.StaticDir = ""
	logger := platTesting.SetupTestLogger(t)

	router, err := Build(Options{Config: cfg, Logger: logger})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}

	panel := NewPanelService(facade, logger)
	if err := panel.Start(context.Background(), router.Engine, router.API); err != nil {
		t.Fatalf("start panel: %v", err)
	}

	srv := httptest.NewServer(router.Engine)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out *APIResponse) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	srv := setupPanel(t, &fakeFacade{})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSessionSnapshotEndpoint(t *testing.T) {
	facade := &fakeFacade{
		display: session.Display{
			State:    "processing",
			Question: "请问什么是索引",
			Answer:   "索引是一种数据结构",
		},
	}
	srv := setupPanel(t, facade)

	var body APIResponse
	resp := getJSON(t, srv.URL+"/api/session", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !body.Success {
		t.Fatal("expected success response")
	}

	data, _ := json.Marshal(body.Data)
	var display session.Display
	if err := json.Unmarshal(data, &display); err != nil {
		t.Fatalf("decode display: %v", err)
	}
	if display.Question != "请问什么是索引" || display.State != "processing" {
		t.Errorf("unexpected display: %+v", display)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	facade := &fakeFacade{
		history: []chat.Message{
			{ID: "user-1", Role: chat.RoleUser, Content: "问题", Timestamp: 1},
		},
	}
	srv := setupPanel(t, facade)

	var body APIResponse
	getJSON(t, srv.URL+"/api/session/history", &body)

	data, _ := json.Marshal(body.Data)
	var msgs []chat.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "问题" {
		t.Errorf("unexpected history: %+v", msgs)
	}
}

func TestExitEndpoint(t *testing.T) {
	facade := &fakeFacade{}
	srv := setupPanel(t, facade)

	resp, err := http.Post(srv.URL+"/api/session/exit", "application/json", nil)
	if err != nil {
		t.Fatalf("POST exit: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if facade.exits != 1 {
		t.Errorf("expected one exit call, got %d", facade.exits)
	}
}

func TestExitEndpointError(t *testing.T) {
	facade := &fakeFacade{exitErr: errors.New("flush failed")}
	srv := setupPanel(t, facade)

	resp, err := http.Post(srv.URL+"/api/session/exit", "application/json", nil)
	if err != nil {
		t.Fatalf("POST exit: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestSystemEndpoint(t *testing.T) {
	srv := setupPanel(t, &fakeFacade{})

	var body APIResponse
	resp := getJSON(t, srv.URL+"/api/system", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	data, _ := json.Marshal(body.Data)
	var info SystemInfo
	if err := json.Unmarshal(data, &info); err != nil {
		t.Fatalf("decode system info: %v", err)
	}
	if info.Goroutines <= 0 {
		t.Errorf("expected goroutine count, got %d", info.Goroutines)
	}
}
