package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yisheng0/ai-interview/internal/domain/chat"
	platTesting "github.com/yisheng0/ai-interview/internal/platform/testing"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *AIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := platTesting.SetupTestLogger(t)
	return NewAIClient(srv.URL, "test-token", 0, logger)
}

func TestCreateSession(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected auth header: %s", got)
		}

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["interviewId"] != "iv-1" || body["roundId"] != "r-1" {
			t.Errorf("unexpected body: %v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":0,"message":"ok","data":{"sessionId":"sess-9"}}`))
	})

	sessionID, err := client.CreateSession(context.Background(), "iv-1", "r-1")
	if err != nil {
		t.Fatalf("CreateSession error: %v", err)
	}
	if sessionID != "sess-9" {
		t.Errorf("expected sess-9, got %s", sessionID)
	}
}

func TestCreateSessionMissingID(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":0,"message":"ok","data":{}}`))
	})

	if _, err := client.CreateSession(context.Background(), "iv-1", "r-1"); err == nil {
		t.Fatal("expected error for missing session id")
	}
}

func TestSendMessageNonStreaming(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/sess-1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["streaming"] != false {
			t.Errorf("analysis request must be non-streaming: %v", body)
		}
		w.Write([]byte(`{"code":200,"message":"ok","data":{"reply":"先答定义再展开"}}`))
	})

	reply, err := client.SendMessage(context.Background(), "sess-1", "什么是索引")
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	if reply != "先答定义再展开" {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestBackendErrorEnvelope(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":4001,"message":"会话已过期","data":null}`))
	})

	_, err := client.SendMessage(context.Background(), "sess-1", "问题")
	if err == nil || !strings.Contains(err.Error(), "会话已过期") {
		t.Fatalf("expected envelope error message, got %v", err)
	}
}

func TestBackendHTTPError(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"code":502,"message":"upstream down"}`))
	})

	_, err := client.SendMessage(context.Background(), "sess-1", "问题")
	if err == nil || !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("expected http error message, got %v", err)
	}
}

func TestGetConversationHistory(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/sess-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"code":0,"message":"ok","data":[{"id":"user-1","role":"user","content":"旧问题","timestamp":1}]}`))
	})

	msgs, err := client.GetConversationHistory(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetConversationHistory error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "旧问题" {
		t.Errorf("unexpected history: %+v", msgs)
	}
}

func TestSaveConversation(t *testing.T) {
	var saved struct {
		SessionID string         `json:"sessionId"`
		History   []chat.Message `json:"history"`
	}
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/save" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&saved)
		w.Write([]byte(`{"code":0,"message":"ok","data":null}`))
	})

	history := []chat.Message{{ID: "user-1", Role: chat.RoleUser, Content: "问题", Timestamp: 1}}
	if err := client.SaveConversation(context.Background(), "sess-1", history); err != nil {
		t.Fatalf("SaveConversation error: %v", err)
	}
	if saved.SessionID != "sess-1" || len(saved.History) != 1 {
		t.Errorf("unexpected saved payload: %+v", saved)
	}
}
