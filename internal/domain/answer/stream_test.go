package answer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	platTesting "github.com/yisheng0/ai-interview/internal/platform/testing"
)

type streamRecorder struct {
	mu        sync.Mutex
	chunks    []string
	completes int
	errs      []error
	done      chan struct{}
	once      sync.Once
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{done: make(chan struct{})}
}

func (r *streamRecorder) onChunk(text string) {
	r.mu.Lock()
	r.chunks = append(r.chunks, text)
	r.mu.Unlock()
}

func (r *streamRecorder) onComplete() {
	r.mu.Lock()
	r.completes++
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *streamRecorder) onError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *streamRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream never reached a terminal state")
	}
}

func (r *streamRecorder) joined() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.chunks, "")
}

func openStream(t *testing.T, handler http.HandlerFunc) (*streamRecorder, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := platTesting.SetupTestLogger(t)
	s := NewStreamer(srv.URL, "test-token", logger)
	rec := newStreamRecorder()
	cancel := s.Open(context.Background(), "sess-1", "什么是索引", rec.onChunk, rec.onComplete, rec.onError)
	return rec, cancel
}

func TestStreamChunksAndComplete(t *testing.T) {
	rec, _ := openStream(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected auth header: %s", got)
		}
		fmt.Fprint(w, ": keepalive\n")
		fmt.Fprint(w, "\n")
		fmt.Fprint(w, "data: {\"content\":\"索引是\"}\n")
		fmt.Fprint(w, "data: {\"content\":\"一种数据结构\"}\n")
	})

	rec.wait(t)

	if got := rec.joined(); got != "索引是一种数据结构" {
		t.Errorf("unexpected concatenated chunks: %q", got)
	}
	if rec.completes != 1 || len(rec.errs) != 0 {
		t.Errorf("expected exactly one completion, got completes=%d errs=%d", rec.completes, len(rec.errs))
	}
}

func TestStreamFinishedStopsEarly(t *testing.T) {
	rec, _ := openStream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"content\":\"foo\",\"finished\":true}\n")
		// finished 之后的行必须被忽略
		fmt.Fprint(w, "data: {\"content\":\"bar\"}\n")
	})

	rec.wait(t)
	time.Sleep(100 * time.Millisecond)

	if got := rec.joined(); got != "foo" {
		t.Errorf("expected only pre-finish chunk, got %q", got)
	}
	if rec.completes != 1 {
		t.Errorf("expected exactly one completion, got %d", rec.completes)
	}
}

func TestStreamBareLineFallsBackToRawText(t *testing.T) {
	rec, _ := openStream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{\"content\":\"json行\"}\n")
		fmt.Fprint(w, "纯文本行\n")
	})

	rec.wait(t)

	if got := rec.joined(); got != "json行纯文本行" {
		t.Errorf("unexpected chunks: %q", got)
	}
}

func TestStreamHTTPErrorJSONMessage(t *testing.T) {
	rec, _ := openStream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message":"server error"}`)
	})

	rec.wait(t)

	if len(rec.errs) != 1 {
		t.Fatalf("expected one error, got %d", len(rec.errs))
	}
	if !strings.Contains(rec.errs[0].Error(), "server error") {
		t.Errorf("expected json message in error, got %v", rec.errs[0])
	}
	if rec.completes != 0 {
		t.Errorf("error and completion both fired")
	}
}

func TestStreamHTTPErrorTextFallback(t *testing.T) {
	rec, _ := openStream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream unavailable")
	})

	rec.wait(t)

	if len(rec.errs) != 1 || !strings.Contains(rec.errs[0].Error(), "upstream unavailable") {
		t.Fatalf("expected text body error, got %v", rec.errs)
	}
}

func TestStreamHTTPErrorStatusFallback(t *testing.T) {
	rec, _ := openStream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	rec.wait(t)

	if len(rec.errs) != 1 || !strings.Contains(rec.errs[0].Error(), "503") {
		t.Fatalf("expected status fallback error, got %v", rec.errs)
	}
}

func TestStreamCancelSilencesCallbacks(t *testing.T) {
	release := make(chan struct{})
	rec, cancel := openStream(t, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"content\":\"第一块\"}\n")
		flusher.Flush()
		<-release
		fmt.Fprint(w, "data: {\"content\":\"第二块\",\"finished\":true}\n")
	})

	// 等第一块到达后取消
	deadline := time.After(3 * time.Second)
	for rec.joined() == "" {
		select {
		case <-deadline:
			t.Fatal("first chunk never arrived")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	close(release)
	time.Sleep(200 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.chunks) != 1 || rec.completes != 0 || len(rec.errs) != 0 {
		t.Errorf("callbacks fired after cancel: chunks=%v completes=%d errs=%v",
			rec.chunks, rec.completes, rec.errs)
	}
}
