package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/realtime"
)

func TestEventStreamDeliversUserMessages(t *testing.T) {
	stack := newTestStack(t)
	httpServer := httptest.NewServer(stack.handler)
	t.Cleanup(httpServer.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, httpServer.URL+"/events/stream", http.NoBody)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Authorization", testBearerPrefix+"ben")

	response, err := httpServer.Client().Do(request)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", response.StatusCode)
	}
	if contentType := response.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "text/event-stream") {
		t.Fatalf("unexpected content type %q", contentType)
	}

	reader := bufio.NewReader(response.Body)
	readEvent(t, reader, realtime.EventHeartbeat)

	stack.dispatcher.Publish(realtime.Message{UserID: "ana", EventType: realtime.EventNotification, Text: "not for ben"})
	stack.dispatcher.Publish(realtime.Message{
		UserID:    "ben",
		EventType: realtime.EventBarterChanged,
		SubjectID: "request-1",
		Text:      "Your barter request was accepted!",
		Timestamp: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	})

	data := readEvent(t, reader, realtime.EventBarterChanged)
	if strings.Contains(data, "not for ben") {
		t.Fatalf("received another user's message: %s", data)
	}
	if !strings.Contains(data, `"subject_id":"request-1"`) || !strings.Contains(data, "accepted") {
		t.Fatalf("unexpected event payload %s", data)
	}
}

func TestEventStreamRequiresSession(t *testing.T) {
	stack := newTestStack(t)
	recorder := stack.do(t, http.MethodGet, "/events/stream", "", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

// readEvent reads lines until an event named want arrives and returns its data
// line.
func readEvent(t *testing.T, reader *bufio.Reader, want string) string {
	t.Helper()
	current := ""
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended before %q event: %v", want, err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "event:"):
			current = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:") && current == want:
			return strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}
