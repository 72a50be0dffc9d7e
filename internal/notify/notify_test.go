package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSlackNotifier_Send(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Task run finished",
		Message: "2 completed",
		Type:    NotifySuccess,
		TaskID:  "task-001",
	})

	if err != nil {
		t.Errorf("Send failed: %v", err)
	}

	var msg SlackMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if msg.Text != "Task run finished" {
		t.Errorf("text = %q", msg.Text)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Title != "task-001" {
		t.Errorf("attachments = %+v", msg.Attachments)
	}
}

func TestSlackNotifier_DisabledWithoutURL(t *testing.T) {
	notifier := NewSlackNotifier("")
	if err := notifier.Send(Notification{Title: "ignored"}); err != nil {
		t.Errorf("empty webhook should be a no-op, got %v", err)
	}
}

func TestSlackNotifier_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{Title: "fails"})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2)
	multi.Send(Notification{Title: "Test"})

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

func TestRunSummary(t *testing.T) {
	n := RunSummary(3, 2, 1, 0)
	if n.Type != NotifyWarning {
		t.Errorf("run with failures should be a warning, got %v", n.Type)
	}
	if !strings.Contains(n.Message, "2 completed") || !strings.Contains(n.Message, "1 failed") {
		t.Errorf("message = %q", n.Message)
	}

	n = RunSummary(2, 2, 0, 0)
	if n.Type != NotifySuccess {
		t.Errorf("clean run should be a success, got %v", n.Type)
	}
}

func TestQuotaPause(t *testing.T) {
	n := QuotaPause("task-007", "approaching token limit")
	if n.Type != NotifyWarning || n.TaskID != "task-007" {
		t.Errorf("notification = %+v", n)
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}
