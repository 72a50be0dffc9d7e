// Package notify delivers scheduler events to desktop and Slack.
package notify

import "fmt"

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	TaskID  string // Optional task reference
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// RunSummary builds a notification for a finished scheduler run.
func RunSummary(processed, completed, failed, paused int) Notification {
	t := NotifySuccess
	if failed > 0 {
		t = NotifyWarning
	}
	return Notification{
		Title:   "Task run finished",
		Message: fmt.Sprintf("%d processed: %d completed, %d failed, %d paused", processed, completed, failed, paused),
		Type:    t,
	}
}

// QuotaPause builds a notification for a run halted on quota exhaustion.
func QuotaPause(taskID, reason string) Notification {
	return Notification{
		Title:   "Run paused on token limit",
		Message: reason,
		Type:    NotifyWarning,
		TaskID:  taskID,
	}
}
