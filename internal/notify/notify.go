// Package notify delivers task run summaries to people: by e-mail and,
// optionally, mirrored to a Slack channel.
package notify

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Address is a sender identity
type Address struct {
	Email string
	Name  string
}

// Notification represents a notification to be sent
type Notification struct {
	Title   string // mail subject
	Message string // plain text body
	Type    NotificationType

	TaskName  string
	TaskID    string
	StoreCode string
	Summary   string // summary stream the body was taken from

	From Address
	To   []string
	Cc   []string
	Bcc  []string
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers concurrently and returns the
// first error
func (m *MultiNotifier) Send(ctx context.Context, n Notification) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, notifier := range m.notifiers {
		g.Go(func() error {
			return notifier.Send(ctx, n)
		})
	}
	return g.Wait()
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(context.Context, Notification) error { return nil }
