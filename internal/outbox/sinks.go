package outbox

import (
	"context"
	"time"

	"github.com/tendant/simple-idm-access/pkg/domain"
)

// AuditSink stores audit events.
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}

// PasswordChangedSender delivers password change notices.
type PasswordChangedSender interface {
	SendPasswordChanged(ctx context.Context, notice domain.PasswordChangedNotice) error
}

// AuditRecorder hands audit events to a sink through the dispatcher.
type AuditRecorder struct {
	d    *Dispatcher
	sink AuditSink
}

// NewAuditRecorder creates an AuditRecorder.
func NewAuditRecorder(d *Dispatcher, sink AuditSink) *AuditRecorder {
	return &AuditRecorder{d: d, sink: sink}
}

// Record queues event. The returned error only reports queueing failures.
func (r *AuditRecorder) Record(ctx context.Context, event domain.AuditEvent) error {
	return r.d.Submit(ctx, Task{
		Name: "audit." + string(event.Action),
		Run: func(ctx context.Context) error {
			return r.sink.Record(ctx, event)
		},
	})
}

// Notifier hands password change notices to a sender through the
// dispatcher.
type Notifier struct {
	d      *Dispatcher
	sender PasswordChangedSender
	now    func() time.Time
}

// NewNotifier creates a Notifier.
func NewNotifier(d *Dispatcher, sender PasswordChangedSender) *Notifier {
	return &Notifier{
		d:      d,
		sender: sender,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NotifyPasswordChanged queues a password change notice.
func (n *Notifier) NotifyPasswordChanged(ctx context.Context, email, name, changedBy string) error {
	notice := domain.PasswordChangedNotice{
		Email:     email,
		Name:      name,
		ChangedBy: changedBy,
		At:        n.now(),
	}
	return n.d.Submit(ctx, Task{
		Name: "notify.password_changed",
		Run: func(ctx context.Context) error {
			return n.sender.SendPasswordChanged(ctx, notice)
		},
	})
}
