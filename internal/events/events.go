// Package events carries domain notifications from committed operations to subscribers.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event names.
const (
	ProjectLedgerUpdated = "project-ledger-updated"
	VendorLedgerUpdated  = "vendor-ledger-updated"
	InvoiceAdded         = "invoice-added"
	InvoiceUpdated       = "invoice-updated"
	ClientAdded          = "client-added"
	ClientDeleted        = "client-deleted"
	VendorAdded          = "vendor-added"
	VendorDeleted        = "vendor-deleted"
	ProjectAdded         = "project-added"
	ProjectDeleted       = "project-deleted"
	LaborAdded           = "labor-added"
	LaborDeleted         = "labor-deleted"
	ExpenseRecorded      = "expense-recorded"
	ExpenseDeleted       = "expense-deleted"
	PaymentRecorded      = "payment-recorded"
	PaymentDeleted       = "payment-deleted"
	LaborPaymentRecorded = "labor-payment-recorded"
)

// Broadcast topics.
const (
	TopicClients  = "clients"
	TopicVendors  = "vendors"
	TopicProjects = "projects"
	TopicLabor    = "labor"
	TopicInvoices = "invoices"
	TopicCashbook = "cashbook"
)

// ProjectTopic is the per-project topic.
func ProjectTopic(id int64) string { return fmt.Sprintf("project-%d", id) }

// VendorTopic is the per-vendor topic.
func VendorTopic(id int64) string { return fmt.Sprintf("vendor-%d", id) }

// InvoiceTopic is the per-invoice topic.
func InvoiceTopic(id int64) string { return fmt.Sprintf("invoice-%d", id) }

// Notification is a (topic, payload) pair emitted after a mutation commits.
type Notification struct {
	ID      string    `json:"id"`
	Topic   string    `json:"topic"`
	Event   string    `json:"event"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// New stamps a notification with an id and time.
func New(topic, event string, payload any) Notification {
	return Notification{
		ID:      uuid.NewString(),
		Topic:   topic,
		Event:   event,
		Payload: payload,
		At:      time.Now().UTC(),
	}
}

// Publisher delivers notifications to an external pub/sub collaborator.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// PublishAll sends every notification and joins the failures.
func PublishAll(ctx context.Context, p Publisher, ns ...Notification) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, n := range ns {
		if err := p.Publish(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("publish %s/%s: %w", n.Topic, n.Event, err))
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Notification) error { return nil }

// Fanout publishes to every publisher in order and joins their errors.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, n Notification) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of the recorded notifications.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// Events returns "topic/event" strings in publish order.
func (r *Recorder) Events() []string {
	sent := r.Sent()
	out := make([]string, 0, len(sent))
	for _, n := range sent {
		out = append(out, n.Topic+"/"+n.Event)
	}
	return out
}
