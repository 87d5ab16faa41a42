package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go-docrequest/internal/event"
	"go-docrequest/internal/metrics"
)

const sendTimeout = 5 * time.Second

type Dispatcher struct {
	bus     event.Bus
	sender  Sender
	metrics *metrics.Registry

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewDispatcher(bus event.Bus, sender Sender, m *metrics.Registry) *Dispatcher {
	return &Dispatcher{bus: bus, sender: sender, metrics: m, stop: make(chan struct{})}
}

// Start subscribes to the bus and delivers in a background goroutine until
// Stop is called.
func (d *Dispatcher) Start() {
	events, unsubscribe := d.bus.Subscribe()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer unsubscribe()

		for {
			select {
			case <-d.stop:
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				d.handle(e)
			}
		}
	}()
}

func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
}

func (d *Dispatcher) handle(e event.Event) {
	n, ok := Compose(e)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, n); err != nil {
		d.metrics.IncNotification(false)
		slog.Warn("notification not delivered",
			"kind", n.Kind, "request_id", n.RequestID, "recipient", n.Recipient, "error", err)
		return
	}
	d.metrics.IncNotification(true)
}

// Compose turns an event into the notification for the request owner.
// Events without a request payload or owner produce nothing.
func Compose(e event.Event) (Notification, bool) {
	p, ok := e.Payload.(event.RequestPayload)
	if !ok || p.OwnerID == "" {
		return Notification{}, false
	}

	n := Notification{
		Recipient:  p.OwnerID,
		Kind:       string(e.Type),
		RequestID:  p.RequestID,
		OccurredAt: e.Timestamp,
	}

	switch e.Type {
	case event.TypeRequestCreated:
		n.Subject = "Request received"
		n.Message = fmt.Sprintf("Your request %s was received and is pending review.", p.RequestID)
		if len(p.Warnings) > 0 {
			n.Message += " Some files were ignored: " + strings.Join(p.Warnings, "; ")
		}
	case event.TypeRequestStatusChanged:
		n.Subject = "Request status updated"
		n.Message = fmt.Sprintf("Your request %s is now %s.", p.RequestID, humanStatus(p.Status))
	case event.TypeNoteAdded:
		n.Subject = "Action needed on your request"
		n.Message = fmt.Sprintf("Staff left a note on %s for request %s.", fieldOrRequest(p.FieldName), p.RequestID)
	case event.TypeRequestDeleted:
		n.Subject = "Request removed"
		n.Message = fmt.Sprintf("Your request %s was removed.", p.RequestID)
	case event.TypeDocumentVerified:
		n.Subject = "Document verified"
		n.Message = fmt.Sprintf("A document for request %s was verified.", p.RequestID)
	default:
		return Notification{}, false
	}

	return n, true
}

func humanStatus(status string) string {
	return strings.ReplaceAll(status, "_", " ")
}

func fieldOrRequest(field string) string {
	if field == "" {
		return "your submission"
	}
	return strings.ReplaceAll(field, "_", " ")
}
