package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go-docrequest/internal/event"
	"go-docrequest/internal/model"
	"go-docrequest/pkg/apierror"
)

const auditWriteTimeout = 5 * time.Second

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

// AuditService records every domain event published on the bus and serves
// the audit trail to admins.
type AuditService struct {
	store AuditStore
	bus   event.Bus

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewAuditService(store AuditStore, bus event.Bus) *AuditService {
	return &AuditService{store: store, bus: bus, stop: make(chan struct{})}
}

func (s *AuditService) Start() {
	if s.bus == nil {
		return
	}
	events, unsubscribe := s.bus.Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsubscribe()

		for {
			select {
			case <-s.stop:
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				s.record(e)
			}
		}
	}()
}

func (s *AuditService) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *AuditService) record(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	if err := s.store.Log(ctx, EntryFor(e)); err != nil {
		slog.Warn("audit entry not recorded", "event_type", e.Type, "event_id", e.ID, "error", err)
	}
}

// EntryFor maps an event to its audit row.
func EntryFor(e event.Event) model.AuditEntry {
	entry := model.AuditEntry{
		Action:     string(e.Type),
		ActorKind:  e.ActorKind,
		ActorID:    e.ActorID,
		OccurredAt: e.Timestamp,
		Detail:     map[string]any{"event_id": e.ID},
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	if p, ok := e.Payload.(event.RequestPayload); ok {
		entry.Resource = "request:" + p.RequestID
		entry.Detail["owner_id"] = p.OwnerID
		if p.Status != "" {
			entry.Detail["status"] = p.Status
		}
		if p.PreviousStatus != "" {
			entry.Detail["previous_status"] = p.PreviousStatus
		}
		if p.DocumentID != 0 {
			entry.Detail["document_id"] = p.DocumentID
		}
		if p.FieldName != "" {
			entry.Detail["field_name"] = p.FieldName
		}
	}

	return entry
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	from, err := parseOptionalAuditTime(query.From)
	if err != nil {
		return nil, model.Meta{}, apierror.New("BAD_REQUEST", "invalid 'from' datetime format", query.From, http.StatusBadRequest)
	}
	to, err := parseOptionalAuditTime(query.To)
	if err != nil {
		return nil, model.Meta{}, apierror.New("BAD_REQUEST", "invalid 'to' datetime format", query.To, http.StatusBadRequest)
	}

	query.From, query.To = "", ""
	if !from.IsZero() {
		query.From = from.Format(time.RFC3339Nano)
	}
	if !to.IsZero() {
		query.To = to.Format(time.RFC3339Nano)
	}

	return s.store.Query(ctx, query)
}

func parseOptionalAuditTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}

	value, err := time.Parse(time.RFC3339Nano, trimmed)
	if err != nil {
		return time.Time{}, err
	}
	return value.UTC(), nil
}
