// Package events publishes domain changes to a RabbitMQ topic exchange.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Routing keys.
const (
	TemplateCreated = "template.created"
	TemplateUpdated = "template.updated"
	TemplateDeleted = "template.deleted"
	RecordCreated   = "record.created"
	RecordUpdated   = "record.updated"
	RecordDeleted   = "record.deleted"
	FileCreated     = "file.created"
	FileUpdated     = "file.updated"
	FileDeleted     = "file.deleted"
)

// Event is the message body published for every change.
type Event struct {
	ID           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	DoctorID     uuid.UUID `json:"doctorId"`
	ResourceType string    `json:"resourceType"`
	ResourceID   uuid.UUID `json:"resourceId"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// New builds an event stamped with a fresh id and the current time.
func New(routingKey string, doctorID uuid.UUID, resourceType string, resourceID uuid.UUID) Event {
	return Event{
		ID:           uuid.New(),
		Type:         routingKey,
		DoctorID:     doctorID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OccurredAt:   time.Now().UTC(),
	}
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
