package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/apperr"
	"github.com/otcheredev/therapisttrack-records/internal/events"
	"github.com/otcheredev/therapisttrack-records/internal/lock"
	"github.com/otcheredev/therapisttrack-records/internal/metrics"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/otcheredev/therapisttrack-records/internal/repository"
	"github.com/rs/zerolog/log"
)

// Core holds what every service shares.
type Core struct {
	Store   repository.Store
	Locks   *lock.Keyed
	Events  events.Publisher
	Metrics *metrics.Collector
}

// NewCore fills in no-op collaborators where none are given.
func NewCore(store repository.Store, publisher events.Publisher, collector *metrics.Collector) *Core {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Core{
		Store:   store,
		Locks:   lock.NewKeyed(),
		Events:  publisher,
		Metrics: collector,
	}
}

// parseID reads a client supplied id. Anything that is not a UUID cannot name a stored entity.
func parseID(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// internal wraps an unexpected store failure.
func internal(err error, action string) error {
	return apperr.Wrap(apperr.Internal, fmt.Errorf("failed to %s: %w", action, err))
}

// lookup maps a missing row to kind and anything else to an internal error.
func lookup(err error, kind apperr.Kind, action string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(kind)
	}
	return internal(err, action)
}

// resolveDoctor checks that ref names an active doctor.
func (c *Core) resolveDoctor(ctx context.Context, store repository.Store, ref string) (uuid.UUID, error) {
	id, ok := parseID(ref)
	if !ok {
		return uuid.Nil, apperr.New(apperr.DoctorNotFound)
	}
	if _, err := store.GetActiveDoctor(ctx, id); err != nil {
		return uuid.Nil, lookup(err, apperr.DoctorNotFound, "get doctor")
	}
	return id, nil
}

// checkTemplate applies the kind and ownership rules to a loaded template.
func checkTemplate(t *models.Template, kind models.TemplateKind, doctorID uuid.UUID) error {
	if t.Kind != kind {
		return apperr.New(apperr.TemplateNotFound)
	}
	if t.DoctorID != doctorID {
		return apperr.New(apperr.DoctorIsNotOwner)
	}
	return nil
}

// rowLock is how loadTemplate holds the template row inside a transaction.
type rowLock int

const (
	// lockShared keeps the template fixed while a record or file is validated against it.
	lockShared rowLock = iota
	// lockExclusive is for changing the template itself.
	lockExclusive
)

// lockedTemplate reads a template row under the given lock.
func lockedTemplate(ctx context.Context, store repository.Store, templateID uuid.UUID, mode rowLock) (*models.Template, error) {
	if mode == lockExclusive {
		return store.LockTemplate(ctx, templateID)
	}
	return store.LockTemplateShared(ctx, templateID)
}

// loadTemplate reads a template of kind owned by doctorID, locked until the transaction ends.
func loadTemplate(ctx context.Context, store repository.Store, kind models.TemplateKind, doctorID, templateID uuid.UUID, mode rowLock) (*models.Template, error) {
	t, err := lockedTemplate(ctx, store, templateID, mode)
	if err != nil {
		return nil, lookup(err, apperr.TemplateNotFound, "get template")
	}
	if err := checkTemplate(t, kind, doctorID); err != nil {
		return nil, err
	}
	return t, nil
}

var routingKeys = map[string]map[string]string{
	models.ResourcePatientTemplate: {models.ActionCreate: events.TemplateCreated, models.ActionUpdate: events.TemplateUpdated, models.ActionDelete: events.TemplateDeleted},
	models.ResourceFileTemplate:    {models.ActionCreate: events.TemplateCreated, models.ActionUpdate: events.TemplateUpdated, models.ActionDelete: events.TemplateDeleted},
	models.ResourceRecord:          {models.ActionCreate: events.RecordCreated, models.ActionUpdate: events.RecordUpdated, models.ActionDelete: events.RecordDeleted},
	models.ResourceFile:            {models.ActionCreate: events.FileCreated, models.ActionUpdate: events.FileUpdated, models.ActionDelete: events.FileDeleted},
}

// written records a committed mutation in the audit log, the event stream and the metrics.
// None of these can fail the request any more.
func (c *Core) written(ctx context.Context, action, resourceType string, doctorID, resourceID uuid.UUID) {
	entry := &models.AuditLog{
		DoctorID:     doctorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    middleware.GetReqID(ctx),
		Status:       "success",
	}
	if err := c.Store.CreateAuditLog(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", action).Str("resource_id", resourceID.String()).Msg("Failed to write audit log")
	}

	if key, ok := routingKeys[resourceType][action]; ok {
		if err := c.Events.Publish(ctx, events.New(key, doctorID, resourceType, resourceID)); err != nil {
			log.Warn().Err(err).Str("routing_key", key).Msg("Failed to publish event")
		}
	}

	c.Metrics.EntityWritten(resourceType, action)
}
