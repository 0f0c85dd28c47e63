package services

import (
	"context"
	"encoding/json"

	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// mustJSON marshals payloads built from known types; a marshal failure here
// is a programming error.
func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

// auditEntry accumulates the optional fields of one audit row.
type auditEntry struct {
	caseID    string
	actor     models.ActorType
	userID    string
	roomID    string
	eventID   string
	eventType string
	payload   any
}

func systemAudit(caseID, eventType string) auditEntry {
	return auditEntry{caseID: caseID, actor: models.ActorSystem, eventType: eventType}
}

func botAudit(caseID, eventType string) auditEntry {
	return auditEntry{caseID: caseID, actor: models.ActorBot, eventType: eventType}
}

func humanAudit(caseID, userID, eventType string) auditEntry {
	return auditEntry{caseID: caseID, actor: models.ActorHuman, userID: userID, eventType: eventType}
}

func (a auditEntry) withRoom(roomID, eventID string) auditEntry {
	a.roomID = roomID
	a.eventID = eventID
	return a
}

func (a auditEntry) withPayload(payload any) auditEntry {
	a.payload = payload
	return a
}

// append writes the audit row. Audit failures are real errors: the trail is
// part of the contract, not best-effort logging.
func (a auditEntry) append(ctx context.Context, events *repo.EventRepo) error {
	ev := &models.CaseEvent{
		CaseID:    a.caseID,
		ActorType: a.actor,
		EventType: a.eventType,
	}
	if a.userID != "" {
		ev.ActorUserID = &a.userID
	}
	if a.roomID != "" {
		ev.RoomID = &a.roomID
	}
	if a.eventID != "" {
		ev.MatrixEventID = &a.eventID
	}
	if a.payload != nil {
		raw, err := json.Marshal(a.payload)
		if err == nil {
			ev.Payload = raw
		}
	}
	return events.Append(ctx, ev)
}
