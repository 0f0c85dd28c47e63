package services

import (
	"strings"

	"github.com/google/uuid"

	"github.com/opentriagem/triagem/pkg/models"
)

// Room-2 reply rejection reasons, also embedded in the erro ack body.
const (
	RejectInvalidTemplate     = "invalid_template"
	RejectInvalidCase         = "invalid_case"
	RejectAuthorizationFailed = "authorization_failed"
)

// Room2ParseError carries the machine reason a reply form was rejected.
type Room2ParseError struct {
	Reason string
}

func (e *Room2ParseError) Error() string {
	return "room2 reply rejected: " + e.Reason
}

// Room2Form is the parsed doctor reply.
type Room2Form struct {
	CaseID      string
	Decision    string
	SupportFlag string
	Reason      string
}

// ParseRoom2Reply parses the strict plaintext decision form. Keys accept
// Portuguese and English synonyms with an optional space after the colon.
// A body carrying a forged doctor_user_id line is rejected outright: the
// sender identity always comes from the chat event, never from the body.
func ParseRoom2Reply(body string) (*Room2Form, error) {
	form := &Room2Form{SupportFlag: models.SupportNone}
	seenDecision := false
	seenCase := false

	for _, line := range strings.Split(body, "\n") {
		key, value, ok := splitFormLine(line)
		if !ok {
			continue
		}
		switch key {
		case "doctor_user_id":
			return nil, &Room2ParseError{Reason: RejectInvalidTemplate}
		case "decisao", "decision":
			switch strings.ToLower(value) {
			case "aceitar", "accept":
				form.Decision = models.DecisionAccept
			case "negar", "deny":
				form.Decision = models.DecisionDeny
			default:
				return nil, &Room2ParseError{Reason: RejectInvalidTemplate}
			}
			seenDecision = true
		case "suporte", "support_flag":
			switch strings.ToLower(value) {
			case "nenhum", "none":
				form.SupportFlag = models.SupportNone
			case "anestesista", "anesthesist":
				form.SupportFlag = models.SupportAnesthesist
			case "anestesista_uti", "anesthesist_icu":
				form.SupportFlag = models.SupportAnesthesistICU
			default:
				return nil, &Room2ParseError{Reason: RejectInvalidTemplate}
			}
		case "motivo", "reason":
			form.Reason = value
		case "caso", "case":
			if _, err := uuid.Parse(value); err != nil {
				return nil, &Room2ParseError{Reason: RejectInvalidCase}
			}
			form.CaseID = value
			seenCase = true
		}
	}

	if !seenDecision || !seenCase {
		return nil, &Room2ParseError{Reason: RejectInvalidTemplate}
	}
	return form, nil
}

// splitFormLine splits "key: value" tolerating an optional space after the
// colon. Lines without a colon are not form lines.
func splitFormLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(line[:idx]))
	value = strings.TrimSpace(line[idx+1:])
	return key, value, true
}
