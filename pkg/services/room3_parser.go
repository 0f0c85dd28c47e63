package services

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opentriagem/triagem/pkg/models"
)

// Appointments are scheduled in fixed Brasilia time.
var locationBRT = time.FixedZone("BRT", -3*60*60)

const datetimeLayout = "02-01-2006 15:04"

var bareDatetimePattern = regexp.MustCompile(`^\d{2}-\d{2}-\d{4} \d{2}:\d{2}( BRT)?$`)

// Room-3 parse failure reasons.
const (
	Room3InvalidStatus   = "invalid_status"
	Room3MissingDatetime = "missing_datetime"
	Room3InvalidDatetime = "invalid_datetime"
	Room3MissingLocation = "missing_location"
	Room3MissingReason   = "missing_reason"
	Room3MissingCase     = "missing_case_line"
	Room3InvalidCase     = "invalid_case_line"
)

// Room3ParseError carries the machine reason a scheduler reply was rejected.
type Room3ParseError struct {
	Reason string
}

func (e *Room3ParseError) Error() string {
	return "room3 reply rejected: " + e.Reason
}

// IsCaseLineError reports whether the failure concerns the caso line itself,
// which gets its own audit event.
func (e *Room3ParseError) IsCaseLineError() bool {
	return e.Reason == Room3MissingCase || e.Reason == Room3InvalidCase
}

// Room3Form is the parsed scheduler reply.
type Room3Form struct {
	CaseID            string
	AppointmentStatus string
	Datetime          *time.Time
	Location          string
	Instructions      string
	Reason            string
}

// ParseRoom3Reply parses the lenient scheduler form. Keys accept Portuguese
// and English synonyms; a bare `DD-MM-YYYY HH:MM BRT` line counts as the
// datetime; status defaults to confirmado when a valid datetime is present,
// negado must be explicit. Confirmation requires datetime and location,
// denial requires a motivo.
func ParseRoom3Reply(body string) (*Room3Form, error) {
	form := &Room3Form{}
	explicitStatus := ""
	seenCase := false

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if bareDatetimePattern.MatchString(trimmed) {
			dt, err := parseBRTDatetime(trimmed)
			if err != nil {
				return nil, &Room3ParseError{Reason: Room3InvalidDatetime}
			}
			form.Datetime = dt
			continue
		}

		key, value, ok := splitFormLine(line)
		if !ok {
			continue
		}
		switch key {
		case "status":
			switch strings.ToLower(value) {
			case "confirmado", "confirmed":
				explicitStatus = models.AppointmentConfirmed
			case "negado", "denied":
				explicitStatus = models.AppointmentDenied
			default:
				return nil, &Room3ParseError{Reason: Room3InvalidStatus}
			}
		case "data_hora", "datetime":
			dt, err := parseBRTDatetime(value)
			if err != nil {
				return nil, &Room3ParseError{Reason: Room3InvalidDatetime}
			}
			form.Datetime = dt
		case "local", "location":
			form.Location = value
		case "instrucoes", "instructions":
			form.Instructions = value
		case "motivo", "reason":
			form.Reason = value
		case "caso", "case":
			if _, err := uuid.Parse(value); err != nil {
				return nil, &Room3ParseError{Reason: Room3InvalidCase}
			}
			form.CaseID = value
			seenCase = true
		}
	}

	if !seenCase {
		return nil, &Room3ParseError{Reason: Room3MissingCase}
	}

	switch explicitStatus {
	case models.AppointmentDenied:
		form.AppointmentStatus = models.AppointmentDenied
		if strings.TrimSpace(form.Reason) == "" {
			return nil, &Room3ParseError{Reason: Room3MissingReason}
		}
	default:
		if form.Datetime == nil {
			return nil, &Room3ParseError{Reason: Room3MissingDatetime}
		}
		if strings.TrimSpace(form.Location) == "" {
			return nil, &Room3ParseError{Reason: Room3MissingLocation}
		}
		form.AppointmentStatus = models.AppointmentConfirmed
	}
	return form, nil
}

func parseBRTDatetime(value string) (*time.Time, error) {
	value = strings.TrimSuffix(strings.TrimSpace(value), " BRT")
	t, err := time.ParseInLocation(datetimeLayout, value, locationBRT)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
