package audit

import (
	"encoding/json"
	"time"

	"facegate/internal/core/models"
	"facegate/internal/db/repository"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Status tags for security-relevant decisions.
const (
	StatusAuthOK           = "auth_ok"
	StatusAuthFailed       = "auth_failed"
	StatusAuthBlocked      = "auth_blocked"
	StatusAuthWarn         = "auth_warn"
	StatusAccessDenied     = "access_denied"
	StatusEnrollOK         = "enroll_ok"
	StatusEnrollUpdate     = "enroll_update_level"
	StatusEnrollFailed     = "enroll_failed"
	StatusEnrollGateFace   = "enroll_gate_face"
	StatusEnrollGateFailed = "enroll_gate_failed"
	StatusAdminLoginOK     = "admin_login_ok"
	StatusAdminLoginFailed = "admin_login_failed"
	StatusAPIError         = "api_error"
	StatusNotFound         = "not_found"
	StatusLogout           = "logout"
)

// Publisher mirrors recorded events to an external sink (MQTT, SSE).
type Publisher interface {
	PublishEvent(event models.EventLog)
}

// Recorder is the write-only audit sink. Recording must never fail the
// calling operation: storage errors are logged and swallowed.
type Recorder struct {
	repo       repository.Repository
	publishers []Publisher
}

// NewRecorder creates a recorder writing to the given repository.
func NewRecorder(repo repository.Repository, publishers ...Publisher) *Recorder {
	return &Recorder{repo: repo, publishers: publishers}
}

// Score wraps a recognition distance for the optional event field.
func Score(v float64) *float64 {
	return &v
}

// Details is the structured context stored alongside a decision: bounding
// box, distance, resolved level, failure reason.
type Details map[string]any

// Record appends one decision to the audit trail and mirrors it to the
// configured publishers. Pass an empty userName or a nil score when the
// decision has none.
func (r *Recorder) Record(status, userName string, score *float64, note string) {
	r.RecordDetails(status, userName, score, note, nil)
}

// RecordDetails is Record with structured decision context attached as a
// JSON column. An unencodable details map is logged and dropped, never a
// reason to lose the event itself.
func (r *Recorder) RecordDetails(status, userName string, score *float64, note string, details Details) {
	event := models.EventLog{
		Timestamp: time.Now(),
		Status:    status,
		UserName:  userName,
		Score:     score,
		Note:      note,
	}

	if len(details) > 0 {
		if raw, err := json.Marshal(details); err != nil {
			log.WithError(err).Warnf("Failed to encode details for audit event %s", status)
		} else {
			event.Details = datatypes.JSON(raw)
		}
	}

	if r.repo != nil {
		if err := r.repo.AppendEvent(&event); err != nil {
			log.WithError(err).Warnf("Failed to persist audit event %s", status)
		}
	}

	for _, p := range r.publishers {
		p.PublishEvent(event)
	}
}
