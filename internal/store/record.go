package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ashureev/symptom-intake/internal/domain"
)

// sessionRecord is the serialized form shared by the sqlite and redis backends.
type sessionRecord struct {
	ID         string                   `json:"id"`
	Phase      domain.Phase             `json:"phase"`
	Transcript []domain.Message         `json:"transcript"`
	Report     *domain.StructuredReport `json:"report,omitempty"`
	Version    int64                    `json:"version"`
	CreatedAt  int64                    `json:"created_at"`
	UpdatedAt  int64                    `json:"updated_at"`
	ExpiresAt  int64                    `json:"expires_at,omitempty"`
}

func toRecord(s *domain.Session) sessionRecord {
	rec := sessionRecord{
		ID:         s.ID,
		Phase:      s.Phase,
		Transcript: s.Transcript,
		Report:     s.Report,
		Version:    s.Version,
		CreatedAt:  s.CreatedAt.UnixMilli(),
		UpdatedAt:  s.UpdatedAt.UnixMilli(),
	}
	if rec.Transcript == nil {
		rec.Transcript = []domain.Message{}
	}
	if !s.ExpiresAt.IsZero() {
		rec.ExpiresAt = s.ExpiresAt.UnixMilli()
	}
	return rec
}

func (r sessionRecord) toSession() *domain.Session {
	s := &domain.Session{
		ID:         r.ID,
		Phase:      r.Phase,
		Transcript: r.Transcript,
		Report:     r.Report,
		Version:    r.Version,
		CreatedAt:  time.UnixMilli(r.CreatedAt),
		UpdatedAt:  time.UnixMilli(r.UpdatedAt),
	}
	if s.Transcript == nil {
		s.Transcript = []domain.Message{}
	}
	if r.ExpiresAt != 0 {
		s.ExpiresAt = time.UnixMilli(r.ExpiresAt)
	}
	return s
}

func marshalTranscript(t []domain.Message) (string, error) {
	if t == nil {
		t = []domain.Message{}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}
	return string(data), nil
}

func marshalReport(r *domain.StructuredReport) (interface{}, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return string(data), nil
}
