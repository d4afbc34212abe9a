// Package types defines cache data structures for multi-tenant split tests.
package types

import (
	"sync"
	"time"
)

// Fixed keys for the five active set parts.
const (
	KeyExperimentActiveUUIDs       = "split_tests:experiment_active_uuids"
	KeyExperimentUUIDSlugMap       = "split_tests:experiment_uuid_slug_map"
	KeyCohortActiveUUIDs           = "split_tests:cohort_active_uuids"
	KeyCohortUUIDSlugMap           = "split_tests:cohort_uuid_slug_map"
	KeyCohortUUIDExperimentUUIDMap = "split_tests:cohort_uuid_experiment_uuid_map"
)

// ActiveSetKeys lists every active set key.
var ActiveSetKeys = []string{
	KeyExperimentActiveUUIDs,
	KeyExperimentUUIDSlugMap,
	KeyCohortActiveUUIDs,
	KeyCohortUUIDSlugMap,
	KeyCohortUUIDExperimentUUIDMap,
}

// TenantActiveSetCache holds encoded active set parts for a single tenant
type TenantActiveSetCache struct {
	Parts       map[string][]byte // key -> JSON blob
	LastUpdated time.Time
	Mu          sync.RWMutex
}

// TenantSessionCache holds visitor sessions for a single tenant
type TenantSessionCache struct {
	Sessions map[string]*SessionData // sessionId -> data
	Mu       sync.RWMutex
}

// SessionData is a visitor session. Values maps a session key to a string map;
// the split test assignment map lives under the configured session key.
type SessionData struct {
	SessionID    string                       `json:"sessionId"`
	Values       map[string]map[string]string `json:"values"`
	CreatedAt    time.Time                    `json:"createdAt"`
	LastActivity time.Time                    `json:"lastActivity"`
}

// NewSessionData creates an empty session.
func NewSessionData(sessionID string) *SessionData {
	now := time.Now().UTC()
	return &SessionData{
		SessionID:    sessionID,
		Values:       make(map[string]map[string]string),
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Clone returns a deep copy.
func (s *SessionData) Clone() *SessionData {
	if s == nil {
		return nil
	}
	clone := &SessionData{
		SessionID:    s.SessionID,
		Values:       make(map[string]map[string]string, len(s.Values)),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
	}
	for key, values := range s.Values {
		if values == nil {
			clone.Values[key] = nil
			continue
		}
		inner := make(map[string]string, len(values))
		for k, v := range values {
			inner[k] = v
		}
		clone.Values[key] = inner
	}
	return clone
}
