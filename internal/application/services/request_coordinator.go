package services

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/types"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
	"github.com/AtRiskMedia/splittest-go/pkg/config"
)

// Phase tracks how far a request has progressed through split test handling.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseSnapshotLoaded
	PhaseSessionReconciled
	PhaseCookiesSynced
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseSnapshotLoaded:
		return "snapshot_loaded"
	case PhaseSessionReconciled:
		return "session_reconciled"
	case PhaseCookiesSynced:
		return "cookies_synced"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// RequestState is the per-request split test state. It is owned by one
// request and never shared.
type RequestState struct {
	Phase          Phase
	User           splittest.User
	Session        *types.SessionData
	InboundCookies []*http.Cookie
	Snapshot       *splittest.ActiveSnapshot
	SlugMap        map[string]string
}

// NewRequestState starts a request with the given session and inbound cookies.
func NewRequestState(user splittest.User, session *types.SessionData, cookies []*http.Cookie) *RequestState {
	if user == nil {
		user = splittest.Anonymous{}
	}
	return &RequestState{
		Phase:          PhaseStart,
		User:           user,
		Session:        session,
		InboundCookies: cookies,
		SlugMap:        map[string]string{},
	}
}

// Assignments returns the session's experiment to cohort map, or nil when the
// session key is absent.
func (st *RequestState) Assignments(sessionKey string) map[string]string {
	if st.Session == nil {
		return nil
	}
	return st.Session.Values[sessionKey]
}

func (st *RequestState) cookie(name string) (string, bool) {
	for _, c := range st.InboundCookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// RequestCoordinator runs the per-request reconcile of session, cookies and
// assignments against the active set.
type RequestCoordinator struct {
	activeSet *ActiveSetService
	assigner  *AssignmentService
	logger    *logging.ChanneledLogger
}

// NewRequestCoordinator wires the coordinator.
func NewRequestCoordinator(activeSet *ActiveSetService, assigner *AssignmentService, logger *logging.ChanneledLogger) *RequestCoordinator {
	return &RequestCoordinator{activeSet: activeSet, assigner: assigner, logger: logger}
}

// LoadSnapshot reads the five active set parts into the state.
func (rc *RequestCoordinator) LoadSnapshot(ctx context.Context, tenantCtx *tenant.Context, state *RequestState) error {
	snapshot, err := rc.activeSet.Snapshot(ctx, tenantCtx)
	if err != nil {
		return fmt.Errorf("failed to load active set: %w", err)
	}
	state.Snapshot = snapshot
	state.Phase = PhaseSnapshotLoaded
	return nil
}

// Reconcile prunes inactive experiments from the session, fills missing
// assignments from cookies or the assigner and derives the slug map.
func (rc *RequestCoordinator) Reconcile(ctx context.Context, tenantCtx *tenant.Context, state *RequestState) error {
	if state.Phase < PhaseSnapshotLoaded {
		if err := rc.LoadSnapshot(ctx, tenantCtx, state); err != nil {
			return err
		}
	}
	settings := tenantCtx.SplitTestSettings()
	snapshot := state.Snapshot

	if state.Session == nil {
		return fmt.Errorf("reconcile requires a session")
	}
	if state.Session.Values == nil {
		state.Session.Values = make(map[string]map[string]string)
	}
	assignments := state.Session.Values[settings.SessionKey]
	if assignments == nil {
		assignments = map[string]string{}
		state.Session.Values[settings.SessionKey] = assignments
	}

	for experimentUUID := range assignments {
		if !snapshot.ExperimentActiveUUIDs.Has(experimentUUID) {
			delete(assignments, experimentUUID)
		}
	}

	for _, experimentUUID := range snapshot.ExperimentActiveUUIDs.Sorted() {
		if current, ok := assignments[experimentUUID]; ok && snapshot.CohortActiveUUIDs.Has(current) {
			continue
		}

		if value, ok := state.cookie(settings.CookiePrefix + experimentUUID); ok && snapshot.CohortBelongsTo(value, experimentUUID) {
			assignments[experimentUUID] = value
			metrics.ObserveAssignment(tenantCtx.TenantID, metrics.OutcomeCookie)
			continue
		}

		cohort, err := rc.assigner.AssignOrFetch(ctx, tenantCtx, state.User, experimentUUID)
		if err != nil {
			return err
		}
		if cohort != nil {
			assignments[experimentUUID] = cohort.UUID
		}
	}

	state.SlugMap = snapshot.SlugMap(assignments)
	state.Phase = PhaseSessionReconciled
	return nil
}

// ResponseCookies returns the cookies to emit: a deletion for every inbound
// cookie carrying the prefix, then a set for every session entry. A deletion
// and a set for the same name keep that order so the set wins.
func (rc *RequestCoordinator) ResponseCookies(settings config.SplitTestSettings, state *RequestState) []*http.Cookie {
	if state.Session == nil {
		return nil
	}
	assignments, ok := state.Session.Values[settings.SessionKey]
	if !ok {
		return nil
	}

	var cookies []*http.Cookie
	for _, inbound := range state.InboundCookies {
		if !strings.HasPrefix(inbound.Name, settings.CookiePrefix) {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:     inbound.Name,
			Value:    "",
			Path:     "/",
			Domain:   settings.CookieDomain,
			MaxAge:   -1,
			SameSite: settings.CookieSameSite,
		})
	}

	experimentUUIDs := make([]string, 0, len(assignments))
	for experimentUUID := range assignments {
		experimentUUIDs = append(experimentUUIDs, experimentUUID)
	}
	sort.Strings(experimentUUIDs)

	for _, experimentUUID := range experimentUUIDs {
		cookies = append(cookies, &http.Cookie{
			Name:     settings.CookiePrefix + experimentUUID,
			Value:    assignments[experimentUUID],
			Path:     "/",
			Domain:   settings.CookieDomain,
			MaxAge:   settings.CookieMaxAge,
			Secure:   settings.CookieSecure,
			HttpOnly: settings.CookieHTTPOnly,
			SameSite: settings.CookieSameSite,
		})
	}

	state.Phase = PhaseCookiesSynced
	return cookies
}
