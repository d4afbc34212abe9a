package cleanup

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/manager"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/types"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTenants struct {
	ids []string
	err error
}

func (s staticTenants) ActiveTenantIDs() ([]string, error) { return s.ids, s.err }

type countingPools struct{ calls int }

func (p *countingPools) CleanupStaleConnections(time.Duration) int {
	p.calls++
	return 0
}

func TestRunOncePurgesIdleSessions(t *testing.T) {
	cache := manager.NewMemoryManager(nil)
	cache.InitializeTenant("cleanup-site")
	cache.SetSession("cleanup-site", types.NewSessionData("keep"))

	pools := &countingPools{}
	worker := NewWorker(cache, staticTenants{ids: []string{"cleanup-site"}}, pools,
		&Config{CleanupInterval: time.Minute, SessionTTL: 0}, logging.NewNopLogger())

	before := testutil.ToFloat64(metrics.SessionsExpiredTotal.WithLabelValues("cleanup-site"))
	time.Sleep(time.Millisecond)
	purged := worker.RunOnce(context.Background())

	assert.Equal(t, 1, purged)
	assert.Equal(t, 0, cache.SessionCount("cleanup-site"))
	assert.Equal(t, 1, pools.calls)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SessionsExpiredTotal.WithLabelValues("cleanup-site")))
}

func TestRunOnceKeepsFreshSessions(t *testing.T) {
	cache := manager.NewMemoryManager(nil)
	cache.SetSession("fresh-site", types.NewSessionData("s1"))

	worker := NewWorker(cache, staticTenants{ids: []string{"fresh-site"}}, nil,
		&Config{CleanupInterval: time.Minute, SessionTTL: time.Hour}, logging.NewNopLogger())

	assert.Zero(t, worker.RunOnce(context.Background()))
	assert.Equal(t, 1, cache.SessionCount("fresh-site"))
}

func TestRunOnceTenantListError(t *testing.T) {
	worker := NewWorker(manager.NewMemoryManager(nil), staticTenants{err: errors.New("registry missing")}, nil,
		&Config{CleanupInterval: time.Minute}, logging.NewNopLogger())
	assert.Zero(t, worker.RunOnce(context.Background()))
}

func TestVerboseReport(t *testing.T) {
	cache := manager.NewMemoryManager(nil)
	require.NoError(t, cache.SetActiveSetPart("report-site", types.KeyExperimentActiveUUIDs, []byte(`[]`)))

	var out bytes.Buffer
	worker := NewWorker(cache, staticTenants{ids: []string{"report-site"}}, nil,
		&Config{CleanupInterval: time.Minute, SessionTTL: time.Hour, VerboseReporting: true}, logging.NewNopLogger())
	worker.out = &out
	worker.RunOnce(context.Background())

	assert.Contains(t, out.String(), "PERIODIC CACHE CLEANUP")
	assert.Contains(t, out.String(), "report-site")
	assert.Contains(t, out.String(), "experiment_active_uuids")
}
