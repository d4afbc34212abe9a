// Package services provides application-level services that orchestrate
// business logic and coordinate between repositories and domain entities.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/types"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/telemetry"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

// ActiveSetService maintains the cached snapshot of active experiments and
// cohorts for each tenant.
type ActiveSetService struct {
	group  singleflight.Group
	logger *logging.ChanneledLogger
}

// NewActiveSetService creates the active set service
func NewActiveSetService(logger *logging.ChanneledLogger) *ActiveSetService {
	return &ActiveSetService{logger: logger}
}

// Rebuild recomputes and stores all five parts after a committed write.
// It is never coalesced with other rebuilds.
func (s *ActiveSetService) Rebuild(ctx context.Context, tenantCtx *tenant.Context) (*splittest.ActiveSnapshot, error) {
	return s.RebuildWithTrigger(ctx, tenantCtx, metrics.TriggerWrite)
}

// RebuildWithTrigger is Rebuild labelled with what caused it.
func (s *ActiveSetService) RebuildWithTrigger(ctx context.Context, tenantCtx *tenant.Context, trigger string) (*splittest.ActiveSnapshot, error) {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "ActiveSetService.Rebuild")
	span.SetAttributes(attribute.String("tenant.id", tenantCtx.TenantID), attribute.String("rebuild.trigger", trigger))
	defer span.End()

	snapshot, err := s.rebuild(ctx, tenantCtx)
	metrics.ObserveRebuild(tenantCtx.TenantID, trigger, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rebuild failed")
		s.logger.Cache().Error("Active set rebuild failed", "tenantId", tenantCtx.TenantID, "trigger", trigger, "error", err)
		return nil, err
	}

	s.logger.Cache().Info("Active set rebuilt",
		"tenantId", tenantCtx.TenantID,
		"trigger", trigger,
		"experiments", len(snapshot.ExperimentActiveUUIDs),
		"cohorts", len(snapshot.CohortActiveUUIDs),
		"duration", time.Since(start))
	return snapshot, nil
}

func (s *ActiveSetService) rebuild(ctx context.Context, tenantCtx *tenant.Context) (*splittest.ActiveSnapshot, error) {
	experiments, err := tenantCtx.ExperimentRepo().FindActiveWithCohorts(ctx, tenantCtx.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active split tests: %w", err)
	}

	snapshot := splittest.BuildActiveSnapshot(experiments)

	parts := map[string]any{
		types.KeyExperimentActiveUUIDs:       snapshot.ExperimentActiveUUIDs,
		types.KeyExperimentUUIDSlugMap:       snapshot.ExperimentUUIDSlugMap,
		types.KeyCohortActiveUUIDs:           snapshot.CohortActiveUUIDs,
		types.KeyCohortUUIDSlugMap:           snapshot.CohortUUIDSlugMap,
		types.KeyCohortUUIDExperimentUUIDMap: snapshot.CohortUUIDExperimentUUIDMap,
	}
	for _, key := range types.ActiveSetKeys {
		encoded, err := json.Marshal(parts[key])
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", key, err)
		}
		if err := tenantCtx.CacheManager.SetActiveSetPart(tenantCtx.TenantID, key, encoded); err != nil {
			return nil, fmt.Errorf("failed to store %s: %w", key, err)
		}
	}

	return snapshot, nil
}

// lazyRebuild coalesces concurrent cache-miss rebuilds for one tenant.
func (s *ActiveSetService) lazyRebuild(ctx context.Context, tenantCtx *tenant.Context) (*splittest.ActiveSnapshot, error) {
	result, err, shared := s.group.Do(tenantCtx.TenantID, func() (any, error) {
		return s.RebuildWithTrigger(context.WithoutCancel(ctx), tenantCtx, metrics.TriggerMiss)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Cache().Debug("Active set rebuild shared", "tenantId", tenantCtx.TenantID)
	}
	return result.(*splittest.ActiveSnapshot), nil
}

func loadPart[T any](ctx context.Context, s *ActiveSetService, tenantCtx *tenant.Context, key string, pick func(*splittest.ActiveSnapshot) T) (T, error) {
	part := strings.TrimPrefix(key, "split_tests:")

	raw, found, err := tenantCtx.CacheManager.GetActiveSetPart(tenantCtx.TenantID, key)
	switch {
	case err != nil:
		s.logger.Cache().Warn("Active set read failed, rebuilding", "tenantId", tenantCtx.TenantID, "key", key, "error", err)
	case found:
		var value T
		decodeErr := json.Unmarshal(raw, &value)
		if decodeErr == nil {
			metrics.ObserveLookup(tenantCtx.TenantID, part, true)
			return value, nil
		}
		s.logger.Cache().Warn("Active set part undecodable, rebuilding", "tenantId", tenantCtx.TenantID, "key", key, "error", decodeErr)
	}
	metrics.ObserveLookup(tenantCtx.TenantID, part, false)

	snapshot, err := s.lazyRebuild(ctx, tenantCtx)
	if err != nil {
		var zero T
		return zero, err
	}
	return pick(snapshot), nil
}

// ExperimentActiveUUIDs returns the uuids of active experiments.
func (s *ActiveSetService) ExperimentActiveUUIDs(ctx context.Context, tenantCtx *tenant.Context) (splittest.UUIDSet, error) {
	return loadPart(ctx, s, tenantCtx, types.KeyExperimentActiveUUIDs, func(snap *splittest.ActiveSnapshot) splittest.UUIDSet {
		return snap.ExperimentActiveUUIDs
	})
}

// ExperimentUUIDSlugMap returns experiment uuid to slug.
func (s *ActiveSetService) ExperimentUUIDSlugMap(ctx context.Context, tenantCtx *tenant.Context) (map[string]string, error) {
	return loadPart(ctx, s, tenantCtx, types.KeyExperimentUUIDSlugMap, func(snap *splittest.ActiveSnapshot) map[string]string {
		return snap.ExperimentUUIDSlugMap
	})
}

// CohortActiveUUIDs returns the uuids of active cohorts of active experiments.
func (s *ActiveSetService) CohortActiveUUIDs(ctx context.Context, tenantCtx *tenant.Context) (splittest.UUIDSet, error) {
	return loadPart(ctx, s, tenantCtx, types.KeyCohortActiveUUIDs, func(snap *splittest.ActiveSnapshot) splittest.UUIDSet {
		return snap.CohortActiveUUIDs
	})
}

// CohortUUIDSlugMap returns cohort uuid to slug.
func (s *ActiveSetService) CohortUUIDSlugMap(ctx context.Context, tenantCtx *tenant.Context) (map[string]string, error) {
	return loadPart(ctx, s, tenantCtx, types.KeyCohortUUIDSlugMap, func(snap *splittest.ActiveSnapshot) map[string]string {
		return snap.CohortUUIDSlugMap
	})
}

// CohortUUIDExperimentUUIDMap returns cohort uuid to owning experiment uuid.
func (s *ActiveSetService) CohortUUIDExperimentUUIDMap(ctx context.Context, tenantCtx *tenant.Context) (map[string]string, error) {
	return loadPart(ctx, s, tenantCtx, types.KeyCohortUUIDExperimentUUIDMap, func(snap *splittest.ActiveSnapshot) map[string]string {
		return snap.CohortUUIDExperimentUUIDMap
	})
}

// Snapshot loads all five parts. Each part is rebuilt on its own miss.
func (s *ActiveSetService) Snapshot(ctx context.Context, tenantCtx *tenant.Context) (*splittest.ActiveSnapshot, error) {
	var snapshot splittest.ActiveSnapshot
	var err error

	if snapshot.ExperimentActiveUUIDs, err = s.ExperimentActiveUUIDs(ctx, tenantCtx); err != nil {
		return nil, err
	}
	if snapshot.ExperimentUUIDSlugMap, err = s.ExperimentUUIDSlugMap(ctx, tenantCtx); err != nil {
		return nil, err
	}
	if snapshot.CohortActiveUUIDs, err = s.CohortActiveUUIDs(ctx, tenantCtx); err != nil {
		return nil, err
	}
	if snapshot.CohortUUIDSlugMap, err = s.CohortUUIDSlugMap(ctx, tenantCtx); err != nil {
		return nil, err
	}
	if snapshot.CohortUUIDExperimentUUIDMap, err = s.CohortUUIDExperimentUUIDMap(ctx, tenantCtx); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
