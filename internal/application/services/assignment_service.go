package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/domain/repositories"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/telemetry"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
	"go.opentelemetry.io/otel/attribute"
)

// IntN returns a uniform integer in [0, n).
type IntN func(n int) int

// AssignmentService resolves which cohort of an experiment a user sees.
type AssignmentService struct {
	intN   IntN
	logger *logging.ChanneledLogger
}

// NewAssignmentService uses the process-wide random source.
func NewAssignmentService(logger *logging.ChanneledLogger) *AssignmentService {
	return NewAssignmentServiceWithRand(rand.IntN, logger)
}

// NewAssignmentServiceWithRand injects the random source used for picks.
func NewAssignmentServiceWithRand(intN IntN, logger *logging.ChanneledLogger) *AssignmentService {
	return &AssignmentService{intN: intN, logger: logger}
}

// AssignOrFetch returns the user's cohort for the experiment. Authenticated
// users keep their oldest active assignment; otherwise a cohort is drawn by
// weight and, for authenticated users, recorded. A nil cohort with a nil
// error means the experiment has nothing eligible.
func (s *AssignmentService) AssignOrFetch(ctx context.Context, tenantCtx *tenant.Context, user splittest.User, experimentUUID string) (*splittest.Cohort, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "AssignmentService.AssignOrFetch")
	span.SetAttributes(attribute.String("tenant.id", tenantCtx.TenantID), attribute.String("experiment.uuid", experimentUUID))
	defer span.End()

	experiment, err := tenantCtx.ExperimentRepo().FindByUUID(ctx, tenantCtx.TenantID, experimentUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load split test %s: %w", experimentUUID, err)
	}
	if experiment == nil || !experiment.IsActive {
		metrics.ObserveAssignment(tenantCtx.TenantID, metrics.OutcomeIneligible)
		return nil, nil
	}

	authed, isAuthed := user.(splittest.Authenticated)
	if isAuthed {
		existing, err := tenantCtx.AssignmentRepo().FindOldestActiveCohort(ctx, authed.ID, experiment.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load assignments for %s: %w", splittest.UserLabel(user), err)
		}
		if existing != nil {
			metrics.ObserveAssignment(tenantCtx.TenantID, metrics.OutcomeExisting)
			return existing, nil
		}
	}

	candidates, err := tenantCtx.CohortRepo().FindActiveByExperimentWeighted(ctx, experiment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cohorts for %s: %w", experimentUUID, err)
	}

	pick := s.pick(candidates)
	if pick == nil {
		metrics.ObserveAssignment(tenantCtx.TenantID, metrics.OutcomeIneligible)
		return nil, nil
	}

	if !isAuthed {
		metrics.ObserveAssignment(tenantCtx.TenantID, metrics.OutcomeAnonymous)
		return pick, nil
	}

	inserted, err := tenantCtx.AssignmentRepo().InsertIfAbsent(ctx, pick.ID, authed.ID)
	if errors.Is(err, repositories.ErrMissingReference) {
		// the account or cohort vanished mid-request; serve the draw unrecorded
		metrics.ObserveAssignment(tenantCtx.TenantID, metrics.OutcomeUnrecorded)
		s.logger.SplitTest().Warn("Assignment not recorded",
			"tenantId", tenantCtx.TenantID,
			"experiment", experiment.Slug,
			"cohort", pick.Slug,
			"user", splittest.UserLabel(user))
		return pick, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record assignment: %w", err)
	}
	metrics.ObserveAssignment(tenantCtx.TenantID, metrics.OutcomeAssigned)
	s.logger.SplitTest().Debug("Cohort assigned",
		"tenantId", tenantCtx.TenantID,
		"experiment", experiment.Slug,
		"cohort", pick.Slug,
		"user", splittest.UserLabel(user),
		"inserted", inserted)

	return pick, nil
}

// pick draws one cohort with probability proportional to its weight.
// Zero-weight cohorts are never drawn.
func (s *AssignmentService) pick(candidates []*splittest.Cohort) *splittest.Cohort {
	total := 0
	eligible := make([]*splittest.Cohort, 0, len(candidates))
	for _, c := range candidates {
		if c.Weight > 0 {
			eligible = append(eligible, c)
			total += c.Weight
		}
	}
	if total == 0 {
		return nil
	}

	target := s.intN(total)
	for _, c := range eligible {
		if target < c.Weight {
			return c
		}
		target -= c.Weight
	}
	return eligible[len(eligible)-1]
}
