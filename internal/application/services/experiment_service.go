package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
)

// ExperimentInput carries admin writes for an experiment. Nil and empty
// fields are left unchanged on update.
type ExperimentInput struct {
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	IsActive *bool   `json:"isActive"`
	SiteID   string  `json:"siteId"`
	UUID     *string `json:"uuid"`
}

// CohortInput carries admin writes for a cohort.
type CohortInput struct {
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	IsActive *bool   `json:"isActive"`
	Weight   *int    `json:"weight"`
	UUID     *string `json:"uuid"`
}

// ExperimentService handles admin CRUD for experiments and cohorts. Every
// committed write is followed by an active set rebuild.
type ExperimentService struct {
	activeSet *ActiveSetService
	logger    *logging.ChanneledLogger
}

// NewExperimentService creates the experiment admin service
func NewExperimentService(activeSet *ActiveSetService, logger *logging.ChanneledLogger) *ExperimentService {
	return &ExperimentService{activeSet: activeSet, logger: logger}
}

// List returns the tenant's experiments, newest first.
func (s *ExperimentService) List(ctx context.Context, tenantCtx *tenant.Context, filter splittest.ExperimentFilter) ([]*splittest.Experiment, error) {
	experiments, err := tenantCtx.ExperimentRepo().FindAll(ctx, tenantCtx.TenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list split tests: %w", err)
	}
	return experiments, nil
}

// Get returns one experiment with all of its cohorts.
func (s *ExperimentService) Get(ctx context.Context, tenantCtx *tenant.Context, experimentUUID string) (*splittest.Experiment, error) {
	experiment, err := s.find(ctx, tenantCtx, experimentUUID)
	if err != nil {
		return nil, err
	}
	cohorts, err := tenantCtx.CohortRepo().FindByExperiment(ctx, experiment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cohorts: %w", err)
	}
	for _, c := range cohorts {
		c.ExperimentUUID = experiment.UUID
	}
	experiment.Cohorts = cohorts
	return experiment, nil
}

func (s *ExperimentService) find(ctx context.Context, tenantCtx *tenant.Context, experimentUUID string) (*splittest.Experiment, error) {
	experiment, err := tenantCtx.ExperimentRepo().FindByUUID(ctx, tenantCtx.TenantID, experimentUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load split test: %w", err)
	}
	if experiment == nil {
		return nil, splittest.ErrExperimentNotFound
	}
	return experiment, nil
}

// Create stores a new experiment. The slug is derived from the name when
// not given and the site is always the requesting tenant.
func (s *ExperimentService) Create(ctx context.Context, tenantCtx *tenant.Context, in ExperimentInput) (*splittest.Experiment, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, splittest.ErrNameRequired
	}
	slug, err := resolveSlug(in.Slug, name)
	if err != nil {
		return nil, err
	}
	if in.SiteID != "" && in.SiteID != tenantCtx.TenantID {
		return nil, splittest.ErrImmutableField
	}

	experiment := &splittest.Experiment{
		UUID:     security.GenerateUUID(),
		Slug:     slug,
		Name:     name,
		IsActive: true,
		SiteID:   tenantCtx.TenantID,
	}
	if in.IsActive != nil {
		experiment.IsActive = *in.IsActive
	}
	if err := tenantCtx.ExperimentRepo().Store(ctx, experiment); err != nil {
		return nil, err
	}

	s.logger.SplitTest().Info("Split test created", "tenantId", tenantCtx.TenantID, "slug", experiment.Slug, "uuid", experiment.UUID)
	s.afterWrite(ctx, tenantCtx)
	return experiment, nil
}

// Update changes the name or active flag. Slug, site and uuid are fixed.
func (s *ExperimentService) Update(ctx context.Context, tenantCtx *tenant.Context, experimentUUID string, in ExperimentInput) (*splittest.Experiment, error) {
	experiment, err := s.find(ctx, tenantCtx, experimentUUID)
	if err != nil {
		return nil, err
	}
	if in.Slug != "" && in.Slug != experiment.Slug {
		return nil, splittest.ErrImmutableField
	}
	if in.SiteID != "" && in.SiteID != experiment.SiteID {
		return nil, splittest.ErrImmutableField
	}
	if in.UUID != nil && *in.UUID != experiment.UUID {
		return nil, splittest.ErrImmutableField
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		experiment.Name = name
	}
	if in.IsActive != nil {
		experiment.IsActive = *in.IsActive
	}
	if err := tenantCtx.ExperimentRepo().Update(ctx, experiment); err != nil {
		return nil, err
	}

	s.logger.SplitTest().Info("Split test updated", "tenantId", tenantCtx.TenantID, "slug", experiment.Slug, "active", experiment.IsActive)
	s.afterWrite(ctx, tenantCtx)
	return experiment, nil
}

// Delete removes an experiment with its cohorts and assignments.
func (s *ExperimentService) Delete(ctx context.Context, tenantCtx *tenant.Context, experimentUUID string) error {
	if err := tenantCtx.ExperimentRepo().Delete(ctx, tenantCtx.TenantID, experimentUUID); err != nil {
		return err
	}
	s.logger.SplitTest().Info("Split test deleted", "tenantId", tenantCtx.TenantID, "uuid", experimentUUID)
	s.afterWrite(ctx, tenantCtx)
	return nil
}

// AddCohort stores a cohort under the experiment. Weight defaults to 1.
func (s *ExperimentService) AddCohort(ctx context.Context, tenantCtx *tenant.Context, experimentUUID string, in CohortInput) (*splittest.Cohort, error) {
	experiment, err := s.find(ctx, tenantCtx, experimentUUID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, splittest.ErrNameRequired
	}
	slug, err := resolveSlug(in.Slug, name)
	if err != nil {
		return nil, err
	}

	cohort := &splittest.Cohort{
		UUID:           security.GenerateUUID(),
		Slug:           slug,
		Name:           name,
		IsActive:       true,
		Weight:         1,
		ExperimentID:   experiment.ID,
		ExperimentUUID: experiment.UUID,
	}
	if in.IsActive != nil {
		cohort.IsActive = *in.IsActive
	}
	if in.Weight != nil {
		cohort.Weight = *in.Weight
	}
	if err := tenantCtx.CohortRepo().Store(ctx, cohort); err != nil {
		return nil, err
	}

	s.logger.SplitTest().Info("Cohort created", "tenantId", tenantCtx.TenantID, "experiment", experiment.Slug, "slug", cohort.Slug, "weight", cohort.Weight)
	s.afterWrite(ctx, tenantCtx)
	return cohort, nil
}

// UpdateCohort changes name, weight or the active flag.
func (s *ExperimentService) UpdateCohort(ctx context.Context, tenantCtx *tenant.Context, cohortUUID string, in CohortInput) (*splittest.Cohort, error) {
	cohort, err := tenantCtx.CohortRepo().FindByUUID(ctx, tenantCtx.TenantID, cohortUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cohort: %w", err)
	}
	if cohort == nil {
		return nil, splittest.ErrCohortNotFound
	}
	if in.Slug != "" && in.Slug != cohort.Slug {
		return nil, splittest.ErrImmutableField
	}
	if in.UUID != nil && *in.UUID != cohort.UUID {
		return nil, splittest.ErrImmutableField
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		cohort.Name = name
	}
	if in.IsActive != nil {
		cohort.IsActive = *in.IsActive
	}
	if in.Weight != nil {
		cohort.Weight = *in.Weight
	}
	if err := tenantCtx.CohortRepo().Update(ctx, cohort); err != nil {
		return nil, err
	}

	s.logger.SplitTest().Info("Cohort updated", "tenantId", tenantCtx.TenantID, "slug", cohort.Slug, "weight", cohort.Weight, "active", cohort.IsActive)
	s.afterWrite(ctx, tenantCtx)
	return cohort, nil
}

// DeleteCohort removes a cohort and its assignments.
func (s *ExperimentService) DeleteCohort(ctx context.Context, tenantCtx *tenant.Context, cohortUUID string) error {
	if err := tenantCtx.CohortRepo().Delete(ctx, tenantCtx.TenantID, cohortUUID); err != nil {
		return err
	}
	s.logger.SplitTest().Info("Cohort deleted", "tenantId", tenantCtx.TenantID, "uuid", cohortUUID)
	s.afterWrite(ctx, tenantCtx)
	return nil
}

// afterWrite rebuilds the active set. The write is already committed, so a
// failed rebuild drops the cached parts and leaves the next read to rebuild.
func (s *ExperimentService) afterWrite(ctx context.Context, tenantCtx *tenant.Context) {
	if _, err := s.activeSet.Rebuild(ctx, tenantCtx); err != nil {
		if invErr := tenantCtx.CacheManager.InvalidateActiveSet(tenantCtx.TenantID); invErr != nil {
			s.logger.Cache().Error("Active set invalidation failed", "tenantId", tenantCtx.TenantID, "error", invErr)
		}
	}
}

func resolveSlug(slug, name string) (string, error) {
	if slug == "" {
		slug = splittest.Slugify(name)
	}
	if !splittest.ValidSlug(slug) {
		return "", fmt.Errorf("%w: %q", splittest.ErrInvalidSlug, slug)
	}
	return slug, nil
}
