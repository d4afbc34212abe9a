package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout accepted by the seed command.
type SeedFile struct {
	Experiments []SeedExperiment `yaml:"experiments"`
}

type SeedExperiment struct {
	Name    string       `yaml:"name"`
	Slug    string       `yaml:"slug"`
	Active  *bool        `yaml:"active"`
	Cohorts []SeedCohort `yaml:"cohorts"`
}

type SeedCohort struct {
	Name   string `yaml:"name"`
	Slug   string `yaml:"slug"`
	Active *bool  `yaml:"active"`
	Weight *int   `yaml:"weight"`
}

// SeedResult counts what a seed run changed.
type SeedResult struct {
	ExperimentsCreated int `json:"experimentsCreated"`
	ExperimentsUpdated int `json:"experimentsUpdated"`
	CohortsCreated     int `json:"cohortsCreated"`
	CohortsUpdated     int `json:"cohortsUpdated"`
}

// SeedService upserts experiments and cohorts by slug from a YAML file.
type SeedService struct {
	activeSet *ActiveSetService
	logger    *logging.ChanneledLogger
}

func NewSeedService(activeSet *ActiveSetService, logger *logging.ChanneledLogger) *SeedService {
	return &SeedService{activeSet: activeSet, logger: logger}
}

// ParseSeed decodes a seed file, rejecting unknown fields.
func ParseSeed(r io.Reader) (*SeedFile, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var seed SeedFile
	if err := decoder.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return &seed, nil
		}
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// Apply upserts every entry and then rebuilds the active set once.
func (s *SeedService) Apply(ctx context.Context, tenantCtx *tenant.Context, seed *SeedFile) (*SeedResult, error) {
	result := &SeedResult{}

	for _, entry := range seed.Experiments {
		experiment, err := s.upsertExperiment(ctx, tenantCtx, entry, result)
		if err != nil {
			return result, err
		}
		for _, cohortEntry := range entry.Cohorts {
			if err := s.upsertCohort(ctx, tenantCtx, experiment, cohortEntry, result); err != nil {
				return result, fmt.Errorf("split test %s: %w", experiment.Slug, err)
			}
		}
	}

	if _, err := s.activeSet.Rebuild(ctx, tenantCtx); err != nil {
		return result, err
	}

	s.logger.SplitTest().Info("Seed applied",
		"tenantId", tenantCtx.TenantID,
		"experimentsCreated", result.ExperimentsCreated,
		"experimentsUpdated", result.ExperimentsUpdated,
		"cohortsCreated", result.CohortsCreated,
		"cohortsUpdated", result.CohortsUpdated)
	return result, nil
}

func (s *SeedService) upsertExperiment(ctx context.Context, tenantCtx *tenant.Context, entry SeedExperiment, result *SeedResult) (*splittest.Experiment, error) {
	if entry.Name == "" {
		return nil, splittest.ErrNameRequired
	}
	slug, err := resolveSlug(entry.Slug, entry.Name)
	if err != nil {
		return nil, err
	}

	repo := tenantCtx.ExperimentRepo()
	experiment, err := repo.FindBySlug(ctx, tenantCtx.TenantID, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to load split test %s: %w", slug, err)
	}

	if experiment == nil {
		experiment = &splittest.Experiment{
			UUID:     security.GenerateUUID(),
			Slug:     slug,
			Name:     entry.Name,
			IsActive: entry.Active == nil || *entry.Active,
			SiteID:   tenantCtx.TenantID,
		}
		if err := repo.Store(ctx, experiment); err != nil {
			return nil, err
		}
		result.ExperimentsCreated++
		return experiment, nil
	}

	experiment.Name = entry.Name
	if entry.Active != nil {
		experiment.IsActive = *entry.Active
	}
	if err := repo.Update(ctx, experiment); err != nil {
		return nil, err
	}
	result.ExperimentsUpdated++
	return experiment, nil
}

func (s *SeedService) upsertCohort(ctx context.Context, tenantCtx *tenant.Context, experiment *splittest.Experiment, entry SeedCohort, result *SeedResult) error {
	if entry.Name == "" {
		return splittest.ErrNameRequired
	}
	slug, err := resolveSlug(entry.Slug, entry.Name)
	if err != nil {
		return err
	}

	repo := tenantCtx.CohortRepo()
	existing, err := repo.FindByExperiment(ctx, experiment.ID)
	if err != nil {
		return fmt.Errorf("failed to load cohorts: %w", err)
	}

	var cohort *splittest.Cohort
	for _, c := range existing {
		if c.Slug == slug {
			cohort = c
			break
		}
	}

	if cohort == nil {
		cohort = &splittest.Cohort{
			UUID:         security.GenerateUUID(),
			Slug:         slug,
			Name:         entry.Name,
			IsActive:     entry.Active == nil || *entry.Active,
			Weight:       1,
			ExperimentID: experiment.ID,
		}
		if entry.Weight != nil {
			cohort.Weight = *entry.Weight
		}
		if err := repo.Store(ctx, cohort); err != nil {
			return err
		}
		result.CohortsCreated++
		return nil
	}

	cohort.Name = entry.Name
	if entry.Active != nil {
		cohort.IsActive = *entry.Active
	}
	if entry.Weight != nil {
		cohort.Weight = *entry.Weight
	}
	if err := repo.Update(ctx, cohort); err != nil {
		return err
	}
	result.CohortsUpdated++
	return nil
}
