package splittest

import (
	"encoding/json"
	"sort"
)

// UUIDSet is a set of uuid strings. It encodes as a sorted JSON array.
type UUIDSet map[string]struct{}

// NewUUIDSet builds a set from the given uuids.
func NewUUIDSet(uuids ...string) UUIDSet {
	set := make(UUIDSet, len(uuids))
	for _, u := range uuids {
		set[u] = struct{}{}
	}
	return set
}

// Has reports whether uuid is in the set.
func (s UUIDSet) Has(uuid string) bool {
	_, ok := s[uuid]
	return ok
}

// Sorted returns the members in ascending order.
func (s UUIDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (s UUIDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *UUIDSet) UnmarshalJSON(data []byte) error {
	var uuids []string
	if err := json.Unmarshal(data, &uuids); err != nil {
		return err
	}
	*s = NewUUIDSet(uuids...)
	return nil
}

// ActiveSnapshot is the derived view of active experiments and cohorts for
// one site. It is recomputed in full on every rebuild.
type ActiveSnapshot struct {
	ExperimentActiveUUIDs       UUIDSet           `json:"experimentActiveUuids"`
	ExperimentUUIDSlugMap       map[string]string `json:"experimentUuidSlugMap"`
	CohortActiveUUIDs           UUIDSet           `json:"cohortActiveUuids"`
	CohortUUIDSlugMap           map[string]string `json:"cohortUuidSlugMap"`
	CohortUUIDExperimentUUIDMap map[string]string `json:"cohortUuidExperimentUuidMap"`
}

// BuildActiveSnapshot derives the snapshot from active experiments and their
// active cohorts. Experiments without an active cohort are left out, as are
// inactive records that slip through.
func BuildActiveSnapshot(experiments []*Experiment) *ActiveSnapshot {
	snapshot := &ActiveSnapshot{
		ExperimentActiveUUIDs:       UUIDSet{},
		ExperimentUUIDSlugMap:       map[string]string{},
		CohortActiveUUIDs:           UUIDSet{},
		CohortUUIDSlugMap:           map[string]string{},
		CohortUUIDExperimentUUIDMap: map[string]string{},
	}

	for _, experiment := range experiments {
		if experiment == nil || !experiment.IsActive {
			continue
		}

		var activeCohorts []*Cohort
		for _, cohort := range experiment.Cohorts {
			if cohort != nil && cohort.IsActive {
				activeCohorts = append(activeCohorts, cohort)
			}
		}
		if len(activeCohorts) == 0 {
			continue
		}

		snapshot.ExperimentActiveUUIDs[experiment.UUID] = struct{}{}
		snapshot.ExperimentUUIDSlugMap[experiment.UUID] = experiment.Slug
		for _, cohort := range activeCohorts {
			snapshot.CohortActiveUUIDs[cohort.UUID] = struct{}{}
			snapshot.CohortUUIDSlugMap[cohort.UUID] = cohort.Slug
			snapshot.CohortUUIDExperimentUUIDMap[cohort.UUID] = experiment.UUID
		}
	}

	return snapshot
}

// CohortBelongsTo reports whether cohortUUID is active and owned by experimentUUID.
func (s *ActiveSnapshot) CohortBelongsTo(cohortUUID, experimentUUID string) bool {
	if !s.CohortActiveUUIDs.Has(cohortUUID) {
		return false
	}
	owner, ok := s.CohortUUIDExperimentUUIDMap[cohortUUID]
	return ok && owner == experimentUUID
}

// SlugMap converts an experiment uuid to cohort uuid mapping into slugs.
// Entries that cannot be resolved are skipped.
func (s *ActiveSnapshot) SlugMap(assignments map[string]string) map[string]string {
	slugs := make(map[string]string, len(assignments))
	for experimentUUID, cohortUUID := range assignments {
		experimentSlug, ok := s.ExperimentUUIDSlugMap[experimentUUID]
		if !ok {
			continue
		}
		cohortSlug, ok := s.CohortUUIDSlugMap[cohortUUID]
		if !ok {
			continue
		}
		slugs[experimentSlug] = cohortSlug
	}
	return slugs
}
