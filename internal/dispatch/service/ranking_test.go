package service

import (
	"testing"

	"fieldservice_backend/internal/dispatch/repository"
	"fieldservice_backend/platform/config"

	"github.com/google/uuid"
)

func tech(id string, lat, lon float64, jobs int, rating float64, skills ...string) repository.Technician {
	return repository.Technician{
		ID:             uuid.MustParse(id),
		Skills:         skills,
		Rating:         rating,
		ActiveJobCount: jobs,
		Available:      true,
		Latitude:       lat,
		Longitude:      lon,
	}
}

func TestRankCandidatesOrdersByWeightedScore(t *testing.T) {
	iv := InterventionView{
		RequiredSkill: "plumbing",
		Latitude:      52.37,
		Longitude:     4.89,
	}

	nearbyIdle := tech("00000000-0000-0000-0000-000000000001", 52.37, 4.90, 0, 4.8, "plumbing")
	nearbyBusy := tech("00000000-0000-0000-0000-000000000002", 52.37, 4.90, 5, 4.8, "plumbing")
	farIdle := tech("00000000-0000-0000-0000-000000000003", 51.92, 4.48, 0, 4.8, "plumbing")

	ranked := rankCandidates([]repository.Technician{farIdle, nearbyBusy, nearbyIdle}, iv, config.DefaultRankingWeights())

	if len(ranked) != 3 {
		t.Fatalf("ranked %d candidates, want 3", len(ranked))
	}
	if ranked[0].Technician.ID != nearbyIdle.ID {
		t.Errorf("top candidate = %s, want nearby idle technician", ranked[0].Technician.ID)
	}
	if ranked[2].Technician.ID != nearbyBusy.ID {
		t.Errorf("last candidate = %s, want fully loaded technician", ranked[2].Technician.ID)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Errorf("ranking not descending at index %d: %f > %f", i, ranked[i].Score, ranked[i-1].Score)
		}
	}
}

func TestRankCandidatesTieBreaksDeterministically(t *testing.T) {
	iv := InterventionView{RequiredSkill: "locksmith", Latitude: 48.85, Longitude: 2.35}

	// Identical position, rating, and skills; only workload differs.
	lighter := tech("00000000-0000-0000-0000-00000000000a", 48.85, 2.35, 1, 4.0, "locksmith")
	heavier := tech("00000000-0000-0000-0000-00000000000b", 48.85, 2.35, 3, 4.0, "locksmith")

	ranked := rankCandidates([]repository.Technician{heavier, lighter}, iv, config.DefaultRankingWeights())
	if ranked[0].Technician.ID != lighter.ID {
		t.Errorf("tie should break toward the lighter workload, got %s first", ranked[0].Technician.ID)
	}

	// Fully identical candidates fall back to ID order.
	twinA := tech("00000000-0000-0000-0000-0000000000aa", 48.85, 2.35, 2, 4.0, "locksmith")
	twinB := tech("00000000-0000-0000-0000-0000000000bb", 48.85, 2.35, 2, 4.0, "locksmith")

	first := rankCandidates([]repository.Technician{twinB, twinA}, iv, config.DefaultRankingWeights())
	second := rankCandidates([]repository.Technician{twinA, twinB}, iv, config.DefaultRankingWeights())
	if first[0].Technician.ID != second[0].Technician.ID {
		t.Errorf("ranking depends on input order for identical candidates")
	}
	if first[0].Technician.ID != twinA.ID {
		t.Errorf("identical candidates should order by ID, got %s first", first[0].Technician.ID)
	}
}

func TestScoreMissingSkillLosesSkillComponent(t *testing.T) {
	iv := InterventionView{RequiredSkill: "electrical", Latitude: 48.85, Longitude: 2.35}
	matched := tech("00000000-0000-0000-0000-0000000000c1", 48.85, 2.35, 0, 5.0, "electrical")
	unmatched := tech("00000000-0000-0000-0000-0000000000c2", 48.85, 2.35, 0, 5.0, "plumbing")

	w := config.DefaultRankingWeights()
	diff := score(matched, iv, w) - score(unmatched, iv, w)
	if diff != float64(w.Skills) {
		t.Errorf("skill component difference = %f, want %d", diff, w.Skills)
	}
}
