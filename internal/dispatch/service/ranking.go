package service

import (
	"math"
	"sort"
	"strings"

	"fieldservice_backend/internal/dispatch/repository"
	"fieldservice_backend/platform/config"
)

const (
	// earthRadiusKm is the mean Earth radius used by the haversine formula.
	earthRadiusKm = 6371.0
	// proximityHalfScoreKm is the distance at which the proximity component
	// drops to half.
	proximityHalfScoreKm = 10.0
	// workloadSaturation is the active job count treated as a full plate.
	workloadSaturation = 5.0
	// maxRating is the upper bound of the technician rating scale.
	maxRating = 5.0
)

// Candidate is a scored technician in ranking order.
type Candidate struct {
	Technician repository.Technician
	Score      float64
}

// rankCandidates scores every technician against the intervention and sorts
// descending by score. Ties break by ascending workload, then by technician
// ID so the ordering is deterministic.
func rankCandidates(techs []repository.Technician, iv InterventionView, w config.RankingWeights) []Candidate {
	out := make([]Candidate, 0, len(techs))
	for _, t := range techs {
		out = append(out, Candidate{Technician: t, Score: score(t, iv, w)})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Technician.ActiveJobCount != b.Technician.ActiveJobCount {
			return a.Technician.ActiveJobCount < b.Technician.ActiveJobCount
		}
		return a.Technician.ID.String() < b.Technician.ID.String()
	})

	return out
}

// score computes the weighted candidate score. Every component is normalized
// to [0, 1], so with weights summing to 100 the score lands in [0, 100].
func score(t repository.Technician, iv InterventionView, w config.RankingWeights) float64 {
	proximity := proximityScore(haversineKm(t.Latitude, t.Longitude, iv.Latitude, iv.Longitude))
	skills := skillScore(t.Skills, iv.RequiredSkill)
	workload := 1.0 - math.Min(float64(t.ActiveJobCount)/workloadSaturation, 1.0)
	rating := math.Min(t.Rating, maxRating) / maxRating

	return float64(w.Proximity)*proximity +
		float64(w.Skills)*skills +
		float64(w.Workload)*workload +
		float64(w.Rating)*rating
}

// proximityScore decays smoothly with distance: 1 at the doorstep, 0.5 at
// proximityHalfScoreKm, approaching 0 far away.
func proximityScore(distanceKm float64) float64 {
	return proximityHalfScoreKm / (proximityHalfScoreKm + distanceKm)
}

// skillScore is 1 for an exact skill match. Candidates are pre-filtered on
// the required skill, so this only differs when ranking a manual pool.
func skillScore(skills []string, required string) float64 {
	required = strings.ToLower(strings.TrimSpace(required))
	if required == "" {
		return 1.0
	}
	for _, s := range skills {
		if strings.ToLower(strings.TrimSpace(s)) == required {
			return 1.0
		}
	}
	return 0.0
}

// haversineKm is the great-circle distance between two coordinates.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
