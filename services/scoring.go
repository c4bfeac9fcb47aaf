package services

import (
	"math"
	"time"

	"github.com/Acurioustractor/palm-island-repository-sub002/models"
)

// Scoring model. Five independent sub-scores per story, each in [0,100],
// combined by a configurable weighted sum. All functions are pure and total:
// missing engagement counters count as zero, a missing timestamp scores a
// neutral 50 for recency.

// ScoreWeights holds the relative weight of each sub-score in the total.
type ScoreWeights struct {
	Quality    float64 `yaml:"quality" json:"quality"`
	Engagement float64 `yaml:"engagement" json:"engagement"`
	Cultural   float64 `yaml:"cultural" json:"cultural"`
	Recency    float64 `yaml:"recency" json:"recency"`
	Diversity  float64 `yaml:"diversity" json:"diversity"`
}

// DefaultWeights returns the site-wide default weight profile.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		Quality:    0.30,
		Engagement: 0.25,
		Cultural:   0.20,
		Recency:    0.15,
		Diversity:  0.10,
	}
}

// weightProfiles maps profile names referenced by placement rules to their
// weights. Sections with different goals emphasise different signals: the
// elders page leans on cultural standing, the trending section on engagement.
var weightProfiles = map[string]ScoreWeights{
	"default": DefaultWeights(),
	"cultural_focus": {
		Quality:    0.20,
		Engagement: 0.10,
		Cultural:   0.45,
		Recency:    0.10,
		Diversity:  0.15,
	},
	"trending": {
		Quality:    0.15,
		Engagement: 0.45,
		Cultural:   0.10,
		Recency:    0.25,
		Diversity:  0.05,
	},
	"fresh_voices": {
		Quality:    0.20,
		Engagement: 0.10,
		Cultural:   0.10,
		Recency:    0.35,
		Diversity:  0.25,
	},
}

// WeightProfile resolves a named profile. The boolean is false for unknown
// names so the caller can treat the reference as a configuration error
// instead of silently falling back.
func WeightProfile(name string) (ScoreWeights, bool) {
	if name == "" {
		return DefaultWeights(), true
	}
	w, ok := weightProfiles[name]
	return w, ok
}

// WeightProfileNames lists the known profile names, for validation and the
// rules introspection endpoint.
func WeightProfileNames() []string {
	names := make([]string, 0, len(weightProfiles))
	for name := range weightProfiles {
		names = append(names, name)
	}
	return names
}

const (
	velocityBoostCap      = 15.0
	velocityThreshold     = 10.0 // engagement per day needed for a boost
	velocityWindowDays    = 30
	neutralRecencyScore   = 50.0
	longBodyThreshold     = 500
)

// QualityScore scores editorial quality signals: base 50, plus featured,
// verified, elder approval, traditional knowledge, attached media and a
// substantial body, clamped to 100.
func QualityScore(story *models.Story) float64 {
	score := 50.0
	if story.IsFeatured {
		score += 25
	}
	if story.IsVerified {
		score += 20
	}
	if story.ElderApprovalGiven {
		score += 15
	}
	if story.ContainsTraditionalKnowledge {
		score += 10
	}
	if story.HasMedia() {
		score += 5
	}
	if len(story.Content) > longBodyThreshold {
		score += 5
	}
	return clampScore(score)
}

// EngagementScore scores audience engagement on a logarithmic scale so a
// handful of viral stories cannot saturate the ranking, with a capped
// velocity boost for new stories that are genuinely trending.
func EngagementScore(story *models.Story, now time.Time) float64 {
	raw := float64(story.EngagementTotal())
	score := math.Log10(raw+1) * 20

	ageDays := story.AgeDays(now)
	if ageDays >= 0 && ageDays <= velocityWindowDays {
		days := float64(ageDays)
		if days < 1 {
			days = 1
		}
		perDay := raw / days
		if perDay > velocityThreshold {
			score += math.Min(velocityBoostCap, perDay*0.5)
		}
	}
	return clampScore(score)
}

// CulturalScore scores cultural standing: elder or cultural-advisor
// authorship, traditional knowledge and elder approval.
func CulturalScore(story *models.Story) float64 {
	score := 0.0
	if story.Contributor != nil {
		if story.Contributor.IsElder {
			score += 40
		}
		if story.Contributor.IsCulturalAdvisor {
			score += 30
		}
	}
	if story.ContainsTraditionalKnowledge {
		score += 30
	}
	if story.ElderApprovalGiven {
		score += 20
	}
	return clampScore(score)
}

// RecencyScore decays with age in days: full marks for the first week, then
// progressively slower linear decay, with an asymptotic tail toward zero
// past a year. Stories without a creation timestamp score a neutral 50.
func RecencyScore(story *models.Story, now time.Time) float64 {
	ageDays := story.AgeDays(now)
	if ageDays < 0 {
		return neutralRecencyScore
	}
	days := float64(ageDays)
	switch {
	case days <= 7:
		return 100
	case days <= 30:
		// 90 at day 8 down to 50 at day 30
		return clampScore(90 - (days-8)*(40.0/22.0))
	case days <= 90:
		// 50 at day 31 down to 20 at day 90
		return clampScore(50 - (days-31)*(30.0/59.0))
	case days <= 365:
		// 20 at day 91 down to 10 at day 365
		return clampScore(20 - (days-91)*(10.0/274.0))
	default:
		return clampScore(10 * math.Exp(-(days-365)/365.0))
	}
}

// DiversityScore penalises a story for each already-selected story in the
// same slot that shares its contributor, category or theme. The accumulator
// of prior selections is threaded through explicitly by the caller, keeping
// this function pure; the score depends on selection order.
func DiversityScore(story *models.Story, selected []*models.Story) float64 {
	score := 100.0
	for _, prior := range selected {
		if story.ContributorID != nil && prior.ContributorID != nil &&
			*story.ContributorID == *prior.ContributorID {
			score -= 15
		}
		if story.Category == prior.Category {
			score -= 10
		}
		if story.Theme != "" && story.Theme == prior.Theme {
			score -= 8
		}
	}
	return clampScore(score)
}

// TotalScore computes all five sub-scores and their weighted sum for one
// story, given the stories already selected into the same slot.
func TotalScore(story *models.Story, weights ScoreWeights, selected []*models.Story, now time.Time) models.ScoreSet {
	set := models.ScoreSet{
		Quality:    QualityScore(story),
		Engagement: EngagementScore(story, now),
		Cultural:   CulturalScore(story),
		Recency:    RecencyScore(story, now),
		Diversity:  DiversityScore(story, selected),
	}
	set.Total = set.Quality*weights.Quality +
		set.Engagement*weights.Engagement +
		set.Cultural*weights.Cultural +
		set.Recency*weights.Recency +
		set.Diversity*weights.Diversity
	return set
}

// clampScore bounds a sub-score to the [0,100] scale.
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
