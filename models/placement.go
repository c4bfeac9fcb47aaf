package models

import "time"

// ScoreSet holds the five sub-scores and weighted total for one story in one
// placement evaluation. ScoreSets are derived and ephemeral: they are
// recomputed on every run and only copied onto assignments for audit.
type ScoreSet struct {
	Quality    float64 `json:"quality"`
	Engagement float64 `json:"engagement"`
	Cultural   float64 `json:"cultural"`
	Recency    float64 `json:"recency"`
	Diversity  float64 `json:"diversity"`
	Total      float64 `json:"total"`
}

// PlacementAssignment records that a story was placed into a (page, section)
// slot at a given rank by a placement run. A run fully overwrites the
// assignments of every slot it processes; there is no incremental merge.
type PlacementAssignment struct {
	ID      uint   `gorm:"primarykey" json:"id"`
	StoryID uint   `gorm:"index:idx_assignment_slot_story;not null" json:"story_id"`
	Story   *Story `gorm:"foreignKey:StoryID" json:"story,omitempty"`

	Page    string `gorm:"type:varchar(50);index:idx_assignment_slot_story;index:idx_assignment_slot;not null" json:"page"`
	Section string `gorm:"type:varchar(50);index:idx_assignment_slot_story;index:idx_assignment_slot;not null" json:"section"`
	Rank    int    `gorm:"not null" json:"rank"` // dense, 1-based within a slot

	// Score breakdown at placement time, kept for auditability.
	QualityScore    float64 `json:"quality_score"`
	EngagementScore float64 `json:"engagement_score"`
	CulturalScore   float64 `json:"cultural_score"`
	RecencyScore    float64 `json:"recency_score"`
	DiversityScore  float64 `json:"diversity_score"`
	TotalScore      float64 `json:"total_score"`

	RunID    string    `gorm:"type:varchar(36);index" json:"run_id"`
	PlacedAt time.Time `json:"placed_at"`
}

// TableName specifies the table name for the PlacementAssignment model.
func (PlacementAssignment) TableName() string {
	return "placement_assignments"
}

// Scores returns the assignment's stored score breakdown as a ScoreSet.
func (a *PlacementAssignment) Scores() ScoreSet {
	return ScoreSet{
		Quality:    a.QualityScore,
		Engagement: a.EngagementScore,
		Cultural:   a.CulturalScore,
		Recency:    a.RecencyScore,
		Diversity:  a.DiversityScore,
		Total:      a.TotalScore,
	}
}

// DeniedStory records one story excluded from a slot by the cultural
// protocol gate or by data validation, with the specific reason.
type DeniedStory struct {
	StoryID uint   `json:"story_id"`
	Title   string `json:"title,omitempty"`
	Reason  string `json:"reason"`
}

// RuleReport summarises the outcome of a single placement rule within a run.
type RuleReport struct {
	Page          string        `json:"page"`
	Section       string        `json:"section"`
	Eligible      int           `json:"eligible"`       // candidates surviving the rule's filters
	Placed        int           `json:"placed"`         // assignments written
	Denied        []DeniedStory `json:"denied,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
	Skipped       bool          `json:"skipped"`
	SkippedReason string        `json:"skipped_reason,omitempty"`
}

// PlacementRunReport is the structured end-of-run report returned to the
// operator who triggered a run. Nothing the run excluded or skipped is
// silently swallowed; it all surfaces here.
type PlacementRunReport struct {
	RunID          string       `json:"run_id"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at"`
	RulesProcessed int          `json:"rules_processed"`
	RulesSkipped   int          `json:"rules_skipped"`
	StoriesPlaced  int          `json:"stories_placed"`
	StoriesDenied  int          `json:"stories_denied"`
	Cancelled      bool         `json:"cancelled"`
	RuleReports    []RuleReport `json:"rule_reports"`
}
