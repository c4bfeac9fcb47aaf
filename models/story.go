package models

import (
	"time"

	"gorm.io/gorm"
)

// StoryCategory defines the fixed set of content categories used across the site.
type StoryCategory string

const (
	CategoryCommunityStory   StoryCategory = "community_story"
	CategoryElderWisdom      StoryCategory = "elder_wisdom"
	CategoryAchievement      StoryCategory = "achievement"
	CategoryCulturalHeritage StoryCategory = "cultural_heritage"
	CategoryCommunityEvent   StoryCategory = "community_event"
	CategoryYouthVoice       StoryCategory = "youth_voice"
)

// AllStoryCategories lists every valid category, used by rule-set validation.
func AllStoryCategories() []StoryCategory {
	return []StoryCategory{
		CategoryCommunityStory,
		CategoryElderWisdom,
		CategoryAchievement,
		CategoryCulturalHeritage,
		CategoryCommunityEvent,
		CategoryYouthVoice,
	}
}

// SensitivityLevel defines the ordered cultural-sensitivity scale for a story.
// Ordering matters: low < medium < high < restricted.
type SensitivityLevel string

const (
	SensitivityLow        SensitivityLevel = "low"
	SensitivityMedium     SensitivityLevel = "medium"
	SensitivityHigh       SensitivityLevel = "high"
	SensitivityRestricted SensitivityLevel = "restricted"
)

// sensitivityRank maps each level to its position on the ordered scale.
var sensitivityRank = map[SensitivityLevel]int{
	SensitivityLow:        0,
	SensitivityMedium:     1,
	SensitivityHigh:       2,
	SensitivityRestricted: 3,
}

// AtLeast reports whether level l is at or above the given level on the scale.
// An unknown level ranks above restricted so that malformed data is never
// treated as safe to display.
func (l SensitivityLevel) AtLeast(other SensitivityLevel) bool {
	lr, ok := sensitivityRank[l]
	if !ok {
		return true
	}
	or, ok := sensitivityRank[other]
	if !ok {
		return false
	}
	return lr >= or
}

// AccessLevel defines who may see a story at all.
type AccessLevel string

const (
	AccessPublic     AccessLevel = "public"
	AccessCommunity  AccessLevel = "community"
	AccessRestricted AccessLevel = "restricted"
)

// Story represents a published piece of community content.
// Authoring surfaces create and edit these records; the placement engine
// only ever reads them and writes its own PlacementAssignment rows.
type Story struct {
	ID            uint          `gorm:"primarykey" json:"id"`
	Title         string        `gorm:"not null" json:"title"`
	Content       string        `gorm:"type:text" json:"content"`
	Category      StoryCategory `gorm:"type:varchar(50);index;not null" json:"category"`
	Theme         string        `gorm:"type:varchar(100);index" json:"theme"` // emotional/topical theme tag, e.g. "resilience"

	ContributorID *uint        `gorm:"index" json:"contributor_id,omitempty"`
	Contributor   *Contributor `gorm:"foreignKey:ContributorID" json:"contributor,omitempty"`

	SensitivityLevel SensitivityLevel `gorm:"type:varchar(20);default:'low';not null" json:"sensitivity_level"`
	AccessLevel      AccessLevel      `gorm:"type:varchar(20);default:'public';not null" json:"access_level"`

	IsPublic                      bool `gorm:"default:true" json:"is_public"`
	IsFeatured                    bool `gorm:"default:false" json:"is_featured"`
	IsVerified                    bool `gorm:"default:false" json:"is_verified"`
	ContainsTraditionalKnowledge  bool `gorm:"default:false" json:"contains_traditional_knowledge"`
	ElderApprovalRequired         bool `gorm:"default:false" json:"elder_approval_required"`
	ElderApprovalGiven            bool `gorm:"default:false" json:"elder_approval_given"`

	ElderApprovalDate *time.Time `json:"elder_approval_date,omitempty"`

	Views  int `gorm:"default:0" json:"views"`
	Shares int `gorm:"default:0" json:"shares"`
	Likes  int `gorm:"default:0" json:"likes"`

	Media []MediaItem `gorm:"foreignKey:StoryID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"media,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Story model.
func (Story) TableName() string {
	return "stories"
}

// EngagementTotal returns the weighted raw engagement count
// (views x1, shares x3, likes x2). Counters below zero are treated as zero.
func (s *Story) EngagementTotal() int {
	views, shares, likes := s.Views, s.Shares, s.Likes
	if views < 0 {
		views = 0
	}
	if shares < 0 {
		shares = 0
	}
	if likes < 0 {
		likes = 0
	}
	return views + shares*3 + likes*2
}

// AgeDays returns the story's age in whole days at the given reference time.
// A zero CreatedAt reports -1 so callers can fall back to neutral handling.
func (s *Story) AgeDays(now time.Time) int {
	if s.CreatedAt.IsZero() {
		return -1
	}
	age := now.Sub(s.CreatedAt)
	if age < 0 {
		return 0
	}
	return int(age.Hours() / 24)
}

// HasMedia reports whether the story has at least one attached media item.
func (s *Story) HasMedia() bool {
	return len(s.Media) > 0
}

// ElderAuthored reports whether the story's contributor is a recognised elder.
func (s *Story) ElderAuthored() bool {
	return s.Contributor != nil && s.Contributor.IsElder
}

// AutoIncludeEligible is the canonical computed form of the legacy
// "auto_include" flag: a story qualifies for automatic placement
// consideration when it is public, publicly accessible and not restricted.
// Unknown sensitivity levels count as restricted. It is derived from stored
// fields and never persisted, so call sites cannot drift out of sync with
// the record.
func (s *Story) AutoIncludeEligible() bool {
	return s.IsPublic &&
		s.AccessLevel == AccessPublic &&
		!s.SensitivityLevel.AtLeast(SensitivityRestricted)
}

// ReportWorthy is the canonical computed form of the legacy
// "report_worthy" flag: verified or featured stories with some engagement.
func (s *Story) ReportWorthy() bool {
	return (s.IsVerified || s.IsFeatured) && s.EngagementTotal() > 0
}
