package services

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Acurioustractor/palm-island-repository-sub002/models"
)

// Placement rule set: the declarative source of truth for what goes where on
// the site. A rule is data, not code. The set is loaded once, validated, and
// immutable for the duration of a run.

// StoryFilters is the conjunction of optional eligibility predicates a rule
// can apply before scoring. Every field is explicit and typed; a misspelled
// key in a rules file fails at load time, never silently at runtime.
type StoryFilters struct {
	Categories           []models.StoryCategory `yaml:"categories" json:"categories,omitempty"`
	ExcludeCategories    []models.StoryCategory `yaml:"exclude_categories" json:"exclude_categories,omitempty"`
	MinQualityScore      float64                `yaml:"min_quality_score" json:"min_quality_score,omitempty"`
	MinEngagementScore   float64                `yaml:"min_engagement_score" json:"min_engagement_score,omitempty"`
	MinCulturalScore     float64                `yaml:"min_cultural_score" json:"min_cultural_score,omitempty"`
	RequireVerified      bool                   `yaml:"require_verified" json:"require_verified,omitempty"`
	RequireMedia         bool                   `yaml:"require_media" json:"require_media,omitempty"`
	RequireElderAuthor   bool                   `yaml:"require_elder_author" json:"require_elder_author,omitempty"`
	RequireElderApproval bool                   `yaml:"require_elder_approval" json:"require_elder_approval,omitempty"`
	ExcludeStoryIDs      []uint                 `yaml:"exclude_story_ids" json:"exclude_story_ids,omitempty"`
}

// Matches evaluates the filter conjunction against a story. Sub-score
// thresholds use the selection-independent scores (quality, engagement,
// cultural); diversity cannot be known before selection and is not a filter.
func (f *StoryFilters) Matches(story *models.Story, now time.Time) bool {
	if len(f.Categories) > 0 && !categoryIn(story.Category, f.Categories) {
		return false
	}
	if categoryIn(story.Category, f.ExcludeCategories) {
		return false
	}
	if f.MinQualityScore > 0 && QualityScore(story) < f.MinQualityScore {
		return false
	}
	if f.MinEngagementScore > 0 && EngagementScore(story, now) < f.MinEngagementScore {
		return false
	}
	if f.MinCulturalScore > 0 && CulturalScore(story) < f.MinCulturalScore {
		return false
	}
	if f.RequireVerified && !story.IsVerified {
		return false
	}
	if f.RequireMedia && !story.HasMedia() {
		return false
	}
	if f.RequireElderAuthor && !story.ElderAuthored() {
		return false
	}
	if f.RequireElderApproval && !story.ElderApprovalGiven {
		return false
	}
	for _, id := range f.ExcludeStoryIDs {
		if story.ID == id {
			return false
		}
	}
	return true
}

func categoryIn(category models.StoryCategory, list []models.StoryCategory) bool {
	for _, c := range list {
		if c == category {
			return true
		}
	}
	return false
}

// PlacementRule maps one (page, section) slot to its selection limit,
// eligibility filters, weight profile and selection constraints.
type PlacementRule struct {
	Page              string       `yaml:"page" json:"page"`
	Section           string       `yaml:"section" json:"section"`
	Limit             int          `yaml:"limit" json:"limit"`
	Filters           StoryFilters `yaml:"filters" json:"filters"`
	WeightProfile     string       `yaml:"weight_profile" json:"weight_profile,omitempty"` // empty means default
	UniqueContributor bool         `yaml:"unique_contributor" json:"unique_contributor"`
	MaxPerCategory    int          `yaml:"max_per_category" json:"max_per_category,omitempty"` // 0 means unlimited
	FeaturedFirst     bool         `yaml:"featured_first" json:"featured_first"`
	Description       string       `yaml:"description" json:"description,omitempty"`
}

// Slot returns the rule's slot identity as "page/section".
func (r *PlacementRule) Slot() string {
	return r.Page + "/" + r.Section
}

// RuleSet is an immutable, ordered collection of placement rules. The order
// is the order rules are processed in a run.
type RuleSet struct {
	rules []PlacementRule
}

// NewRuleSet builds a rule set from the given rules. The slice is copied so
// later mutation of the caller's slice cannot leak into a running engine.
func NewRuleSet(rules []PlacementRule) *RuleSet {
	copied := make([]PlacementRule, len(rules))
	copy(copied, rules)
	return &RuleSet{rules: copied}
}

// DefaultRuleSet defines the site's standard placements.
// Note: these are currently hardcoded; deployments can override them with a
// rules file via LoadRuleSet.
func DefaultRuleSet() *RuleSet {
	return NewRuleSet([]PlacementRule{
		{
			Page: "home", Section: "featured", Limit: 3,
			Filters:           StoryFilters{MinQualityScore: 60},
			UniqueContributor: true,
			FeaturedFirst:     true,
			Description:       "Hero stories on the landing page; strongest quality signals, one per contributor.",
		},
		{
			Page: "home", Section: "recent", Limit: 6,
			WeightProfile:  "fresh_voices",
			MaxPerCategory: 2,
			Description:    "Latest community voices, balanced across categories.",
		},
		{
			Page: "home", Section: "trending", Limit: 5,
			WeightProfile:     "trending",
			UniqueContributor: true,
			Description:       "Stories the community is engaging with right now.",
		},
		{
			Page: "culture", Section: "featured", Limit: 4,
			Filters: StoryFilters{
				Categories: []models.StoryCategory{models.CategoryCulturalHeritage, models.CategoryElderWisdom},
			},
			WeightProfile: "cultural_focus",
			FeaturedFirst: true,
			Description:   "Cultural heritage and elder wisdom, weighted toward cultural standing.",
		},
		{
			Page: "culture", Section: "stories", Limit: 8,
			Filters: StoryFilters{
				ExcludeCategories: []models.StoryCategory{models.CategoryCommunityEvent},
			},
			WeightProfile:  "cultural_focus",
			MaxPerCategory: 3,
			Description:    "Broader cultural storytelling strand.",
		},
		{
			Page: "elders", Section: "wisdom", Limit: 5,
			Filters: StoryFilters{
				Categories:         []models.StoryCategory{models.CategoryElderWisdom},
				RequireElderAuthor: true,
			},
			WeightProfile:     "cultural_focus",
			UniqueContributor: true,
			Description:       "Elder-authored wisdom, one story per elder.",
		},
		{
			Page: "achievements", Section: "highlights", Limit: 6,
			Filters: StoryFilters{
				Categories:      []models.StoryCategory{models.CategoryAchievement},
				RequireVerified: true,
			},
			FeaturedFirst: true,
			Description:   "Verified community achievements.",
		},
		{
			Page: "youth", Section: "voices", Limit: 6,
			Filters: StoryFilters{
				Categories: []models.StoryCategory{models.CategoryYouthVoice, models.CategoryCommunityStory},
			},
			WeightProfile:     "fresh_voices",
			UniqueContributor: true,
			MaxPerCategory:    4,
			Description:       "Young storytellers, favouring fresh and varied voices.",
		},
		{
			Page: "events", Section: "recent", Limit: 4,
			Filters: StoryFilters{
				Categories:   []models.StoryCategory{models.CategoryCommunityEvent},
				RequireMedia: true,
			},
			Description: "Recent community events with photos or video.",
		},
	})
}

// LoadRuleSet reads a rule set from a YAML file. Decoding is strict: unknown
// or misspelled keys are an error at load time, per the rules-as-data design.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read placement rules file '%s': %w", path, err)
	}

	var doc struct {
		Rules []PlacementRule `yaml:"rules"`
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse placement rules file '%s': %w", path, err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("placement rules file '%s' defines no rules", path)
	}

	rs := NewRuleSet(doc.Rules)
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("placement rules file '%s' is invalid: %w", path, err)
	}
	log.Printf("INFO: [PlacementRules] Loaded %d placement rules from '%s'.", len(doc.Rules), path)
	return rs, nil
}

// Validate checks structural soundness of the rule set: positive limits,
// non-empty slots, no duplicate slots, known categories and known weight
// profiles. Errors here are configuration errors, caught before any run.
func (rs *RuleSet) Validate() error {
	seen := make(map[string]bool, len(rs.rules))
	validCategories := make(map[models.StoryCategory]bool)
	for _, c := range models.AllStoryCategories() {
		validCategories[c] = true
	}

	for i := range rs.rules {
		rule := &rs.rules[i]
		if rule.Page == "" || rule.Section == "" {
			return fmt.Errorf("rule %d: page and section are required", i)
		}
		if seen[rule.Slot()] {
			return fmt.Errorf("rule %d: duplicate slot '%s'", i, rule.Slot())
		}
		seen[rule.Slot()] = true
		if rule.Limit <= 0 {
			return fmt.Errorf("rule '%s': limit must be positive, got %d", rule.Slot(), rule.Limit)
		}
		if rule.MaxPerCategory < 0 {
			return fmt.Errorf("rule '%s': max_per_category cannot be negative", rule.Slot())
		}
		if _, ok := WeightProfile(rule.WeightProfile); !ok {
			return fmt.Errorf("rule '%s': unknown weight profile '%s'", rule.Slot(), rule.WeightProfile)
		}
		for _, c := range rule.Filters.Categories {
			if !validCategories[c] {
				return fmt.Errorf("rule '%s': unknown category '%s' in filters", rule.Slot(), c)
			}
		}
		for _, c := range rule.Filters.ExcludeCategories {
			if !validCategories[c] {
				return fmt.Errorf("rule '%s': unknown category '%s' in exclude filters", rule.Slot(), c)
			}
		}
	}
	return nil
}

// Rules returns the rules in processing order. The returned slice is a copy.
func (rs *RuleSet) Rules() []PlacementRule {
	copied := make([]PlacementRule, len(rs.rules))
	copy(copied, rs.rules)
	return copied
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Rule looks up the rule for a (page, section) slot.
func (rs *RuleSet) Rule(page, section string) (*PlacementRule, error) {
	for i := range rs.rules {
		if rs.rules[i].Page == page && rs.rules[i].Section == section {
			rule := rs.rules[i]
			return &rule, nil
		}
	}
	return nil, errors.New("no placement rule defined for slot '" + page + "/" + section + "'")
}

// RulesForPage returns every rule targeting the given page, in order.
func (rs *RuleSet) RulesForPage(page string) []PlacementRule {
	var matched []PlacementRule
	for _, rule := range rs.rules {
		if rule.Page == page {
			matched = append(matched, rule)
		}
	}
	return matched
}

// Pages lists the distinct pages covered by the rule set, in first-seen order.
func (rs *RuleSet) Pages() []string {
	seen := make(map[string]bool)
	var pages []string
	for _, rule := range rs.rules {
		if !seen[rule.Page] {
			seen[rule.Page] = true
			pages = append(pages, rule.Page)
		}
	}
	return pages
}

// SectionsForPage lists the sections defined for a page, in rule order.
func (rs *RuleSet) SectionsForPage(page string) []string {
	var sections []string
	for _, rule := range rs.rules {
		if rule.Page == page {
			sections = append(sections, rule.Section)
		}
	}
	return sections
}
