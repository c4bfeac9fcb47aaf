package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Acurioustractor/palm-island-repository-sub002/models"
	"github.com/Acurioustractor/palm-island-repository-sub002/repository"
)

const (
	repoRetryAttempts = 3
	repoRetryDelay    = 100 * time.Millisecond
)

// PlacementService runs the story scoring and placement engine: one batch
// pass over the rule set, deciding which stories fill every (page, section)
// slot and in what order.
type PlacementService interface {
	RunPlacement(ctx context.Context) (*models.PlacementRunReport, error)
	RuleSet() *RuleSet
}

// placementService implements PlacementService. Rule processing is strictly
// sequential within a run: diversity accounting and category quotas are
// scoped per rule and must not leak across rules. Two runs must not execute
// concurrently against the same repository; that exclusion is the caller's
// responsibility (one operator-triggered process at a time).
type placementService struct {
	storyRepo      repository.StoryRepository
	assignmentRepo repository.AssignmentRepository
	rules          *RuleSet
	audit          AuditSink
	now            func() time.Time
}

// NewPlacementService creates a new placement engine over the given
// repositories, immutable rule set and audit sink. A nil audit sink falls
// back to the log-backed sink; a nil clock falls back to time.Now.
func NewPlacementService(
	storyRepo repository.StoryRepository,
	assignmentRepo repository.AssignmentRepository,
	rules *RuleSet,
	audit AuditSink,
	clock func() time.Time,
) PlacementService {
	if audit == nil {
		audit = NewLogAuditSink()
	}
	if clock == nil {
		clock = time.Now
	}
	return &placementService{
		storyRepo:      storyRepo,
		assignmentRepo: assignmentRepo,
		rules:          rules,
		audit:          audit,
		now:            clock,
	}
}

// RuleSet exposes the engine's immutable rule set for introspection.
func (s *placementService) RuleSet() *RuleSet {
	return s.rules
}

// RunPlacement executes one full placement run. A repository failure on a
// single rule skips that rule and the run continues; only a failure to load
// the candidate set at all aborts the run. Cancellation is checked between
// rules, never mid-rule, so committed slots stay intact.
func (s *placementService) RunPlacement(ctx context.Context) (*models.PlacementRunReport, error) {
	runID := uuid.NewString()
	now := s.now()
	report := &models.PlacementRunReport{
		RunID:     runID,
		StartedAt: now,
	}
	log.Printf("INFO: [PlacementEngine] Starting placement run %s over %d rules.", runID, s.rules.Len())

	candidates, err := s.loadCandidates(runID, report)
	if err != nil {
		report.FinishedAt = s.now()
		log.Printf("ERROR: [PlacementEngine] Run %s aborted: %v", runID, err)
		return report, fmt.Errorf("placement run %s aborted: %w", runID, err)
	}

	for _, rule := range s.rules.Rules() {
		if ctx != nil && ctx.Err() != nil {
			report.Cancelled = true
			log.Printf("WARN: [PlacementEngine] Run %s cancelled after %d rules; committed slots are kept.", runID, report.RulesProcessed)
			break
		}
		ruleReport := s.processRule(runID, rule, candidates, now)
		report.RuleReports = append(report.RuleReports, ruleReport)
		if ruleReport.Skipped {
			report.RulesSkipped++
		} else {
			report.RulesProcessed++
			report.StoriesPlaced += ruleReport.Placed
		}
		report.StoriesDenied += len(ruleReport.Denied)
	}

	report.FinishedAt = s.now()
	log.Printf("INFO: [PlacementEngine] Run %s finished: %d rules processed, %d skipped, %d stories placed, %d denied.",
		runID, report.RulesProcessed, report.RulesSkipped, report.StoriesPlaced, report.StoriesDenied)
	return report, nil
}

// loadCandidates fetches the candidate set with bounded retries and excludes
// malformed records. A malformed story never aborts the run; it is dropped
// with an audited reason.
func (s *placementService) loadCandidates(runID string, report *models.PlacementRunReport) ([]*models.Story, error) {
	var stories []*models.Story
	err := withRetry(repoRetryAttempts, repoRetryDelay, func() error {
		var loadErr error
		stories, loadErr = s.storyRepo.GetCandidateStories()
		return loadErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate stories: %w", err)
	}

	valid := make([]*models.Story, 0, len(stories))
	for _, story := range stories {
		if story == nil || story.ID == 0 {
			s.audit.Record(AuditEvent{
				RunID:    runID,
				Action:   AuditActionStoryExcluded,
				Reason:   "malformed story record: missing id",
				Occurred: s.now(),
			})
			report.StoriesDenied++
			continue
		}
		valid = append(valid, story)
	}
	return valid, nil
}

// processRule runs the filter, gate, score, order, constrain and emit steps
// for one rule. Any failure here is contained to this rule.
func (s *placementService) processRule(runID string, rule PlacementRule, candidates []*models.Story, now time.Time) models.RuleReport {
	ruleReport := models.RuleReport{Page: rule.Page, Section: rule.Section}

	weights, ok := WeightProfile(rule.WeightProfile)
	if !ok {
		// Configuration error: fatal for this rule only.
		reason := fmt.Sprintf("unknown weight profile '%s'", rule.WeightProfile)
		log.Printf("ERROR: [PlacementEngine] Rule %s skipped: %s", rule.Slot(), reason)
		s.audit.Record(AuditEvent{
			RunID: runID, Page: rule.Page, Section: rule.Section,
			Action: AuditActionRuleSkipped, Reason: reason, Occurred: s.now(),
		})
		ruleReport.Skipped = true
		ruleReport.SkippedReason = reason
		return ruleReport
	}

	// Filter: rule eligibility predicates.
	var eligible []*models.Story
	for _, story := range candidates {
		if rule.Filters.Matches(story, now) {
			eligible = append(eligible, story)
		}
	}

	// Gate: cultural protocol, applied to every remaining candidate. Denials
	// are terminal for this slot and audited; warnings ride along.
	var gated []*models.Story
	for _, story := range eligible {
		decision := CanPlaceInContext(story, rule.Page)
		if !decision.Allowed {
			ruleReport.Denied = append(ruleReport.Denied, models.DeniedStory{
				StoryID: story.ID,
				Title:   story.Title,
				Reason:  decision.Reason,
			})
			s.audit.Record(AuditEvent{
				RunID: runID, StoryID: story.ID, Page: rule.Page, Section: rule.Section,
				Action: AuditActionPlacementDenied, Reason: decision.Reason, Occurred: s.now(),
			})
			continue
		}
		for _, warning := range decision.Warnings {
			note := fmt.Sprintf("story %d: %s", story.ID, warning)
			if !containsString(ruleReport.Warnings, note) {
				ruleReport.Warnings = append(ruleReport.Warnings, note)
			}
		}
		gated = append(gated, story)
	}
	ruleReport.Eligible = len(gated)

	if len(gated) == 0 {
		// Not an error: the slot is cleared and the run moves on.
		log.Printf("INFO: [PlacementEngine] Rule %s has no eligible stories; clearing slot.", rule.Slot())
	}

	// Score, order, constrain and select.
	assignments := s.selectForRule(runID, rule, weights, gated, now)
	ruleReport.Placed = len(assignments)

	// Commit: full overwrite of this slot, bounded retries. A failed commit
	// drops this rule's assignments for this run; the next full run retries.
	err := withRetry(repoRetryAttempts, repoRetryDelay, func() error {
		return s.assignmentRepo.ReplaceForSlot(rule.Page, rule.Section, assignments)
	})
	if err != nil {
		reason := fmt.Sprintf("failed to commit assignments: %v", err)
		log.Printf("ERROR: [PlacementEngine] Rule %s skipped: %s", rule.Slot(), reason)
		s.audit.Record(AuditEvent{
			RunID: runID, Page: rule.Page, Section: rule.Section,
			Action: AuditActionRuleSkipped, Reason: reason, Occurred: s.now(),
		})
		ruleReport.Placed = 0
		ruleReport.Skipped = true
		ruleReport.SkippedReason = reason
		return ruleReport
	}

	log.Printf("INFO: [PlacementEngine] Rule %s: %d placed, %d denied, %d eligible.",
		rule.Slot(), ruleReport.Placed, len(ruleReport.Denied), ruleReport.Eligible)
	return ruleReport
}

// selectForRule performs constrained greedy selection: at each step the
// highest-scoring remaining candidate (given the stories already selected
// into this slot) that passes the unique-contributor and category-quota
// constraints is accepted, until the limit is reached or candidates run out.
// The diversity accumulator is threaded through explicitly, so each emitted
// score breakdown reflects the selection state at the moment of acceptance,
// and totals are non-increasing down the ranks within each featured group.
func (s *placementService) selectForRule(runID string, rule PlacementRule, weights ScoreWeights, candidates []*models.Story, now time.Time) []*models.PlacementAssignment {
	var pools [][]*models.Story
	if rule.FeaturedFirst {
		var featured, rest []*models.Story
		for _, story := range candidates {
			if story.IsFeatured {
				featured = append(featured, story)
			} else {
				rest = append(rest, story)
			}
		}
		pools = [][]*models.Story{featured, rest}
	} else {
		pools = [][]*models.Story{candidates}
	}

	var (
		selected         []*models.Story
		assignments      []*models.PlacementAssignment
		usedContributors = make(map[uint]bool)
		categoryCounts   = make(map[models.StoryCategory]int)
	)

	placedAt := s.now()
	for _, pool := range pools {
		remaining := make([]*models.Story, len(pool))
		copy(remaining, pool)

		for len(assignments) < rule.Limit && len(remaining) > 0 {
			bestIdx := -1
			var bestSet models.ScoreSet
			for i, story := range remaining {
				if rule.UniqueContributor && story.ContributorID != nil && usedContributors[*story.ContributorID] {
					continue
				}
				if rule.MaxPerCategory > 0 && categoryCounts[story.Category] >= rule.MaxPerCategory {
					continue
				}
				set := TotalScore(story, weights, selected, now)
				if bestIdx == -1 || set.Total > bestSet.Total ||
					(set.Total == bestSet.Total && story.ID < remaining[bestIdx].ID) {
					bestIdx = i
					bestSet = set
				}
			}
			if bestIdx == -1 {
				break // every remaining candidate is blocked by a constraint
			}

			story := remaining[bestIdx]
			remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
			selected = append(selected, story)
			if story.ContributorID != nil {
				usedContributors[*story.ContributorID] = true
			}
			categoryCounts[story.Category]++

			assignments = append(assignments, &models.PlacementAssignment{
				StoryID:         story.ID,
				Page:            rule.Page,
				Section:         rule.Section,
				Rank:            len(assignments) + 1,
				QualityScore:    bestSet.Quality,
				EngagementScore: bestSet.Engagement,
				CulturalScore:   bestSet.Cultural,
				RecencyScore:    bestSet.Recency,
				DiversityScore:  bestSet.Diversity,
				TotalScore:      bestSet.Total,
				RunID:           runID,
				PlacedAt:        placedAt,
			})
		}
		if len(assignments) >= rule.Limit {
			break
		}
	}
	return assignments
}

// RankStories scores and orders a candidate list for one slot without
// selection constraints, used by preview screens. The returned order matches
// what the engine would consider before constraint enforcement.
func RankStories(stories []*models.Story, weights ScoreWeights, now time.Time) []*models.Story {
	ranked := make([]*models.Story, len(stories))
	copy(ranked, stories)
	sort.SliceStable(ranked, func(i, j int) bool {
		si := TotalScore(ranked[i], weights, nil, now).Total
		sj := TotalScore(ranked[j], weights, nil, now).Total
		if si != sj {
			return si > sj
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

// withRetry invokes fn up to attempts times with a fixed pause between
// tries, returning the last error. Retries happen at the repository-call
// boundary only, never mid-ranking.
func withRetry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			log.Printf("WARN: [PlacementEngine] Repository call failed (attempt %d/%d): %v. Retrying.", i+1, attempts, err)
			time.Sleep(delay)
		}
	}
	return err
}
