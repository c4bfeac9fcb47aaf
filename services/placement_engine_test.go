package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Acurioustractor/palm-island-repository-sub002/models"
)

// MockStoryRepository is a mock type for the StoryRepository interface.
type MockStoryRepository struct {
	mock.Mock
}

func (m *MockStoryRepository) GetCandidateStories() ([]*models.Story, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Story), args.Error(1)
}

func (m *MockStoryRepository) CreateStory(story *models.Story) error {
	args := m.Called(story)
	return args.Error(0)
}

func (m *MockStoryRepository) GetStoryByID(storyID uint) (*models.Story, error) {
	args := m.Called(storyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Story), args.Error(1)
}

func (m *MockStoryRepository) ListStories(category models.StoryCategory, limit, offset int) ([]*models.Story, error) {
	args := m.Called(category, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Story), args.Error(1)
}

func (m *MockStoryRepository) UpdateStory(story *models.Story) error {
	args := m.Called(story)
	return args.Error(0)
}

func (m *MockStoryRepository) DeleteStory(storyID uint, hardDelete bool) error {
	args := m.Called(storyID, hardDelete)
	return args.Error(0)
}

func (m *MockStoryRepository) IncrementEngagement(storyID uint, column string) error {
	args := m.Called(storyID, column)
	return args.Error(0)
}

// MockAssignmentRepository is a mock type for the AssignmentRepository interface.
type MockAssignmentRepository struct {
	mock.Mock
}

func (m *MockAssignmentRepository) ReplaceForSlot(page, section string, assignments []*models.PlacementAssignment) error {
	args := m.Called(page, section, assignments)
	return args.Error(0)
}

func (m *MockAssignmentRepository) GetForSlot(page, section string) ([]*models.PlacementAssignment, error) {
	args := m.Called(page, section)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PlacementAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) GetByRunID(runID string) ([]*models.PlacementAssignment, error) {
	args := m.Called(runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PlacementAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) DeleteForSlot(page, section string) error {
	args := m.Called(page, section)
	return args.Error(0)
}

var engineNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return engineNow
}

// capturingAssignmentRepo records the last replacement per slot.
type capturingAssignmentRepo struct {
	MockAssignmentRepository
	slots map[string][]*models.PlacementAssignment
}

func newCapturingAssignmentRepo() *capturingAssignmentRepo {
	repo := &capturingAssignmentRepo{slots: make(map[string][]*models.PlacementAssignment)}
	repo.On("ReplaceForSlot", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			page := args.String(0)
			section := args.String(1)
			var assignments []*models.PlacementAssignment
			if args.Get(2) != nil {
				assignments = args.Get(2).([]*models.PlacementAssignment)
			}
			repo.slots[page+"/"+section] = assignments
		}).
		Return(nil)
	return repo
}

func publicStory(id uint, category models.StoryCategory, views int) *models.Story {
	return &models.Story{
		ID:               id,
		Title:            "Story",
		Category:         category,
		SensitivityLevel: models.SensitivityLow,
		AccessLevel:      models.AccessPublic,
		IsPublic:         true,
		Views:            views,
		CreatedAt:        engineNow.AddDate(0, 0, -10),
	}
}

func TestRunPlacement_BasicSelection(t *testing.T) {
	stories := []*models.Story{
		publicStory(1, models.CategoryCommunityStory, 5000),
		publicStory(2, models.CategoryAchievement, 800),
		publicStory(3, models.CategoryYouthVoice, 100),
		publicStory(4, models.CategoryCommunityEvent, 10),
	}
	storyRepo := new(MockStoryRepository)
	storyRepo.On("GetCandidateStories").Return(stories, nil)
	assignmentRepo := newCapturingAssignmentRepo()

	rules := NewRuleSet([]PlacementRule{
		{Page: "home", Section: "recent", Limit: 3},
	})
	sink := NewMemoryAuditSink()
	engine := NewPlacementService(storyRepo, &assignmentRepo.MockAssignmentRepository, rules, sink, fixedClock)

	report, err := engine.RunPlacement(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.RulesProcessed)
	assert.Equal(t, 0, report.RulesSkipped)
	assert.Equal(t, 3, report.StoriesPlaced)

	placed := assignmentRepo.slots["home/recent"]
	require.Len(t, placed, 3)

	// Ranks are a dense 1-based sequence with non-increasing totals.
	for i, assignment := range placed {
		assert.Equal(t, i+1, assignment.Rank)
		assert.Equal(t, "home", assignment.Page)
		assert.Equal(t, "recent", assignment.Section)
		assert.NotEmpty(t, assignment.RunID)
		if i > 0 {
			assert.GreaterOrEqual(t, placed[i-1].TotalScore, assignment.TotalScore)
		}
	}
	// Highest engagement wins with otherwise identical stories.
	assert.Equal(t, uint(1), placed[0].StoryID)
}

func TestRunPlacement_RestrictedStoryNeverPlaced(t *testing.T) {
	restricted := publicStory(9, models.CategoryCulturalHeritage, 100000)
	restricted.SensitivityLevel = models.SensitivityRestricted

	stories := []*models.Story{
		publicStory(1, models.CategoryCommunityStory, 50),
		restricted,
	}
	storyRepo := new(MockStoryRepository)
	storyRepo.On("GetCandidateStories").Return(stories, nil)
	assignmentRepo := newCapturingAssignmentRepo()

	rules := NewRuleSet([]PlacementRule{
		{Page: "home", Section: "recent", Limit: 5},
	})
	sink := NewMemoryAuditSink()
	engine := NewPlacementService(storyRepo, &assignmentRepo.MockAssignmentRepository, rules, sink, fixedClock)

	report, err := engine.RunPlacement(context.Background())
	require.NoError(t, err)

	for _, assignment := range assignmentRepo.slots["home/recent"] {
		assert.NotEqual(t, uint(9), assignment.StoryID)
	}

	require.Len(t, report.RuleReports, 1)
	denied := report.RuleReports[0].Denied
	require.Len(t, denied, 1)
	assert.Equal(t, uint(9), denied[0].StoryID)
	assert.Equal(t, "Story contains restricted cultural content", denied[0].Reason)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, AuditActionPlacementDenied, events[0].Action)
	assert.Equal(t, uint(9), events[0].StoryID)
	assert.Equal(t, ReasonRestrictedContent, events[0].Reason)
}

func TestRunPlacement_FeaturedFirstOrdering(t *testing.T) {
	featured := publicStory(2, models.CategoryCommunityStory, 100)
	featured.IsFeatured = true
	popular := publicStory(1, models.CategoryAchievement, 100000) // higher raw score, not featured

	storyRepo := new(MockStoryRepository)
	storyRepo.On("GetCandidateStories").Return([]*models.Story{popular, featured}, nil)
	assignmentRepo := newCapturingAssignmentRepo()

	rules := NewRuleSet([]PlacementRule{
		{Page: "home", Section: "featured", Limit: 2, FeaturedFirst: true},
	})
	engine := NewPlacementService(storyRepo, &assignmentRepo.MockAssignmentRepository, rules, NewMemoryAuditSink(), fixedClock)

	_, err := engine.RunPlacement(context.Background())
	require.NoError(t, err)

	placed := assignmentRepo.slots["home/featured"]
	require.Len(t, placed, 2)
	assert.Equal(t, uint(2), placed[0].StoryID, "featured story ranks first regardless of raw score")
	assert.Equal(t, uint(1), placed[1].StoryID)
}

func TestRunPlacement_UniqueContributorConstraint(t *testing.T) {
	contributor := uint(5)
	first := publicStory(1, models.CategoryCommunityStory, 10000)
	first.ContributorID = &contributor
	second := publicStory(2, models.CategoryAchievement, 5000)
	second.ContributorID = &contributor
	third := publicStory(3, models.CategoryYouthVoice, 100)

	storyRepo := new(MockStoryRepository)
	storyRepo.On("GetCandidateStories").Return([]*models.Story{first, second, third}, nil)
	assignmentRepo := newCapturingAssignmentRepo()

	rules := NewRuleSet([]PlacementRule{
		{Page: "home", Section: "recent", Limit: 3, UniqueContributor: true},
	})
	engine := NewPlacementService(storyRepo, &assignmentRepo.MockAssignmentRepository, rules, NewMemoryAuditSink(), fixedClock)

	_, err := engine.RunPlacement(context.Background())
	require.NoError(t, err)

	placed := assignmentRepo.slots["home/recent"]
	require.Len(t, placed, 2)
	assert.Equal(t, uint(1), placed[0].StoryID)
	assert.Equal(t, uint(3), placed[1].StoryID, "second story by the same contributor is skipped")
}

func TestRunPlacement_CategoryQuotaOverridesScoreOrder(t *testing.T) {
	// Five eligible stories, three in category A and two in category B,
	// ranked A1 > A2 > B1 > A3 > B2 by engagement.
	a1 := publicStory(1, models.CategoryCommunityStory, 50000)
	a2 := publicStory(2, models.CategoryCommunityStory, 20000)
	b1 := publicStory(3, models.CategoryAchievement, 8000)
	a3 := publicStory(4, models.CategoryCommunityStory, 3000)
	b2 := publicStory(5, models.CategoryAchievement, 1000)

	storyRepo := new(MockStoryRepository)
	storyRepo.On("GetCandidateStories").Return([]*models.Story{a1, a2, b1, a3, b2}, nil)
	assignmentRepo := newCapturingAssignmentRepo()

	rules := NewRuleSet([]PlacementRule{
		{Page: "home", Section: "recent", Limit: 3, MaxPerCategory: 1},
	})
	engine := NewPlacementService(storyRepo, &assignmentRepo.MockAssignmentRepository, rules, NewMemoryAuditSink(), fixedClock)

	_, err := engine.RunPlacement(context.Background())
	require.NoError(t, err)

	// Quota allows one story per category: A1 takes the community_story
	// slot, B1 the achievement slot, and everything else is skipped even
	// though A2 outscores B1.
	placed := assignmentRepo.slots["home/recent"]
	require.Len(t, placed, 2)
	assert.Equal(t, uint(1), placed[0].StoryID)
	assert.Equal(t, uint(3), placed[1].StoryID)
}

func TestRunPlacement_Idempotence(t *testing.T) {
	stories := []*models.Story{
		publicStory(1, models.CategoryCommunityStory, 5000),
		publicStory(2, models.CategoryAchievement, 800),
		publicStory(3, models.CategoryYouthVoice, 100),
	}
	storyRepo := new(MockStoryRepository)
	storyRepo.On("GetCandidateStories").Return(stories, nil)
	assignmentRepo := newCapturingAssignmentRepo()

	rules := NewRuleSet([]PlacementRule{
		{Page: "home", Section: "recent", Limit: 3},
		{Page: "achievements", Section: "highlights", Limit: 2,
			Filters: StoryFilters{Categories: []models.StoryCategory{models.CategoryAchievement}}},
	})
	engine := NewPlacementService(storyRepo, &assignmentRepo.MockAssignmentRepository, rules, NewMemoryAuditSink(), fixedClock)

	_, err := engine.RunPlacement(context.Background())
	require.NoError(t, err)
	firstRun := snapshotSlots(assignmentRepo.slots)

	_, err = engine.RunPlacement(context.Background())
	require.NoError(t, err)
	secondRun := snapshotSlots(assignmentRepo.slots)

	assert.Equal(t, firstRun, secondRun, "identical data must produce identical placements")
}

type placedRef struct {
	StoryID uint
	Rank    int
}

func snapshotSlots(slots map[string][]*models.PlacementAssignment) map[string][]placedRef {
	snapshot := make(map[string][]placedRef, len(slots))
	for slot, assignments := range slots {
		refs := make([]placedRef, len(assignments))
		for i, a := range assignments {
			refs[i] = placedRef{StoryID: a.StoryID, Rank: a.Rank}
		}
		snapshot[slot] = refs
	}
	return snapshot
}

func TestRunPlacement_EmptyRuleClearsSlot(t *testing.T) {
	storyRepo := new(MockStoryRepository)
	storyRepo.On("GetCandidateStories").Return([]*models.Story{
		publicStory(1, models.CategoryCommunityStory, 100),
	}, nil)
	assignmentRepo := newCapturingAssignmentRepo()

	rules := NewRuleSet([]PlacementRule{
		{Page: "events", Section: "recent", Limit: 4,
			Filters: StoryFilters{Categories: []models.StoryCategory{models.CategoryCommunityEvent}}},
	})
	engine := NewPlacementService(storyRepo, &assignmentRepo.MockAssignmentRepository, rules, NewMemoryAuditSink(), fixedClock)

	report, err := engine.RunPlacement(context.Background())
	require.NoError(t, err)

	// Zero eligible candidates is not an error; the slot is overwritten empty.
	assert.Equal(t, 1, report.RulesProcessed)
	assert.Equal(t, 0, report.StoriesPlaced)
	captured, ok := assignmentRepo.slots["events/recent"]
	assert.True(t, ok, "slot must still be committed (cleared)")
	assert.Empty(t, captured)
}

func TestRunPlacement_UnknownWeightProfileSkipsRuleOnly(t *testing.T) {
	storyRepo := new(MockStoryRepository)
	storyRepo.On("GetCandidateStories").Return([]*models.Story{
		publicStory(1, models.CategoryCommunityStory, 100),
	}, nil)
	assignmentRepo := newCapturingAssignmentRepo()

	broken := PlacementRule{Page: "home", Section: "broken", Limit: 3, WeightProfile: "no_such_profile"}
	healthy := PlacementRule{Page: "home", Section: "recent", Limit: 3}
	rules := NewRuleSet([]PlacementRule{broken, healthy})

	sink := NewMemoryAuditSink()
	engine := NewPlacementService(storyRepo, &assignmentRepo.MockAssignmentRepository, rules, sink, fixedClock)

	report, err := engine.RunPlacement(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.RulesSkipped)
	assert.Equal(t, 1, report.RulesProcessed)
	assert.True(t, report.RuleReports[0].Skipped)
	assert.Contains(t, report.RuleReports[0].SkippedReason, "unknown weight profile")
	_, committed := assignmentRepo.slots["home/broken"]
	assert.False(t, committed, "a misconfigured rule must not touch its slot")

	var skippedEvents int
	for _, event := range sink.Events() {
		if event.Action == AuditActionRuleSkipped {
			skippedEvents++
		}
	}
	assert.Equal(t, 1, skippedEvents)
}

func TestRunPlacement_CommitFailureSkipsRuleAndContinues(t *testing.T) {
	storyRepo := new(MockStoryRepository)
	storyRepo.On("GetCandidateStories").Return([]*models.Story{
		publicStory(1, models.CategoryCommunityStory, 100),
	}, nil)

	assignmentRepo := new(MockAssignmentRepository)
	assignmentRepo.On("ReplaceForSlot", "home", "recent", mock.Anything).
		Return(errors.New("disk full"))
	assignmentRepo.On("ReplaceForSlot", "home", "trending", mock.Anything).
		Return(nil)

	rules := NewRuleSet([]PlacementRule{
		{Page: "home", Section: "recent", Limit: 3},
		{Page: "home", Section: "trending", Limit: 3},
	})
	engine := NewPlacementService(storyRepo, assignmentRepo, rules, NewMemoryAuditSink(), fixedClock)

	report, err := engine.RunPlacement(context.Background())
	require.NoError(t, err, "a single failed rule must not abort the run")

	assert.Equal(t, 1, report.RulesSkipped)
	assert.Equal(t, 1, report.RulesProcessed)
	assert.True(t, report.RuleReports[0].Skipped)
	assert.Zero(t, report.RuleReports[0].Placed)
	assert.False(t, report.RuleReports[1].Skipped)

	// The commit was retried up to the bounded attempt count.
	assignmentRepo.AssertNumberOfCalls(t, "ReplaceForSlot", repoRetryAttempts+1)
}

func TestRunPlacement_CandidateLoadFailureAbortsRun(t *testing.T) {
	storyRepo := new(MockStoryRepository)
	storyRepo.On("GetCandidateStories").Return(nil, errors.New("connection refused"))
	assignmentRepo := newCapturingAssignmentRepo()

	rules := NewRuleSet([]PlacementRule{{Page: "home", Section: "recent", Limit: 3}})
	engine := NewPlacementService(storyRepo, &assignmentRepo.MockAssignmentRepository, rules, NewMemoryAuditSink(), fixedClock)

	report, err := engine.RunPlacement(context.Background())
	assert.Error(t, err)
	assert.NotNil(t, report)
	assert.Zero(t, report.RulesProcessed)
	storyRepo.AssertNumberOfCalls(t, "GetCandidateStories", repoRetryAttempts)
}

func TestRunPlacement_MalformedStoryExcluded(t *testing.T) {
	storyRepo := new(MockStoryRepository)
	storyRepo.On("GetCandidateStories").Return([]*models.Story{
		{Title: "no id", IsPublic: true, AccessLevel: models.AccessPublic},
		publicStory(1, models.CategoryCommunityStory, 100),
	}, nil)
	assignmentRepo := newCapturingAssignmentRepo()

	rules := NewRuleSet([]PlacementRule{{Page: "home", Section: "recent", Limit: 3}})
	sink := NewMemoryAuditSink()
	engine := NewPlacementService(storyRepo, &assignmentRepo.MockAssignmentRepository, rules, sink, fixedClock)

	report, err := engine.RunPlacement(context.Background())
	require.NoError(t, err)

	placed := assignmentRepo.slots["home/recent"]
	require.Len(t, placed, 1)
	assert.Equal(t, uint(1), placed[0].StoryID)

	var excluded bool
	for _, event := range sink.Events() {
		if event.Action == AuditActionStoryExcluded {
			excluded = true
		}
	}
	assert.True(t, excluded, "malformed story exclusion must be audited")
	assert.Equal(t, 1, report.StoriesDenied)
}

func TestRunPlacement_CancellationBetweenRules(t *testing.T) {
	storyRepo := new(MockStoryRepository)
	storyRepo.On("GetCandidateStories").Return([]*models.Story{
		publicStory(1, models.CategoryCommunityStory, 100),
	}, nil)
	assignmentRepo := newCapturingAssignmentRepo()

	rules := NewRuleSet([]PlacementRule{
		{Page: "home", Section: "recent", Limit: 3},
		{Page: "home", Section: "trending", Limit: 3},
	})
	engine := NewPlacementService(storyRepo, &assignmentRepo.MockAssignmentRepository, rules, NewMemoryAuditSink(), fixedClock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before the first rule starts

	report, err := engine.RunPlacement(ctx)
	require.NoError(t, err)
	assert.True(t, report.Cancelled)
	assert.Zero(t, report.RulesProcessed)
	assert.Empty(t, assignmentRepo.slots)
}

func TestRankStories(t *testing.T) {
	popular := publicStory(1, models.CategoryAchievement, 10000)
	quietA := publicStory(3, models.CategoryCommunityStory, 100)
	quietB := publicStory(2, models.CategoryYouthVoice, 100)
	input := []*models.Story{quietA, popular, quietB}

	ranked := RankStories(input, DefaultWeights(), engineNow)
	require.Len(t, ranked, 3)
	assert.Equal(t, uint(1), ranked[0].ID)
	// quietA and quietB score identically; ties break on the lower ID.
	assert.Equal(t, uint(2), ranked[1].ID)
	assert.Equal(t, uint(3), ranked[2].ID)

	// The input slice is left untouched.
	assert.Equal(t, uint(3), input[0].ID)
	assert.Equal(t, uint(1), input[1].ID)
}

func TestRunPlacement_FeaturedAheadOfIdenticalNonFeatured(t *testing.T) {
	// Scenario A ordering check: two otherwise identical strong stories,
	// one featured, in a featured-first rule.
	featured := publicStory(1, models.CategoryCommunityStory, 1000)
	featured.Shares = 50
	featured.Likes = 200
	featured.CreatedAt = engineNow.AddDate(0, 0, -3)
	featured.IsFeatured = true
	featured.IsVerified = true

	plain := publicStory(2, models.CategoryAchievement, 1000)
	plain.Shares = 50
	plain.Likes = 200
	plain.CreatedAt = engineNow.AddDate(0, 0, -3)
	plain.IsVerified = true

	storyRepo := new(MockStoryRepository)
	storyRepo.On("GetCandidateStories").Return([]*models.Story{plain, featured}, nil)
	assignmentRepo := newCapturingAssignmentRepo()

	rules := NewRuleSet([]PlacementRule{
		{Page: "home", Section: "featured", Limit: 2, FeaturedFirst: true},
	})
	engine := NewPlacementService(storyRepo, &assignmentRepo.MockAssignmentRepository, rules, NewMemoryAuditSink(), fixedClock)

	_, err := engine.RunPlacement(context.Background())
	require.NoError(t, err)

	placed := assignmentRepo.slots["home/featured"]
	require.Len(t, placed, 2)
	assert.Equal(t, uint(1), placed[0].StoryID)
	assert.GreaterOrEqual(t, placed[0].QualityScore, 95.0)
	assert.Equal(t, 100.0, placed[0].RecencyScore)
	assert.Greater(t, placed[0].EngagementScore, 60.0)
}
