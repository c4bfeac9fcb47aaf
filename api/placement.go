package api

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Acurioustractor/palm-island-repository-sub002/models"
	"github.com/Acurioustractor/palm-island-repository-sub002/services"
	"github.com/Acurioustractor/palm-island-repository-sub002/utils"
)

// runInProgress guards against overlapping placement runs triggered through
// the API. Each run performs full slot overwrites, so two concurrent runs
// against the same repository could interleave inconsistently.
var runInProgress atomic.Bool

// RunPlacementHandler handles POST /api/admin/placement/run. It executes one
// full placement run synchronously and returns the structured run report.
func (h *APIHandler) RunPlacementHandler(c *gin.Context) {
	if !runInProgress.CompareAndSwap(false, true) {
		utils.SendJSONError(c, http.StatusConflict, "A placement run is already in progress.", nil)
		return
	}
	defer runInProgress.Store(false)

	report, err := h.placementService.RunPlacement(c.Request.Context())
	if err != nil {
		// The report still carries whatever the run got through before aborting.
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "Placement run aborted.",
			"report": report,
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetPlacementsHandler handles GET /api/placements/:page/:section — the read
// surface for the rendering layer. Assignments come back rank ascending.
func (h *APIHandler) GetPlacementsHandler(c *gin.Context) {
	page := c.Param("page")
	section := c.Param("section")
	if page == "" || section == "" {
		utils.SendJSONError(c, http.StatusBadRequest, "Page and section are required.", nil)
		return
	}

	assignments, err := h.assignmentRepo.GetForSlot(page, section)
	if err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to retrieve placements.", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"page":        page,
		"section":     section,
		"assignments": assignments,
		"count":       len(assignments),
	})
}

// GetPlacementRunHandler handles GET /api/admin/placement/runs/:runID, the
// audit view of everything one placement run wrote, with each assignment's
// stored score breakdown.
func (h *APIHandler) GetPlacementRunHandler(c *gin.Context) {
	runID := c.Param("runID")
	if runID == "" {
		utils.SendJSONError(c, http.StatusBadRequest, "Run ID is required.", nil)
		return
	}

	assignments, err := h.assignmentRepo.GetByRunID(runID)
	if err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to retrieve run assignments.", err)
		return
	}
	if len(assignments) == 0 {
		utils.SendJSONError(c, http.StatusNotFound, "No assignments recorded for this run.", nil)
		return
	}

	items := make([]gin.H, 0, len(assignments))
	for _, assignment := range assignments {
		items = append(items, gin.H{
			"story_id":  assignment.StoryID,
			"page":      assignment.Page,
			"section":   assignment.Section,
			"rank":      assignment.Rank,
			"scores":    assignment.Scores(),
			"placed_at": assignment.PlacedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":      runID,
		"assignments": items,
		"count":       len(items),
	})
}

// PreviewPlacementsHandler handles GET /api/admin/placement/preview/:page/:section.
// It filters, gates and ranks the current candidates for one slot without
// writing anything, so curators can see what the next run would consider.
// Selection constraints (contributor uniqueness, category quotas) are not
// applied; the preview shows the pre-constraint ordering.
func (h *APIHandler) PreviewPlacementsHandler(c *gin.Context) {
	page := c.Param("page")
	section := c.Param("section")
	rule, err := h.placementService.RuleSet().Rule(page, section)
	if err != nil {
		utils.SendJSONError(c, http.StatusNotFound, "No placement rule defined for this slot.", err)
		return
	}
	weights, ok := services.WeightProfile(rule.WeightProfile)
	if !ok {
		utils.SendJSONError(c, http.StatusInternalServerError, "Placement rule references an unknown weight profile.", nil)
		return
	}

	stories, err := h.storyRepo.GetCandidateStories()
	if err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to load candidate stories.", err)
		return
	}

	now := time.Now()
	var eligible []*models.Story
	for _, story := range stories {
		if story == nil || story.ID == 0 || !rule.Filters.Matches(story, now) {
			continue
		}
		if decision := services.CanPlaceInContext(story, page); !decision.Allowed {
			continue
		}
		eligible = append(eligible, story)
	}

	ranked := services.RankStories(eligible, weights, now)
	preview := make([]gin.H, 0, len(ranked))
	for i, story := range ranked {
		preview = append(preview, gin.H{
			"rank":   i + 1,
			"story":  story,
			"scores": services.TotalScore(story, weights, nil, now),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"page":    page,
		"section": section,
		"limit":   rule.Limit,
		"preview": preview,
	})
}

// ClearPlacementsHandler handles DELETE /api/admin/placement/slots/:page/:section,
// the manual override for pulling a slot's placements ahead of the next run.
func (h *APIHandler) ClearPlacementsHandler(c *gin.Context) {
	page := c.Param("page")
	section := c.Param("section")
	if page == "" || section == "" {
		utils.SendJSONError(c, http.StatusBadRequest, "Page and section are required.", nil)
		return
	}
	if err := h.assignmentRepo.DeleteForSlot(page, section); err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to clear placements.", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": page, "section": section, "cleared": true})
}

// ListPlacementRulesHandler handles GET /api/admin/placement/rules, exposing
// the immutable rule set and its page/section topology for the admin screens.
func (h *APIHandler) ListPlacementRulesHandler(c *gin.Context) {
	rules := h.placementService.RuleSet()
	pages := make(map[string][]string)
	for _, page := range rules.Pages() {
		pages[page] = rules.SectionsForPage(page)
	}
	c.JSON(http.StatusOK, gin.H{
		"rules": rules.Rules(),
		"pages": pages,
	})
}
