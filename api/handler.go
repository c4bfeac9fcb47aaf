package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Acurioustractor/palm-island-repository-sub002/models"
	"github.com/Acurioustractor/palm-island-repository-sub002/repository"
	"github.com/Acurioustractor/palm-island-repository-sub002/services"
	"github.com/Acurioustractor/palm-island-repository-sub002/utils"
)

// APIHandler holds the dependencies for all HTTP handlers.
type APIHandler struct {
	storyRepo        repository.StoryRepository
	contributorRepo  repository.ContributorRepository
	assignmentRepo   repository.AssignmentRepository
	placementService services.PlacementService
}

// NewAPIHandler creates a new APIHandler with its dependencies.
func NewAPIHandler(
	storyRepo repository.StoryRepository,
	contributorRepo repository.ContributorRepository,
	assignmentRepo repository.AssignmentRepository,
	placementService services.PlacementService,
) *APIHandler {
	return &APIHandler{
		storyRepo:        storyRepo,
		contributorRepo:  contributorRepo,
		assignmentRepo:   assignmentRepo,
		placementService: placementService,
	}
}

// StoryRequest is the payload for creating or updating a story from the
// authoring/editing screens.
type StoryRequest struct {
	Title                        string                  `json:"title" binding:"required"`
	Content                      string                  `json:"content"`
	Category                     models.StoryCategory    `json:"category" binding:"required"`
	Theme                        string                  `json:"theme"`
	ContributorID                *uint                   `json:"contributor_id"`
	SensitivityLevel             models.SensitivityLevel `json:"sensitivity_level"`
	AccessLevel                  models.AccessLevel      `json:"access_level"`
	IsPublic                     *bool                   `json:"is_public"`
	IsFeatured                   bool                    `json:"is_featured"`
	IsVerified                   bool                    `json:"is_verified"`
	ContainsTraditionalKnowledge bool                    `json:"contains_traditional_knowledge"`
	ElderApprovalRequired        bool                    `json:"elder_approval_required"`
	ElderApprovalGiven           bool                    `json:"elder_approval_given"`
	ElderApprovalDate            *string                 `json:"elder_approval_date"` // YYYY-MM-DD
}

// applyTo copies the request fields onto a story record.
func (req *StoryRequest) applyTo(story *models.Story) error {
	story.Title = req.Title
	story.Content = req.Content
	story.Category = req.Category
	story.Theme = req.Theme
	story.ContributorID = req.ContributorID
	if req.SensitivityLevel != "" {
		story.SensitivityLevel = req.SensitivityLevel
	}
	if req.AccessLevel != "" {
		story.AccessLevel = req.AccessLevel
	}
	if req.IsPublic != nil {
		story.IsPublic = *req.IsPublic
	}
	story.IsFeatured = req.IsFeatured
	story.IsVerified = req.IsVerified
	story.ContainsTraditionalKnowledge = req.ContainsTraditionalKnowledge
	story.ElderApprovalRequired = req.ElderApprovalRequired
	story.ElderApprovalGiven = req.ElderApprovalGiven
	if req.ElderApprovalDate != nil && *req.ElderApprovalDate != "" {
		approvalDate, err := utils.ParseDate(*req.ElderApprovalDate)
		if err != nil {
			return err
		}
		story.ElderApprovalDate = &approvalDate
	}
	return nil
}

// CreateStoryHandler handles POST /api/stories.
func (h *APIHandler) CreateStoryHandler(c *gin.Context) {
	var req StoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendJSONError(c, http.StatusBadRequest, "Invalid story payload.", err)
		return
	}

	story := &models.Story{}
	if err := req.applyTo(story); err != nil {
		utils.SendJSONError(c, http.StatusBadRequest, "Invalid elder approval date; expected YYYY-MM-DD.", err)
		return
	}
	if err := h.storyRepo.CreateStory(story); err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to create story.", err)
		return
	}
	c.JSON(http.StatusCreated, story)
}

// GetStoryHandler handles GET /api/stories/:storyID.
func (h *APIHandler) GetStoryHandler(c *gin.Context) {
	storyID, ok := utils.ParseUintParam(c, "storyID")
	if !ok {
		return
	}
	story, err := h.storyRepo.GetStoryByID(storyID)
	if err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to retrieve story.", err)
		return
	}
	if story == nil {
		utils.SendJSONError(c, http.StatusNotFound, "Story not found.", nil)
		return
	}
	c.JSON(http.StatusOK, story)
}

// ListStoriesHandler handles GET /api/stories with optional category, limit
// and offset query parameters. The "placeable" and "report_worthy" flags
// filter on the stories' computed eligibility properties, for the curation
// screens.
func (h *APIHandler) ListStoriesHandler(c *gin.Context) {
	category := models.StoryCategory(c.Query("category"))
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	placeableOnly := c.Query("placeable") == "true"
	reportWorthyOnly := c.Query("report_worthy") == "true"

	stories, err := h.storyRepo.ListStories(category, limit, offset)
	if err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to list stories.", err)
		return
	}
	if placeableOnly || reportWorthyOnly {
		filtered := make([]*models.Story, 0, len(stories))
		for _, story := range stories {
			if placeableOnly && !story.AutoIncludeEligible() {
				continue
			}
			if reportWorthyOnly && !story.ReportWorthy() {
				continue
			}
			filtered = append(filtered, story)
		}
		stories = filtered
	}
	c.JSON(http.StatusOK, gin.H{"stories": stories, "count": len(stories)})
}

// UpdateStoryHandler handles PUT /api/stories/:storyID.
func (h *APIHandler) UpdateStoryHandler(c *gin.Context) {
	storyID, ok := utils.ParseUintParam(c, "storyID")
	if !ok {
		return
	}
	var req StoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendJSONError(c, http.StatusBadRequest, "Invalid story payload.", err)
		return
	}

	story, err := h.storyRepo.GetStoryByID(storyID)
	if err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to retrieve story.", err)
		return
	}
	if story == nil {
		utils.SendJSONError(c, http.StatusNotFound, "Story not found.", nil)
		return
	}
	if err := req.applyTo(story); err != nil {
		utils.SendJSONError(c, http.StatusBadRequest, "Invalid elder approval date; expected YYYY-MM-DD.", err)
		return
	}
	if err := h.storyRepo.UpdateStory(story); err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to update story.", err)
		return
	}
	c.JSON(http.StatusOK, story)
}

// DeleteStoryHandler handles DELETE /api/stories/:storyID. The "hard" query
// parameter requests permanent deletion.
func (h *APIHandler) DeleteStoryHandler(c *gin.Context) {
	storyID, ok := utils.ParseUintParam(c, "storyID")
	if !ok {
		return
	}
	hardDelete := c.Query("hard") == "true"
	if err := h.storyRepo.DeleteStory(storyID, hardDelete); err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to delete story.", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": storyID, "hard": hardDelete})
}

// EngagementHandler handles POST /api/stories/:storyID/view|share|like,
// the site glue that feeds the engagement counters the scoring model reads.
func (h *APIHandler) EngagementHandler(counter string) gin.HandlerFunc {
	return func(c *gin.Context) {
		storyID, ok := utils.ParseUintParam(c, "storyID")
		if !ok {
			return
		}
		if err := h.storyRepo.IncrementEngagement(storyID, counter); err != nil {
			utils.SendJSONError(c, http.StatusInternalServerError, "Failed to record engagement.", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"story_id": storyID, "counter": counter})
	}
}

// StoryProtocolHandler handles GET /api/stories/:storyID/protocol, the audit
// view of a story's cultural-protocol standing.
func (h *APIHandler) StoryProtocolHandler(c *gin.Context) {
	storyID, ok := utils.ParseUintParam(c, "storyID")
	if !ok {
		return
	}
	story, err := h.storyRepo.GetStoryByID(storyID)
	if err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to retrieve story.", err)
		return
	}
	if story == nil {
		utils.SendJSONError(c, http.StatusNotFound, "Story not found.", nil)
		return
	}
	response := gin.H{"protocol": services.StoryProtocolStatus(story, time.Now())}
	if story.ElderApprovalDate != nil {
		response["elder_approval_date"] = utils.FormatDate(*story.ElderApprovalDate)
	}
	c.JSON(http.StatusOK, response)
}

// ContributorRequest is the payload for creating a contributor.
type ContributorRequest struct {
	Name              string `json:"name" binding:"required"`
	IsElder           bool   `json:"is_elder"`
	IsCulturalAdvisor bool   `json:"is_cultural_advisor"`
}

// CreateContributorHandler handles POST /api/contributors.
func (h *APIHandler) CreateContributorHandler(c *gin.Context) {
	var req ContributorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendJSONError(c, http.StatusBadRequest, "Invalid contributor payload.", err)
		return
	}
	contributor := &models.Contributor{
		Name:              req.Name,
		IsElder:           req.IsElder,
		IsCulturalAdvisor: req.IsCulturalAdvisor,
	}
	if err := h.contributorRepo.CreateContributor(contributor); err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to create contributor.", err)
		return
	}
	c.JSON(http.StatusCreated, contributor)
}

// GetContributorHandler handles GET /api/contributors/:contributorID.
func (h *APIHandler) GetContributorHandler(c *gin.Context) {
	contributorID, ok := utils.ParseUintParam(c, "contributorID")
	if !ok {
		return
	}
	contributor, err := h.contributorRepo.GetContributorByID(contributorID)
	if err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to retrieve contributor.", err)
		return
	}
	if contributor == nil {
		utils.SendJSONError(c, http.StatusNotFound, "Contributor not found.", nil)
		return
	}
	c.JSON(http.StatusOK, contributor)
}

// ListContributorsHandler handles GET /api/contributors.
func (h *APIHandler) ListContributorsHandler(c *gin.Context) {
	contributors, err := h.contributorRepo.ListContributors()
	if err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to list contributors.", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contributors": contributors, "count": len(contributors)})
}

// queryInt reads an integer query parameter with a default.
func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		log.Printf("WARN: [API] Invalid '%s' query parameter '%s'; using default %d.", name, raw, fallback)
		return fallback
	}
	return value
}
