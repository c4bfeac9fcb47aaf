package repository

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/Acurioustractor/palm-island-repository-sub002/models"
)

// StoryRepository defines the interface for interacting with story records.
// The placement engine only reads candidates; the CRUD operations serve the
// admin editing surface.
type StoryRepository interface {
	GetCandidateStories() ([]*models.Story, error)
	CreateStory(story *models.Story) error
	GetStoryByID(storyID uint) (*models.Story, error)
	ListStories(category models.StoryCategory, limit, offset int) ([]*models.Story, error)
	UpdateStory(story *models.Story) error
	DeleteStory(storyID uint, hardDelete bool) error
	IncrementEngagement(storyID uint, column string) error
}

type storyRepository struct {
	db *gorm.DB
}

// NewStoryRepository creates a new instance of StoryRepository.
func NewStoryRepository(db *gorm.DB) StoryRepository {
	return &storyRepository{db: db}
}

// GetCandidateStories retrieves the full candidate set for a placement run,
// with contributor attributes and media joined in. No eligibility filtering
// happens here: the cultural protocol gate owns that decision, and it needs
// to see (and audit) the stories it denies.
func (r *storyRepository) GetCandidateStories() ([]*models.Story, error) {
	var stories []*models.Story
	err := r.db.Preload("Contributor").Preload("Media").Order("id asc").Find(&stories).Error
	if err != nil {
		log.Printf("ERROR: [StoryRepository] Failed to retrieve candidate stories: %v", err)
		return nil, fmt.Errorf("failed to retrieve candidate stories: %w", err)
	}
	log.Printf("INFO: [StoryRepository] Retrieved %d candidate stories.", len(stories))
	return stories, nil
}

// CreateStory creates a new story, including any attached media items.
func (r *storyRepository) CreateStory(story *models.Story) error {
	if story == nil {
		return errors.New("story cannot be nil")
	}
	if err := r.db.Create(story).Error; err != nil {
		log.Printf("ERROR: [StoryRepository] Failed to create story '%s': %v", story.Title, err)
		return fmt.Errorf("failed to create story '%s': %w", story.Title, err)
	}
	log.Printf("INFO: [StoryRepository] Successfully created story ID %d ('%s').", story.ID, story.Title)
	return nil
}

// GetStoryByID retrieves a story by its ID, preloading contributor and media.
// Returns (nil, nil) when no story exists, matching the repository convention.
func (r *storyRepository) GetStoryByID(storyID uint) (*models.Story, error) {
	var story models.Story
	err := r.db.Preload("Contributor").Preload("Media").First(&story, storyID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("INFO: [StoryRepository] Story with ID %d not found.", storyID)
			return nil, nil
		}
		log.Printf("ERROR: [StoryRepository] Failed to retrieve story ID %d: %v", storyID, err)
		return nil, fmt.Errorf("failed to retrieve story ID %d: %w", storyID, err)
	}
	return &story, nil
}

// ListStories retrieves stories for the admin listing screen, newest first,
// optionally filtered by category.
func (r *storyRepository) ListStories(category models.StoryCategory, limit, offset int) ([]*models.Story, error) {
	var stories []*models.Story
	query := r.db.Preload("Contributor").Preload("Media").Order("created_at desc")
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&stories).Error; err != nil {
		log.Printf("ERROR: [StoryRepository] Failed to list stories (category '%s'): %v", category, err)
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	return stories, nil
}

// UpdateStory updates an existing story.
func (r *storyRepository) UpdateStory(story *models.Story) error {
	if story == nil {
		return errors.New("story cannot be nil")
	}
	if story.ID == 0 {
		return errors.New("story ID must be provided for update")
	}
	if err := r.db.Save(story).Error; err != nil {
		log.Printf("ERROR: [StoryRepository] Failed to update story ID %d: %v", story.ID, err)
		return fmt.Errorf("failed to update story ID %d: %w", story.ID, err)
	}
	log.Printf("INFO: [StoryRepository] Successfully updated story ID %d.", story.ID)
	return nil
}

// DeleteStory deletes a story by its ID, soft by default.
func (r *storyRepository) DeleteStory(storyID uint, hardDelete bool) error {
	dbQuery := r.db
	action := "soft-deleted"
	if hardDelete {
		dbQuery = r.db.Unscoped()
		action = "hard-deleted (permanently)"
	}
	if err := dbQuery.Delete(&models.Story{}, storyID).Error; err != nil {
		log.Printf("ERROR: [StoryRepository] Failed to %s story ID %d: %v", action, storyID, err)
		return fmt.Errorf("failed to %s story ID %d: %w", action, storyID, err)
	}
	log.Printf("INFO: [StoryRepository] Successfully %s story ID %d.", action, storyID)
	return nil
}

// IncrementEngagement atomically bumps one engagement counter
// (views, shares or likes) on a story.
func (r *storyRepository) IncrementEngagement(storyID uint, column string) error {
	switch column {
	case "views", "shares", "likes":
	default:
		return fmt.Errorf("invalid engagement column '%s'", column)
	}
	result := r.db.Model(&models.Story{}).Where("id = ?", storyID).
		UpdateColumn(column, gorm.Expr(column+" + 1"))
	if result.Error != nil {
		log.Printf("ERROR: [StoryRepository] Failed to increment %s for story ID %d: %v", column, storyID, result.Error)
		return fmt.Errorf("failed to increment %s for story ID %d: %w", column, storyID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("story ID %d not found", storyID)
	}
	return nil
}
