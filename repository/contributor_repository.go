package repository

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/Acurioustractor/palm-island-repository-sub002/models"
)

// ContributorRepository defines the interface for contributor records.
type ContributorRepository interface {
	CreateContributor(contributor *models.Contributor) error
	GetContributorByID(contributorID uint) (*models.Contributor, error)
	ListContributors() ([]*models.Contributor, error)
}

type contributorRepository struct {
	db *gorm.DB
}

// NewContributorRepository creates a new instance of ContributorRepository.
func NewContributorRepository(db *gorm.DB) ContributorRepository {
	return &contributorRepository{db: db}
}

// CreateContributor creates a new contributor.
func (r *contributorRepository) CreateContributor(contributor *models.Contributor) error {
	if contributor == nil {
		return errors.New("contributor cannot be nil")
	}
	if err := r.db.Create(contributor).Error; err != nil {
		log.Printf("ERROR: [ContributorRepository] Failed to create contributor '%s': %v", contributor.Name, err)
		return fmt.Errorf("failed to create contributor '%s': %w", contributor.Name, err)
	}
	log.Printf("INFO: [ContributorRepository] Successfully created contributor ID %d ('%s').", contributor.ID, contributor.Name)
	return nil
}

// GetContributorByID retrieves a contributor by ID, (nil, nil) when absent.
func (r *contributorRepository) GetContributorByID(contributorID uint) (*models.Contributor, error) {
	var contributor models.Contributor
	err := r.db.First(&contributor, contributorID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.Printf("ERROR: [ContributorRepository] Failed to retrieve contributor ID %d: %v", contributorID, err)
		return nil, fmt.Errorf("failed to retrieve contributor ID %d: %w", contributorID, err)
	}
	return &contributor, nil
}

// ListContributors retrieves all contributors ordered by name.
func (r *contributorRepository) ListContributors() ([]*models.Contributor, error) {
	var contributors []*models.Contributor
	if err := r.db.Order("name asc").Find(&contributors).Error; err != nil {
		log.Printf("ERROR: [ContributorRepository] Failed to list contributors: %v", err)
		return nil, fmt.Errorf("failed to list contributors: %w", err)
	}
	return contributors, nil
}
