package repository

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/Acurioustractor/palm-island-repository-sub002/models"
)

// AssignmentRepository defines the interface for persisting placement
// assignments. Writes are slot-granular and idempotent: replacing a slot
// deletes every prior assignment for that (page, section) pair and inserts
// the new ordered set in one transaction, so a stale assignment can never
// outlive its story's eligibility.
type AssignmentRepository interface {
	ReplaceForSlot(page, section string, assignments []*models.PlacementAssignment) error
	GetForSlot(page, section string) ([]*models.PlacementAssignment, error)
	GetByRunID(runID string) ([]*models.PlacementAssignment, error)
	DeleteForSlot(page, section string) error
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository creates a new instance of AssignmentRepository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

// ReplaceForSlot overwrites the assignments for one slot. An empty slice is
// valid and simply clears the slot (a rule with zero eligible stories).
func (r *assignmentRepository) ReplaceForSlot(page, section string, assignments []*models.PlacementAssignment) error {
	if page == "" || section == "" {
		return errors.New("page and section are required")
	}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("page = ? AND section = ?", page, section).
			Delete(&models.PlacementAssignment{}).Error; err != nil {
			return err
		}
		if len(assignments) == 0 {
			return nil
		}
		return tx.Create(&assignments).Error
	})
	if err != nil {
		log.Printf("ERROR: [AssignmentRepository] Failed to replace assignments for slot %s/%s: %v", page, section, err)
		return fmt.Errorf("failed to replace assignments for slot %s/%s: %w", page, section, err)
	}
	log.Printf("INFO: [AssignmentRepository] Replaced slot %s/%s with %d assignments.", page, section, len(assignments))
	return nil
}

// GetForSlot retrieves a slot's assignments ordered by rank ascending, with
// the placed stories joined in for the rendering layer.
func (r *assignmentRepository) GetForSlot(page, section string) ([]*models.PlacementAssignment, error) {
	var assignments []*models.PlacementAssignment
	err := r.db.Preload("Story").Preload("Story.Contributor").Preload("Story.Media").
		Where("page = ? AND section = ?", page, section).
		Order("rank asc").
		Find(&assignments).Error
	if err != nil {
		log.Printf("ERROR: [AssignmentRepository] Failed to retrieve assignments for slot %s/%s: %v", page, section, err)
		return nil, fmt.Errorf("failed to retrieve assignments for slot %s/%s: %w", page, section, err)
	}
	return assignments, nil
}

// GetByRunID retrieves every assignment written by one placement run.
func (r *assignmentRepository) GetByRunID(runID string) ([]*models.PlacementAssignment, error) {
	var assignments []*models.PlacementAssignment
	err := r.db.Where("run_id = ?", runID).
		Order("page asc, section asc, rank asc").
		Find(&assignments).Error
	if err != nil {
		log.Printf("ERROR: [AssignmentRepository] Failed to retrieve assignments for run %s: %v", runID, err)
		return nil, fmt.Errorf("failed to retrieve assignments for run %s: %w", runID, err)
	}
	return assignments, nil
}

// DeleteForSlot clears every assignment for one slot.
func (r *assignmentRepository) DeleteForSlot(page, section string) error {
	err := r.db.Where("page = ? AND section = ?", page, section).
		Delete(&models.PlacementAssignment{}).Error
	if err != nil {
		log.Printf("ERROR: [AssignmentRepository] Failed to delete assignments for slot %s/%s: %v", page, section, err)
		return fmt.Errorf("failed to delete assignments for slot %s/%s: %w", page, section, err)
	}
	return nil
}
