package models

import (
	"time"

	"gorm.io/gorm"
)

// Contributor represents a community member who authors stories.
// Only the attributes the scoring and gating logic reads are modelled here;
// profile details live with the authoring surface.
type Contributor struct {
	ID                uint   `gorm:"primarykey" json:"id"`
	Name              string `gorm:"not null" json:"name"`
	IsElder           bool   `gorm:"default:false" json:"is_elder"`
	IsCulturalAdvisor bool   `gorm:"default:false" json:"is_cultural_advisor"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Contributor model.
func (Contributor) TableName() string {
	return "contributors"
}

// MediaItem is a photo, video or audio attachment on a story.
type MediaItem struct {
	ID      uint   `gorm:"primarykey" json:"id"`
	StoryID uint   `gorm:"index;not null" json:"story_id"`
	Kind    string `gorm:"type:varchar(20);not null" json:"kind"` // "image", "video", "audio"
	URL     string `gorm:"not null" json:"url"`
	Caption string `json:"caption"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for the MediaItem model.
func (MediaItem) TableName() string {
	return "media_items"
}
