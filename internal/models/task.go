package models

import "time"

// Task is one unit of work within an epic, executed by an external Cursor
// agent and tracked through a six-state lifecycle.
type Task struct {
	ID          uint       `gorm:"primaryKey;autoIncrement"`
	EpicID      uint       `gorm:"not null;index:idx_epic_position,unique"`
	Description string     `gorm:"type:text;not null"`
	Position    int        `gorm:"not null;index:idx_epic_position,unique"`
	Status      TaskStatus `gorm:"size:16;default:pending;index"`
	AgentID     string     `gorm:"size:64"`
	BranchName  string     `gorm:"size:128"`
	PRURL       string     `gorm:"size:512"`
	DebugLog    string     `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Epic Epic `gorm:"foreignKey:EpicID"`
}
