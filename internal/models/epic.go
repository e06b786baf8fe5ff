package models

import "time"

// Epic is a grouped unit of work: an ordered set of tasks executed against
// one repository.
type Epic struct {
	ID           uint       `gorm:"primaryKey;autoIncrement"`
	UserID       uint       `gorm:"not null;index"`
	RepositoryID uint       `gorm:"not null;index"`
	Title        string     `gorm:"not null"`
	Prompt       string     `gorm:"type:text"`
	BaseBranch   string     `gorm:"size:128;default:main"`
	Status       EpicStatus `gorm:"size:16;default:pending;index"`

	// Two fixed credential roles, not polymorphic dispatch: one key for the
	// LLM that generates the task breakdown, one for launching coding agents.
	LLMCredentialID   *uint
	AgentCredentialID *uint

	CreatedAt time.Time
	UpdatedAt time.Time

	User            User        `gorm:"foreignKey:UserID"`
	Repository      Repository  `gorm:"foreignKey:RepositoryID"`
	LLMCredential   *Credential `gorm:"foreignKey:LLMCredentialID"`
	AgentCredential *Credential `gorm:"foreignKey:AgentCredentialID"`
	Tasks           []Task      `gorm:"foreignKey:EpicID;constraint:OnDelete:CASCADE"`
}
