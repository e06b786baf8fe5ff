package models

import "time"

// Repository is a GitHub repository that epics run against. Name uses the
// owner/repo form the GitHub API expects.
type Repository struct {
	ID                 uint   `gorm:"primaryKey;autoIncrement"`
	UserID             uint   `gorm:"not null;index:idx_user_repo_name,unique"`
	Name               string `gorm:"size:255;not null;index:idx_user_repo_name,unique"`
	GitHubURL          string `gorm:"size:512;not null"`
	GitHubCredentialID *uint
	CreatedAt          time.Time
	UpdatedAt          time.Time

	User             User        `gorm:"foreignKey:UserID"`
	GitHubCredential *Credential `gorm:"foreignKey:GitHubCredentialID"`
}
