package models

import "time"

// Credential service names.
const (
	ServiceGitHub      = "github"
	ServiceCursorAgent = "cursor_agent"
)

// Credential holds an API key for an external service. Encryption at rest is
// handled outside this service.
type Credential struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	UserID      uint   `gorm:"not null;index:idx_user_service_name,unique"`
	ServiceName string `gorm:"size:32;not null;index:idx_user_service_name,unique"`
	Name        string `gorm:"size:128;not null;index:idx_user_service_name,unique"`
	APIKey      string `gorm:"size:512;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	User User `gorm:"foreignKey:UserID"`
}
