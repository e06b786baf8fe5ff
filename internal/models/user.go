package models

import "time"

// User owns repositories, credentials, epics, and notification channels.
// Authentication lives outside this service; the user is an ownership anchor.
type User struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Email     string `gorm:"size:255;uniqueIndex;not null"`
	Name      string `gorm:"size:128"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Repositories         []Repository          `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Credentials          []Credential          `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Epics                []Epic                `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	NotificationChannels []NotificationChannel `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
