package models

import "time"

// Notification channel service names.
const (
	ChannelSlack   = "slack"
	ChannelDiscord = "discord"
)

// NotificationChannel is a chat destination for best-effort task updates.
type NotificationChannel struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	UserID      uint   `gorm:"not null;index:idx_user_service_channel,unique"`
	ServiceName string `gorm:"size:32;not null;index:idx_user_service_channel,unique"`
	ChannelID   string `gorm:"size:128;not null;index:idx_user_service_channel,unique"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	User User `gorm:"foreignKey:UserID"`
}
