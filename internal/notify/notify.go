// Package notify delivers best-effort task update messages to the owning
// user's chat channels. Delivery failures are reported to the caller, which
// logs and ignores them; nothing here may affect a task transition.
package notify

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/cbarrett/foreman/internal/config"
	"github.com/cbarrett/foreman/internal/models"
	slackapi "github.com/slack-go/slack"
	"gorm.io/gorm"
)

// SlackSender abstracts the Slack API method we use, enabling test mocks.
type SlackSender interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// DiscordSender abstracts the discordgo method we use, enabling test mocks.
type DiscordSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Hub fans a task update out to every notification channel configured by the
// epic's owner. It implements lifecycle.Notifier.
type Hub struct {
	DB      *gorm.DB
	Slack   SlackSender   // nil when Slack is unconfigured
	Discord DiscordSender // nil when Discord is unconfigured
}

// NewHub builds a Hub with real platform clients for whichever tokens are
// configured. Discord message sends go over plain REST; no gateway
// connection is opened.
func NewHub(db *gorm.DB, cfg config.NotifyConfig) (*Hub, error) {
	hub := &Hub{DB: db}
	if cfg.Slack.BotToken != "" {
		hub.Slack = slackapi.New(cfg.Slack.BotToken)
	}
	if cfg.Discord.BotToken != "" {
		session, err := discordgo.New("Bot " + cfg.Discord.BotToken)
		if err != nil {
			return nil, fmt.Errorf("notify: discord session: %w", err)
		}
		hub.Discord = session
	}
	return hub, nil
}

// TaskUpdated sends the task's new state to the owner's channels. Channels
// whose platform is unconfigured are skipped; per-channel failures are
// joined so the caller can log them all.
func (h *Hub) TaskUpdated(task *models.Task) error {
	var epic models.Epic
	if err := h.DB.First(&epic, task.EpicID).Error; err != nil {
		return fmt.Errorf("notify: task %d: load epic: %w", task.ID, err)
	}

	var channels []models.NotificationChannel
	if err := h.DB.Where("user_id = ?", epic.UserID).Find(&channels).Error; err != nil {
		return fmt.Errorf("notify: task %d: load channels: %w", task.ID, err)
	}

	text := FormatTaskUpdate(&epic, task)

	var errs []error
	for _, ch := range channels {
		switch ch.ServiceName {
		case models.ChannelSlack:
			if h.Slack == nil {
				continue
			}
			if _, _, err := h.Slack.PostMessage(ch.ChannelID, slackapi.MsgOptionText(text, false)); err != nil {
				errs = append(errs, fmt.Errorf("notify: slack channel %s: %w", ch.ChannelID, err))
			}
		case models.ChannelDiscord:
			if h.Discord == nil {
				continue
			}
			if _, err := h.Discord.ChannelMessageSend(ch.ChannelID, text); err != nil {
				errs = append(errs, fmt.Errorf("notify: discord channel %s: %w", ch.ChannelID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// FormatTaskUpdate renders one task state change as a chat message.
func FormatTaskUpdate(epic *models.Epic, task *models.Task) string {
	text := fmt.Sprintf("%q: task %d is now %s", epic.Title, task.Position, task.Status)
	if task.PRURL != "" {
		text += "\n" + task.PRURL
	}
	return text
}
