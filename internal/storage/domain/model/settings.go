package model

import "time"

// ExperienceSettings configures XP gain within a guild.
type ExperienceSettings struct {
	Enabled          bool    `bson:"enabled" json:"enabled"`
	XPPerMessage     int     `bson:"xpPerMessage" json:"xpPerMessage" validate:"gte=0"`
	CooldownSeconds  int     `bson:"cooldownSeconds" json:"cooldownSeconds" validate:"gte=0"`
	LevelUpChannelID *string `bson:"levelUpChannelId,omitempty" json:"levelUpChannelId,omitempty"`
}

// GuildSettings holds one guild's general configuration.
type GuildSettings struct {
	GuildID          string             `bson:"guildId" json:"guildId" validate:"required"`
	Language         string             `bson:"language,omitempty" json:"language,omitempty"`
	ExperienceSystem ExperienceSettings `bson:"experienceSystem" json:"experienceSystem"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (g *GuildSettings) Key() string { return g.GuildID }

// DefaultGuildSettings is returned for guilds that never saved settings.
func DefaultGuildSettings(guildID string) *GuildSettings {
	return &GuildSettings{
		GuildID:  guildID,
		Language: "en",
		ExperienceSystem: ExperienceSettings{
			Enabled:         false,
			XPPerMessage:    15,
			CooldownSeconds: 60,
		},
	}
}

// WelcomeSettings configures the message sent when a member joins.
type WelcomeSettings struct {
	GuildID      string    `bson:"guildId" json:"guildId" validate:"required"`
	Enabled      bool      `bson:"enabled" json:"enabled"`
	ChannelID    *string   `bson:"channelId,omitempty" json:"channelId,omitempty"`
	Message      string    `bson:"message,omitempty" json:"message,omitempty"`
	EmbedEnabled bool      `bson:"embedEnabled" json:"embedEnabled"`
	AutoRoleID   *string   `bson:"autoRoleId,omitempty" json:"autoRoleId,omitempty"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (w *WelcomeSettings) Key() string { return w.GuildID }

// GoodbyeSettings configures the message sent when a member leaves.
type GoodbyeSettings struct {
	GuildID      string    `bson:"guildId" json:"guildId" validate:"required"`
	Enabled      bool      `bson:"enabled" json:"enabled"`
	ChannelID    *string   `bson:"channelId,omitempty" json:"channelId,omitempty"`
	Message      string    `bson:"message,omitempty" json:"message,omitempty"`
	EmbedEnabled bool      `bson:"embedEnabled" json:"embedEnabled"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (g *GoodbyeSettings) Key() string { return g.GuildID }
