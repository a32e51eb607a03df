package model

import "time"

// Supporter is a member who backs the bot in a guild.
type Supporter struct {
	GuildID   string     `bson:"guildId" json:"guildId" validate:"required"`
	UserID    string     `bson:"userId" json:"userId" validate:"required"`
	RoleID    string     `bson:"roleId,omitempty" json:"roleId,omitempty"`
	Tier      string     `bson:"tier,omitempty" json:"tier,omitempty"`
	AddedAt   time.Time  `bson:"addedAt" json:"addedAt"`
	ExpiresAt *time.Time `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
}

func (s *Supporter) Key() string { return SupporterKey(s.GuildID, s.UserID) }

func SupporterKey(guildID, userID string) string { return guildID + ":" + userID }
