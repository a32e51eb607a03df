package model

import "time"

// ModerationAction is the kind of moderation taken.
type ModerationAction string

const (
	ActionWarn    ModerationAction = "warn"
	ActionTimeout ModerationAction = "timeout"
	ActionKick    ModerationAction = "kick"
	ActionBan     ModerationAction = "ban"
	ActionUnban   ModerationAction = "unban"
	ActionPurge   ModerationAction = "purge"
)

// ModerationLog is one moderation case. CaseID is unique across the collection.
type ModerationLog struct {
	CaseID      string           `bson:"caseId" json:"caseId" validate:"required"`
	GuildID     string           `bson:"guildId" json:"guildId" validate:"required"`
	UserID      string           `bson:"userId" json:"userId" validate:"required"`
	ModeratorID string           `bson:"moderatorId" json:"moderatorId" validate:"required"`
	Action      ModerationAction `bson:"action" json:"action" validate:"required,oneof=warn timeout kick ban unban purge"`
	Reason      string           `bson:"reason,omitempty" json:"reason,omitempty"`
	Duration    *time.Duration   `bson:"duration,omitempty" json:"duration,omitempty"`
	CreatedAt   time.Time        `bson:"createdAt" json:"createdAt"`
}

func (m *ModerationLog) Key() string { return m.CaseID }
