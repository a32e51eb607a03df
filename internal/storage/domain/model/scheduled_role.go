package model

import "time"

// ScheduledRoleAction says what a scheduled job does with the role.
type ScheduledRoleAction string

const (
	ScheduledAssign ScheduledRoleAction = "assign"
	ScheduledRemove ScheduledRoleAction = "remove"
)

// ScheduledRole is a deferred role assignment or removal.
type ScheduledRole struct {
	ID          string              `bson:"scheduleId" json:"scheduleId" validate:"required"`
	GuildID     string              `bson:"guildId" json:"guildId" validate:"required"`
	RoleID      string              `bson:"roleId" json:"roleId" validate:"required"`
	UserIDs     []string            `bson:"userIds" json:"userIds" validate:"min=1"`
	Action      ScheduledRoleAction `bson:"action" json:"action" validate:"required,oneof=assign remove"`
	ScheduledAt time.Time           `bson:"scheduledAt" json:"scheduledAt" validate:"required"`
	Executed    bool                `bson:"executed" json:"executed"`
	ExecutedAt  *time.Time          `bson:"executedAt,omitempty" json:"executedAt,omitempty"`
	CreatedBy   string              `bson:"createdBy" json:"createdBy"`
	CreatedAt   time.Time           `bson:"createdAt" json:"createdAt"`
}

func (s *ScheduledRole) Key() string { return s.ID }

// Due reports whether the job should run at now.
func (s *ScheduledRole) Due(now time.Time) bool {
	return !s.Executed && !s.ScheduledAt.After(now)
}
