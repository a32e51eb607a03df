package model

import "time"

// TemporaryRole is a role granted to a user until ExpiresAt.
type TemporaryRole struct {
	GuildID    string    `bson:"guildId" json:"guildId" validate:"required"`
	UserID     string    `bson:"userId" json:"userId" validate:"required"`
	RoleID     string    `bson:"roleId" json:"roleId" validate:"required"`
	ExpiresAt  time.Time `bson:"expiresAt" json:"expiresAt" validate:"required"`
	AssignedBy *string   `bson:"assignedBy,omitempty" json:"assignedBy,omitempty"`
	Reason     *string   `bson:"reason,omitempty" json:"reason,omitempty"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}

func (t *TemporaryRole) Key() string { return TemporaryRoleKey(t.GuildID, t.UserID, t.RoleID) }

func TemporaryRoleKey(guildID, userID, roleID string) string {
	return guildID + ":" + userID + ":" + roleID
}

// Expired reports whether the grant has lapsed at now.
func (t *TemporaryRole) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
