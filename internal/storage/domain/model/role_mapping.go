package model

import "time"

// RoleMappingEntry binds one reaction emoji to one role.
type RoleMappingEntry struct {
	Emoji    string `bson:"emoji" json:"emoji" validate:"required"`
	RoleID   string `bson:"roleId" json:"roleId" validate:"required"`
	RoleName string `bson:"roleName,omitempty" json:"roleName,omitempty"`
}

// RoleMapping is a reaction-role message and the roles its reactions grant.
// One document per message.
type RoleMapping struct {
	MessageID string             `bson:"messageId" json:"messageId" validate:"required"`
	GuildID   string             `bson:"guildId" json:"guildId" validate:"required"`
	ChannelID string             `bson:"channelId" json:"channelId"`
	Roles     []RoleMappingEntry `bson:"roles" json:"roles" validate:"dive"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (m *RoleMapping) Key() string { return m.MessageID }
