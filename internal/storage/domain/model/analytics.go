package model

import (
	"strings"
	"time"
)

// AnalyticsDateLayout is the day bucket format for command analytics.
const AnalyticsDateLayout = "2006-01-02"

// CommandAnalytics counts command invocations per guild per day.
type CommandAnalytics struct {
	Date      string           `bson:"date" json:"date" validate:"required"`
	GuildID   string           `bson:"guildId" json:"guildId" validate:"required"`
	Commands  map[string]int64 `bson:"commands" json:"commands"`
	Total     int64            `bson:"total" json:"total"`
	UpdatedAt time.Time        `bson:"updatedAt" json:"updatedAt"`
}

func (c *CommandAnalytics) Key() string { return AnalyticsKey(c.Date, c.GuildID) }

func AnalyticsKey(date, guildID string) string { return date + ":" + guildID }

// CommandField makes a command name safe to use as a document field name.
func CommandField(command string) string {
	return commandFieldReplacer.Replace(command)
}

var commandFieldReplacer = strings.NewReplacer(".", "_", "$", "_")
