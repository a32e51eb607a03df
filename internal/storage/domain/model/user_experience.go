package model

import (
	"math"
	"time"
)

// UserExperience is a member's XP within one guild.
type UserExperience struct {
	GuildID       string     `bson:"guildId" json:"guildId" validate:"required"`
	UserID        string     `bson:"userId" json:"userId" validate:"required"`
	TotalXP       int64      `bson:"totalXP" json:"totalXP" validate:"gte=0"`
	Level         int        `bson:"level" json:"level" validate:"gte=0"`
	MessageCount  int64      `bson:"messageCount" json:"messageCount"`
	LastMessageAt *time.Time `bson:"lastMessageAt,omitempty" json:"lastMessageAt,omitempty"`
	UpdatedAt     time.Time  `bson:"updatedAt" json:"updatedAt"`
}

func (u *UserExperience) Key() string { return UserExperienceKey(u.GuildID, u.UserID) }

func UserExperienceKey(guildID, userID string) string { return guildID + ":" + userID }

// LevelForXP derives a level from total XP using 100*level^1.5 thresholds:
// the highest level whose threshold is at most xp.
func LevelForXP(xp int64) int {
	if xp <= 0 {
		return 0
	}
	level := int(math.Pow(float64(xp)/100, 2.0/3.0))
	for level > 0 && XPForLevel(level) > xp {
		level--
	}
	for {
		next := XPForLevel(level + 1)
		if next > xp || next == math.MaxInt64 {
			return level
		}
		level++
	}
}

// XPForLevel is the total XP required to reach level. Thresholds beyond the
// int64 range saturate at math.MaxInt64.
func XPForLevel(level int) int64 {
	if level <= 0 {
		return 0
	}
	xp := math.Floor(100 * math.Pow(float64(level), 1.5))
	if xp >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(xp)
}
