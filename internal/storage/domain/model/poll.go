package model

import "time"

// Poll is a multiple-choice vote attached to a message.
type Poll struct {
	ID            string           `bson:"pollId" json:"pollId" validate:"required"`
	GuildID       string           `bson:"guildId" json:"guildId" validate:"required"`
	ChannelID     string           `bson:"channelId" json:"channelId"`
	MessageID     string           `bson:"messageId,omitempty" json:"messageId,omitempty"`
	CreatorID     string           `bson:"creatorId" json:"creatorId" validate:"required"`
	Question      string           `bson:"question" json:"question" validate:"required"`
	Options       []string         `bson:"options" json:"options" validate:"min=2,max=10"`
	Votes         map[string][]int `bson:"votes" json:"votes"`
	AllowMultiple bool             `bson:"allowMultiple" json:"allowMultiple"`
	IsActive      bool             `bson:"isActive" json:"isActive"`
	EndsAt        *time.Time       `bson:"endsAt,omitempty" json:"endsAt,omitempty"`
	CreatedAt     time.Time        `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time        `bson:"updatedAt" json:"updatedAt"`
}

func (p *Poll) Key() string { return p.ID }

// Ended reports whether the poll is closed or past its deadline.
func (p *Poll) Ended(now time.Time) bool {
	if !p.IsActive {
		return true
	}
	return p.EndsAt != nil && !p.EndsAt.After(now)
}

// Tally counts votes per option.
func (p *Poll) Tally() []int {
	counts := make([]int, len(p.Options))
	for _, choices := range p.Votes {
		for _, idx := range choices {
			if idx >= 0 && idx < len(counts) {
				counts[idx]++
			}
		}
	}
	return counts
}
