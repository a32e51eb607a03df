// Package repository declares the typed contract of every collection. The
// mongo repositories and the file fallback store both implement these
// interfaces, so callers never branch on which backend is serving them.
package repository

import (
	"context"
	"time"

	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/model"
)

// RoleMappingRepository stores reaction-role messages.
type RoleMappingRepository interface {
	// GetByMessage returns nil, nil when the message has no mapping.
	GetByMessage(ctx context.Context, messageID string) (*model.RoleMapping, error)
	GetByGuild(ctx context.Context, guildID string) ([]*model.RoleMapping, error)
	Set(ctx context.Context, mapping *model.RoleMapping) error
	Delete(ctx context.Context, messageID string) error
}

// TemporaryRoleRepository stores time-limited role grants.
type TemporaryRoleRepository interface {
	Add(ctx context.Context, role *model.TemporaryRole) error
	Remove(ctx context.Context, guildID, userID, roleID string) error
	GetByUser(ctx context.Context, guildID, userID string) ([]*model.TemporaryRole, error)
	GetByGuild(ctx context.Context, guildID string) ([]*model.TemporaryRole, error)
	GetExpired(ctx context.Context, now time.Time) ([]*model.TemporaryRole, error)
	RemoveExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserExperienceRepository stores per-guild XP.
type UserExperienceRepository interface {
	// Get returns nil, nil for a member with no XP yet.
	Get(ctx context.Context, guildID, userID string) (*model.UserExperience, error)
	// AddXP atomically adds xp, bumps the message count and recomputes the level.
	AddXP(ctx context.Context, guildID, userID string, xp int64) (*model.UserExperience, error)
	SetLevel(ctx context.Context, guildID, userID string, level int) error
	GetLeaderboard(ctx context.Context, guildID string, limit int) ([]*model.UserExperience, error)
	Reset(ctx context.Context, guildID, userID string) error
}

// GuildSettingsRepository stores general guild configuration.
type GuildSettingsRepository interface {
	// GetByGuild returns defaults for a guild that never saved settings.
	GetByGuild(ctx context.Context, guildID string) (*model.GuildSettings, error)
	Set(ctx context.Context, settings *model.GuildSettings) error
}

// WelcomeSettingsRepository stores join-message configuration.
type WelcomeSettingsRepository interface {
	GetByGuild(ctx context.Context, guildID string) (*model.WelcomeSettings, error)
	Set(ctx context.Context, settings *model.WelcomeSettings) error
	Delete(ctx context.Context, guildID string) error
}

// GoodbyeSettingsRepository stores leave-message configuration.
type GoodbyeSettingsRepository interface {
	GetByGuild(ctx context.Context, guildID string) (*model.GoodbyeSettings, error)
	Set(ctx context.Context, settings *model.GoodbyeSettings) error
	Delete(ctx context.Context, guildID string) error
}

// PollRepository stores polls and their votes.
type PollRepository interface {
	Create(ctx context.Context, poll *model.Poll) error
	GetByID(ctx context.Context, pollID string) (*model.Poll, error)
	// GetByGuild lists polls newest first; activeOnly skips closed ones.
	GetByGuild(ctx context.Context, guildID string, activeOnly bool) ([]*model.Poll, error)
	Update(ctx context.Context, poll *model.Poll) error
	Delete(ctx context.Context, pollID string) error
	DeleteEnded(ctx context.Context, before time.Time) (int64, error)
}

// ModerationLogRepository stores moderation cases.
type ModerationLogRepository interface {
	// Record stores a case; a duplicate case ID is a conflict.
	Record(ctx context.Context, entry *model.ModerationLog) error
	GetByCase(ctx context.Context, caseID string) (*model.ModerationLog, error)
	GetByUser(ctx context.Context, guildID, userID string) ([]*model.ModerationLog, error)
	CountWarnings(ctx context.Context, guildID, userID string) (int64, error)
	RemoveCase(ctx context.Context, caseID string) error
}

// ScheduledRoleRepository stores deferred role jobs.
type ScheduledRoleRepository interface {
	Create(ctx context.Context, job *model.ScheduledRole) error
	GetByID(ctx context.Context, id string) (*model.ScheduledRole, error)
	GetByGuild(ctx context.Context, guildID string) ([]*model.ScheduledRole, error)
	GetDue(ctx context.Context, now time.Time) ([]*model.ScheduledRole, error)
	MarkExecuted(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// SupporterRepository stores bot supporters.
type SupporterRepository interface {
	// AddSupporter is idempotent: adding an existing supporter is not an error.
	AddSupporter(ctx context.Context, supporter *model.Supporter) error
	RemoveSupporter(ctx context.Context, guildID, userID string) error
	GetByGuild(ctx context.Context, guildID string) ([]*model.Supporter, error)
	IsSupporter(ctx context.Context, guildID, userID string) (bool, error)
}

// AnalyticsRepository stores daily command counters.
type AnalyticsRepository interface {
	IncrementCommand(ctx context.Context, guildID, command string, at time.Time) error
	GetDaily(ctx context.Context, guildID, date string) (*model.CommandAnalytics, error)
}

// Repositories groups one implementation of every repository.
type Repositories struct {
	RoleMappings     RoleMappingRepository
	TemporaryRoles   TemporaryRoleRepository
	UserExperience   UserExperienceRepository
	GuildSettings    GuildSettingsRepository
	WelcomeSettings  WelcomeSettingsRepository
	GoodbyeSettings  GoodbyeSettingsRepository
	Polls            PollRepository
	ModerationLogs   ModerationLogRepository
	ScheduledRoles   ScheduledRoleRepository
	Supporters       SupporterRepository
	CommandAnalytics AnalyticsRepository
}
