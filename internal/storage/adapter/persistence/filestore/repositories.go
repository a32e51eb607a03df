package filestore

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/qodinger/role-reactor-bot-sub005/internal/shared/errors"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/model"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/repository"
)

const defaultLeaderboardLimit = 10

// NewRepositories exposes the store through every repository interface.
func NewRepositories(s *Store) *repository.Repositories {
	return &repository.Repositories{
		RoleMappings:     &RoleMappings{s: s},
		TemporaryRoles:   &TemporaryRoles{s: s},
		UserExperience:   &UserExperience{s: s},
		GuildSettings:    &GuildSettings{s: s},
		WelcomeSettings:  &WelcomeSettings{s: s},
		GoodbyeSettings:  &GoodbyeSettings{s: s},
		Polls:            &Polls{s: s},
		ModerationLogs:   &ModerationLogs{s: s},
		ScheduledRoles:   &ScheduledRoles{s: s},
		Supporters:       &Supporters{s: s},
		CommandAnalytics: &CommandAnalytics{s: s},
	}
}

var (
	_ repository.RoleMappingRepository     = (*RoleMappings)(nil)
	_ repository.TemporaryRoleRepository   = (*TemporaryRoles)(nil)
	_ repository.UserExperienceRepository  = (*UserExperience)(nil)
	_ repository.GuildSettingsRepository   = (*GuildSettings)(nil)
	_ repository.WelcomeSettingsRepository = (*WelcomeSettings)(nil)
	_ repository.GoodbyeSettingsRepository = (*GoodbyeSettings)(nil)
	_ repository.PollRepository            = (*Polls)(nil)
	_ repository.ModerationLogRepository   = (*ModerationLogs)(nil)
	_ repository.ScheduledRoleRepository   = (*ScheduledRoles)(nil)
	_ repository.SupporterRepository       = (*Supporters)(nil)
	_ repository.AnalyticsRepository       = (*CommandAnalytics)(nil)
)

// RoleMappings mirrors the role mapping repository on disk.
type RoleMappings struct{ s *Store }

func (r *RoleMappings) GetByMessage(_ context.Context, messageID string) (*model.RoleMapping, error) {
	return getDoc[model.RoleMapping](r.s, model.CollectionRoleMappings, messageID)
}

func (r *RoleMappings) GetByGuild(_ context.Context, guildID string) ([]*model.RoleMapping, error) {
	out, err := listDocs(r.s, model.CollectionRoleMappings, func(m *model.RoleMapping) bool {
		return m.GuildID == guildID
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *RoleMappings) Set(_ context.Context, mapping *model.RoleMapping) error {
	if err := model.Validate(mapping); err != nil {
		return err
	}
	now := r.s.now()
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = now
	}
	mapping.UpdatedAt = now
	return putDoc(r.s, model.CollectionRoleMappings, mapping.Key(), mapping)
}

func (r *RoleMappings) Delete(_ context.Context, messageID string) error {
	return deleteDoc(r.s, model.CollectionRoleMappings, messageID)
}

// TemporaryRoles mirrors the temporary role repository on disk.
type TemporaryRoles struct{ s *Store }

func (r *TemporaryRoles) Add(_ context.Context, role *model.TemporaryRole) error {
	if err := model.Validate(role); err != nil {
		return err
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = r.s.now()
	}
	return putDoc(r.s, model.CollectionTemporaryRoles, role.Key(), role)
}

func (r *TemporaryRoles) Remove(_ context.Context, guildID, userID, roleID string) error {
	return deleteDoc(r.s, model.CollectionTemporaryRoles, model.TemporaryRoleKey(guildID, userID, roleID))
}

func (r *TemporaryRoles) GetByUser(_ context.Context, guildID, userID string) ([]*model.TemporaryRole, error) {
	out, err := listDocs(r.s, model.CollectionTemporaryRoles, func(t *model.TemporaryRole) bool {
		return t.GuildID == guildID && t.UserID == userID
	})
	return sortByExpiry(out), err
}

func (r *TemporaryRoles) GetByGuild(_ context.Context, guildID string) ([]*model.TemporaryRole, error) {
	out, err := listDocs(r.s, model.CollectionTemporaryRoles, func(t *model.TemporaryRole) bool {
		return t.GuildID == guildID
	})
	return sortByExpiry(out), err
}

func (r *TemporaryRoles) GetExpired(_ context.Context, now time.Time) ([]*model.TemporaryRole, error) {
	out, err := listDocs(r.s, model.CollectionTemporaryRoles, func(t *model.TemporaryRole) bool {
		return t.Expired(now)
	})
	return sortByExpiry(out), err
}

func (r *TemporaryRoles) RemoveExpired(_ context.Context, now time.Time) (int64, error) {
	return deleteWhere(r.s, model.CollectionTemporaryRoles, func(t *model.TemporaryRole) bool {
		return t.Expired(now)
	})
}

func sortByExpiry(roles []*model.TemporaryRole) []*model.TemporaryRole {
	sort.Slice(roles, func(i, j int) bool { return roles[i].ExpiresAt.Before(roles[j].ExpiresAt) })
	return roles
}

// UserExperience mirrors the XP repository on disk.
type UserExperience struct{ s *Store }

func (r *UserExperience) Get(_ context.Context, guildID, userID string) (*model.UserExperience, error) {
	return getDoc[model.UserExperience](r.s, model.CollectionUserExperience, model.UserExperienceKey(guildID, userID))
}

func (r *UserExperience) AddXP(_ context.Context, guildID, userID string, xp int64) (*model.UserExperience, error) {
	now := r.s.now()
	return modifyDoc(r.s, model.CollectionUserExperience, model.UserExperienceKey(guildID, userID),
		func(cur *model.UserExperience) (*model.UserExperience, error) {
			if cur == nil {
				cur = &model.UserExperience{GuildID: guildID, UserID: userID}
			}
			cur.TotalXP += xp
			if cur.TotalXP < 0 {
				cur.TotalXP = 0
			}
			cur.MessageCount++
			cur.Level = model.LevelForXP(cur.TotalXP)
			cur.LastMessageAt = &now
			cur.UpdatedAt = now
			return cur, model.Validate(cur)
		})
}

func (r *UserExperience) SetLevel(_ context.Context, guildID, userID string, level int) error {
	now := r.s.now()
	_, err := modifyDoc(r.s, model.CollectionUserExperience, model.UserExperienceKey(guildID, userID),
		func(cur *model.UserExperience) (*model.UserExperience, error) {
			if cur == nil {
				cur = &model.UserExperience{GuildID: guildID, UserID: userID}
			}
			cur.Level = level
			cur.TotalXP = model.XPForLevel(level)
			cur.UpdatedAt = now
			return cur, model.Validate(cur)
		})
	return err
}

func (r *UserExperience) GetLeaderboard(_ context.Context, guildID string, limit int) ([]*model.UserExperience, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	out, err := listDocs(r.s, model.CollectionUserExperience, func(u *model.UserExperience) bool {
		return u.GuildID == guildID
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalXP != out[j].TotalXP {
			return out[i].TotalXP > out[j].TotalXP
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *UserExperience) Reset(_ context.Context, guildID, userID string) error {
	return deleteDoc(r.s, model.CollectionUserExperience, model.UserExperienceKey(guildID, userID))
}

// GuildSettings mirrors the guild settings repository on disk.
type GuildSettings struct{ s *Store }

func (r *GuildSettings) GetByGuild(_ context.Context, guildID string) (*model.GuildSettings, error) {
	settings, err := getDoc[model.GuildSettings](r.s, model.CollectionGuildSettings, guildID)
	if err != nil || settings != nil {
		return settings, err
	}
	return model.DefaultGuildSettings(guildID), nil
}

func (r *GuildSettings) Set(_ context.Context, settings *model.GuildSettings) error {
	if err := model.Validate(settings); err != nil {
		return err
	}
	settings.UpdatedAt = r.s.now()
	return putDoc(r.s, model.CollectionGuildSettings, settings.Key(), settings)
}

// WelcomeSettings mirrors the welcome settings repository on disk.
type WelcomeSettings struct{ s *Store }

func (r *WelcomeSettings) GetByGuild(_ context.Context, guildID string) (*model.WelcomeSettings, error) {
	return getDoc[model.WelcomeSettings](r.s, model.CollectionWelcomeSettings, guildID)
}

func (r *WelcomeSettings) Set(_ context.Context, settings *model.WelcomeSettings) error {
	if err := model.Validate(settings); err != nil {
		return err
	}
	settings.UpdatedAt = r.s.now()
	return putDoc(r.s, model.CollectionWelcomeSettings, settings.Key(), settings)
}

func (r *WelcomeSettings) Delete(_ context.Context, guildID string) error {
	return deleteDoc(r.s, model.CollectionWelcomeSettings, guildID)
}

// GoodbyeSettings mirrors the goodbye settings repository on disk.
type GoodbyeSettings struct{ s *Store }

func (r *GoodbyeSettings) GetByGuild(_ context.Context, guildID string) (*model.GoodbyeSettings, error) {
	return getDoc[model.GoodbyeSettings](r.s, model.CollectionGoodbyeSettings, guildID)
}

func (r *GoodbyeSettings) Set(_ context.Context, settings *model.GoodbyeSettings) error {
	if err := model.Validate(settings); err != nil {
		return err
	}
	settings.UpdatedAt = r.s.now()
	return putDoc(r.s, model.CollectionGoodbyeSettings, settings.Key(), settings)
}

func (r *GoodbyeSettings) Delete(_ context.Context, guildID string) error {
	return deleteDoc(r.s, model.CollectionGoodbyeSettings, guildID)
}

// Polls mirrors the poll repository on disk.
type Polls struct{ s *Store }

func (r *Polls) Create(_ context.Context, poll *model.Poll) error {
	if poll.ID == "" {
		poll.ID = model.NewID()
	}
	if err := model.Validate(poll); err != nil {
		return err
	}
	now := r.s.now()
	if poll.CreatedAt.IsZero() {
		poll.CreatedAt = now
	}
	poll.UpdatedAt = now
	if poll.Votes == nil {
		poll.Votes = map[string][]int{}
	}
	return r.s.Update(model.CollectionPolls, func(doc Document) error {
		if _, exists := doc[poll.Key()]; exists {
			return apperrors.NewConflictError("poll already exists").WithDetail("pollId", poll.ID)
		}
		return putRaw(doc, poll.Key(), poll)
	})
}

func (r *Polls) GetByID(_ context.Context, pollID string) (*model.Poll, error) {
	return getDoc[model.Poll](r.s, model.CollectionPolls, pollID)
}

func (r *Polls) GetByGuild(_ context.Context, guildID string, activeOnly bool) ([]*model.Poll, error) {
	out, err := listDocs(r.s, model.CollectionPolls, func(p *model.Poll) bool {
		return p.GuildID == guildID && (!activeOnly || p.IsActive)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Polls) Update(_ context.Context, poll *model.Poll) error {
	if err := model.Validate(poll); err != nil {
		return err
	}
	poll.UpdatedAt = r.s.now()
	return r.s.Update(model.CollectionPolls, func(doc Document) error {
		if _, exists := doc[poll.Key()]; !exists {
			return apperrors.NewNotFoundError("poll").WithDetail("pollId", poll.ID)
		}
		return putRaw(doc, poll.Key(), poll)
	})
}

func (r *Polls) Delete(_ context.Context, pollID string) error {
	return deleteDoc(r.s, model.CollectionPolls, pollID)
}

func (r *Polls) DeleteEnded(_ context.Context, before time.Time) (int64, error) {
	return deleteWhere(r.s, model.CollectionPolls, func(p *model.Poll) bool {
		return pollEndedBefore(p, before)
	})
}

// pollEndedBefore matches a poll whose deadline passed, or that was closed, at or before t.
func pollEndedBefore(p *model.Poll, t time.Time) bool {
	if p.EndsAt != nil && !p.EndsAt.After(t) {
		return true
	}
	return !p.IsActive && !p.UpdatedAt.After(t)
}

// ModerationLogs mirrors the moderation log repository on disk.
type ModerationLogs struct{ s *Store }

func (r *ModerationLogs) Record(_ context.Context, entry *model.ModerationLog) error {
	if entry.CaseID == "" {
		entry.CaseID = model.NewID()
	}
	if err := model.Validate(entry); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.s.now()
	}
	return r.s.Update(model.CollectionModerationLogs, func(doc Document) error {
		if _, exists := doc[entry.Key()]; exists {
			return apperrors.NewConflictError("moderation case already exists").WithDetail("caseId", entry.CaseID)
		}
		return putRaw(doc, entry.Key(), entry)
	})
}

func (r *ModerationLogs) GetByCase(_ context.Context, caseID string) (*model.ModerationLog, error) {
	return getDoc[model.ModerationLog](r.s, model.CollectionModerationLogs, caseID)
}

func (r *ModerationLogs) GetByUser(_ context.Context, guildID, userID string) ([]*model.ModerationLog, error) {
	out, err := listDocs(r.s, model.CollectionModerationLogs, func(m *model.ModerationLog) bool {
		return m.GuildID == guildID && m.UserID == userID
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *ModerationLogs) CountWarnings(_ context.Context, guildID, userID string) (int64, error) {
	out, err := listDocs(r.s, model.CollectionModerationLogs, func(m *model.ModerationLog) bool {
		return m.GuildID == guildID && m.UserID == userID && m.Action == model.ActionWarn
	})
	return int64(len(out)), err
}

func (r *ModerationLogs) RemoveCase(_ context.Context, caseID string) error {
	return r.s.Update(model.CollectionModerationLogs, func(doc Document) error {
		if _, exists := doc[caseID]; !exists {
			return apperrors.NewNotFoundError("moderation case").WithDetail("caseId", caseID)
		}
		delete(doc, caseID)
		return nil
	})
}

// ScheduledRoles mirrors the scheduled role repository on disk.
type ScheduledRoles struct{ s *Store }

func (r *ScheduledRoles) Create(_ context.Context, job *model.ScheduledRole) error {
	if job.ID == "" {
		job.ID = model.NewID()
	}
	if err := model.Validate(job); err != nil {
		return err
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.s.now()
	}
	return r.s.Update(model.CollectionScheduledRoles, func(doc Document) error {
		if _, exists := doc[job.Key()]; exists {
			return apperrors.NewConflictError("scheduled role already exists").WithDetail("scheduleId", job.ID)
		}
		return putRaw(doc, job.Key(), job)
	})
}

func (r *ScheduledRoles) GetByID(_ context.Context, id string) (*model.ScheduledRole, error) {
	return getDoc[model.ScheduledRole](r.s, model.CollectionScheduledRoles, id)
}

func (r *ScheduledRoles) GetByGuild(_ context.Context, guildID string) ([]*model.ScheduledRole, error) {
	out, err := listDocs(r.s, model.CollectionScheduledRoles, func(j *model.ScheduledRole) bool {
		return j.GuildID == guildID
	})
	return sortBySchedule(out), err
}

func (r *ScheduledRoles) GetDue(_ context.Context, now time.Time) ([]*model.ScheduledRole, error) {
	out, err := listDocs(r.s, model.CollectionScheduledRoles, func(j *model.ScheduledRole) bool {
		return j.Due(now)
	})
	return sortBySchedule(out), err
}

func (r *ScheduledRoles) MarkExecuted(_ context.Context, id string, at time.Time) error {
	_, err := modifyDoc(r.s, model.CollectionScheduledRoles, id,
		func(cur *model.ScheduledRole) (*model.ScheduledRole, error) {
			if cur == nil {
				return nil, apperrors.NewNotFoundError("scheduled role").WithDetail("scheduleId", id)
			}
			cur.Executed = true
			cur.ExecutedAt = &at
			return cur, nil
		})
	return err
}

func (r *ScheduledRoles) Delete(_ context.Context, id string) error {
	return deleteDoc(r.s, model.CollectionScheduledRoles, id)
}

func sortBySchedule(jobs []*model.ScheduledRole) []*model.ScheduledRole {
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ScheduledAt.Before(jobs[j].ScheduledAt) })
	return jobs
}

// Supporters mirrors the supporter repository on disk.
type Supporters struct{ s *Store }

func (r *Supporters) AddSupporter(_ context.Context, supporter *model.Supporter) error {
	if err := model.Validate(supporter); err != nil {
		return err
	}
	if supporter.AddedAt.IsZero() {
		supporter.AddedAt = r.s.now()
	}
	return r.s.Update(model.CollectionSupporters, func(doc Document) error {
		if _, exists := doc[supporter.Key()]; exists {
			return nil
		}
		return putRaw(doc, supporter.Key(), supporter)
	})
}

func (r *Supporters) RemoveSupporter(_ context.Context, guildID, userID string) error {
	return deleteDoc(r.s, model.CollectionSupporters, model.SupporterKey(guildID, userID))
}

func (r *Supporters) GetByGuild(_ context.Context, guildID string) ([]*model.Supporter, error) {
	out, err := listDocs(r.s, model.CollectionSupporters, func(s *model.Supporter) bool {
		return s.GuildID == guildID
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

func (r *Supporters) IsSupporter(_ context.Context, guildID, userID string) (bool, error) {
	s, err := getDoc[model.Supporter](r.s, model.CollectionSupporters, model.SupporterKey(guildID, userID))
	return s != nil, err
}

// CommandAnalytics mirrors the analytics repository on disk.
type CommandAnalytics struct{ s *Store }

func (r *CommandAnalytics) IncrementCommand(_ context.Context, guildID, command string, at time.Time) error {
	date := at.UTC().Format(model.AnalyticsDateLayout)
	_, err := modifyDoc(r.s, model.CollectionCommandAnalytics, model.AnalyticsKey(date, guildID),
		func(cur *model.CommandAnalytics) (*model.CommandAnalytics, error) {
			if cur == nil {
				cur = &model.CommandAnalytics{Date: date, GuildID: guildID}
			}
			if cur.Commands == nil {
				cur.Commands = map[string]int64{}
			}
			cur.Commands[model.CommandField(command)]++
			cur.Total++
			cur.UpdatedAt = r.s.now()
			return cur, model.Validate(cur)
		})
	return err
}

func (r *CommandAnalytics) GetDaily(_ context.Context, guildID, date string) (*model.CommandAnalytics, error) {
	return getDoc[model.CommandAnalytics](r.s, model.CollectionCommandAnalytics, model.AnalyticsKey(date, guildID))
}
