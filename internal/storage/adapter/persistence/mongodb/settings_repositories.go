package mongodb

import (
	"context"

	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/model"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	_ repository.GuildSettingsRepository   = (*GuildSettingsRepository)(nil)
	_ repository.WelcomeSettingsRepository = (*WelcomeSettingsRepository)(nil)
	_ repository.GoodbyeSettingsRepository = (*GoodbyeSettingsRepository)(nil)
)

// GuildSettingsRepository stores one settings document per guild.
type GuildSettingsRepository struct{ base }

// GetByGuild falls back to defaults for a guild that never saved settings.
// Defaults are not cached.
func (r *GuildSettingsRepository) GetByGuild(ctx context.Context, guildID string) (*model.GuildSettings, error) {
	settings, err := findOne[model.GuildSettings](ctx, &r.base, r.key(guildID), bson.M{"guildId": guildID})
	if err != nil || settings != nil {
		return settings, err
	}
	return model.DefaultGuildSettings(guildID), nil
}

func (r *GuildSettingsRepository) Set(ctx context.Context, settings *model.GuildSettings) error {
	if err := model.Validate(settings); err != nil {
		return err
	}
	settings.UpdatedAt = r.now()
	if err := r.upsert(ctx, bson.M{"guildId": settings.GuildID}, settings); err != nil {
		return err
	}
	r.remember(r.key(settings.GuildID), *settings)
	return nil
}

// WelcomeSettingsRepository stores join-message configuration.
type WelcomeSettingsRepository struct{ base }

func (r *WelcomeSettingsRepository) GetByGuild(ctx context.Context, guildID string) (*model.WelcomeSettings, error) {
	return findOne[model.WelcomeSettings](ctx, &r.base, r.key(guildID), bson.M{"guildId": guildID})
}

func (r *WelcomeSettingsRepository) Set(ctx context.Context, settings *model.WelcomeSettings) error {
	if err := model.Validate(settings); err != nil {
		return err
	}
	settings.UpdatedAt = r.now()
	if err := r.upsert(ctx, bson.M{"guildId": settings.GuildID}, settings); err != nil {
		return err
	}
	r.remember(r.key(settings.GuildID), *settings)
	return nil
}

func (r *WelcomeSettingsRepository) Delete(ctx context.Context, guildID string) error {
	if _, err := r.deleteOne(ctx, bson.M{"guildId": guildID}); err != nil {
		return err
	}
	r.forget(r.key(guildID))
	return nil
}

// GoodbyeSettingsRepository stores leave-message configuration.
type GoodbyeSettingsRepository struct{ base }

func (r *GoodbyeSettingsRepository) GetByGuild(ctx context.Context, guildID string) (*model.GoodbyeSettings, error) {
	return findOne[model.GoodbyeSettings](ctx, &r.base, r.key(guildID), bson.M{"guildId": guildID})
}

func (r *GoodbyeSettingsRepository) Set(ctx context.Context, settings *model.GoodbyeSettings) error {
	if err := model.Validate(settings); err != nil {
		return err
	}
	settings.UpdatedAt = r.now()
	if err := r.upsert(ctx, bson.M{"guildId": settings.GuildID}, settings); err != nil {
		return err
	}
	r.remember(r.key(settings.GuildID), *settings)
	return nil
}

func (r *GoodbyeSettingsRepository) Delete(ctx context.Context, guildID string) error {
	if _, err := r.deleteOne(ctx, bson.M{"guildId": guildID}); err != nil {
		return err
	}
	r.forget(r.key(guildID))
	return nil
}
