package model

import "github.com/google/uuid"

// Collection names. Each maps to one mongo collection and one fallback file.
const (
	CollectionRoleMappings     = "role_mappings"
	CollectionTemporaryRoles   = "temporary_roles"
	CollectionUserExperience   = "user_experience"
	CollectionGuildSettings    = "guild_settings"
	CollectionWelcomeSettings  = "welcome_settings"
	CollectionGoodbyeSettings  = "goodbye_settings"
	CollectionPolls            = "polls"
	CollectionModerationLogs   = "moderation_logs"
	CollectionScheduledRoles   = "scheduled_roles"
	CollectionSupporters       = "supporters"
	CollectionCommandAnalytics = "command_analytics"
)

// AllCollections lists every collection the storage layer knows about.
var AllCollections = []string{
	CollectionRoleMappings,
	CollectionTemporaryRoles,
	CollectionUserExperience,
	CollectionGuildSettings,
	CollectionWelcomeSettings,
	CollectionGoodbyeSettings,
	CollectionPolls,
	CollectionModerationLogs,
	CollectionScheduledRoles,
	CollectionSupporters,
	CollectionCommandAnalytics,
}

// CacheKey builds the object cache key for a document of collection.
func CacheKey(collection string, parts ...string) string {
	key := collection
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// NewID returns a random identifier for documents created without one.
func NewID() string { return uuid.NewString() }
