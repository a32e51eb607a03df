package mongodb

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/qodinger/role-reactor-bot-sub005/internal/shared/errors"
	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/logger"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/cache"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/config"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/model"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var repoNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type RepositorySuite struct {
	suite.Suite
	ctx     context.Context
	db      *MockDatabase
	objects *cache.ObjectCache
	queries *cache.QueryCache
	repos   *repository.Repositories
}

func (s *RepositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.db = NewMockDatabase("test")
	s.objects = cache.NewObjectCache(config.CacheConfig{})
	s.queries = cache.NewQueryCache(config.CacheConfig{})
	s.repos = NewRepositories(s.db, s.objects, s.queries, logger.NewNopLogger(),
		WithRepositoryClock(func() time.Time { return repoNow }))
}

func (s *RepositorySuite) TearDownTest() {
	s.objects.Close()
	s.queries.Close()
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) TestWelcomeSettings_ReadThroughCache() {
	col := s.db.Mock(model.CollectionWelcomeSettings)
	col.On("FindOne", mock.Anything, bson.M{"guildId": "G1"}).
		Return(singleResult(model.WelcomeSettings{GuildID: "G1", Enabled: true})).Once()

	first, err := s.repos.WelcomeSettings.GetByGuild(s.ctx, "G1")
	s.Require().NoError(err)
	s.True(first.Enabled)

	second, err := s.repos.WelcomeSettings.GetByGuild(s.ctx, "G1")
	s.Require().NoError(err)
	s.True(second.Enabled)
	col.AssertNumberOfCalls(s.T(), "FindOne", 1)
}

func (s *RepositorySuite) TestWelcomeSettings_MissingIsNil() {
	col := s.db.Mock(model.CollectionWelcomeSettings)
	col.On("FindOne", mock.Anything, mock.Anything).Return(noDocuments())

	got, err := s.repos.WelcomeSettings.GetByGuild(s.ctx, "G404")
	s.NoError(err)
	s.Nil(got)
	s.Equal(0, s.objects.Len(), "absence is not cached")
}

func (s *RepositorySuite) TestWelcomeSettings_SequentialSetsReflectLastWrite() {
	col := s.db.Mock(model.CollectionWelcomeSettings)
	col.On("ReplaceOne", mock.Anything, bson.M{"guildId": "G1"}, mock.Anything).
		Return(updateResult{matched: 1}, nil)

	s.Require().NoError(s.repos.WelcomeSettings.Set(s.ctx, &model.WelcomeSettings{GuildID: "G1", Enabled: true}))
	s.Require().NoError(s.repos.WelcomeSettings.Set(s.ctx, &model.WelcomeSettings{GuildID: "G1", Enabled: false, Message: "second"}))

	got, err := s.repos.WelcomeSettings.GetByGuild(s.ctx, "G1")
	s.Require().NoError(err)
	s.False(got.Enabled)
	s.Equal("second", got.Message)
	col.AssertNotCalled(s.T(), "FindOne", mock.Anything, mock.Anything)
}

func (s *RepositorySuite) TestWelcomeSettings_DeleteInvalidatesCache() {
	col := s.db.Mock(model.CollectionWelcomeSettings)
	col.On("ReplaceOne", mock.Anything, mock.Anything, mock.Anything).Return(updateResult{matched: 1}, nil)
	col.On("DeleteOne", mock.Anything, bson.M{"guildId": "G1"}).Return(deleteResult(1), nil)
	col.On("FindOne", mock.Anything, mock.Anything).Return(noDocuments())

	s.Require().NoError(s.repos.WelcomeSettings.Set(s.ctx, &model.WelcomeSettings{GuildID: "G1"}))
	s.Require().NoError(s.repos.WelcomeSettings.Delete(s.ctx, "G1"))

	got, err := s.repos.WelcomeSettings.GetByGuild(s.ctx, "G1")
	s.NoError(err)
	s.Nil(got)
}

func (s *RepositorySuite) TestWelcomeSettings_SetValidates() {
	err := s.repos.WelcomeSettings.Set(s.ctx, &model.WelcomeSettings{})
	s.True(apperrors.IsValidation(err))
}

func (s *RepositorySuite) TestGuildSettings_DefaultsNotCached() {
	col := s.db.Mock(model.CollectionGuildSettings)
	col.On("FindOne", mock.Anything, mock.Anything).Return(noDocuments())

	got, err := s.repos.GuildSettings.GetByGuild(s.ctx, "G1")
	s.Require().NoError(err)
	s.Equal(model.DefaultGuildSettings("G1"), got)

	_, _ = s.repos.GuildSettings.GetByGuild(s.ctx, "G1")
	col.AssertNumberOfCalls(s.T(), "FindOne", 2)
}

func (s *RepositorySuite) TestLeaderboard_ServedFromQueryCache() {
	col := s.db.Mock(model.CollectionUserExperience)
	col.On("Find", mock.Anything, bson.M{"guildId": "G1"}, mock.Anything).
		Return(cursorOf(
			model.UserExperience{GuildID: "G1", UserID: "U2", TotalXP: 500},
			model.UserExperience{GuildID: "G1", UserID: "U1", TotalXP: 300},
		), nil).Once()

	first, err := s.repos.UserExperience.GetLeaderboard(s.ctx, "G1", 10)
	s.Require().NoError(err)
	s.Require().Len(first, 2)
	s.Equal("U2", first[0].UserID)

	second, err := s.repos.UserExperience.GetLeaderboard(s.ctx, "G1", 10)
	s.Require().NoError(err)
	s.Len(second, 2)
	col.AssertNumberOfCalls(s.T(), "Find", 1)
}

func (s *RepositorySuite) TestAddXP_RecomputesLevelAndInvalidatesLeaderboard() {
	col := s.db.Mock(model.CollectionUserExperience)
	col.On("Find", mock.Anything, mock.Anything, mock.Anything).
		Return(cursorOf(model.UserExperience{GuildID: "G1", UserID: "U1", TotalXP: 10}), nil).Once()
	col.On("Find", mock.Anything, mock.Anything, mock.Anything).
		Return(cursorOf(model.UserExperience{GuildID: "G1", UserID: "U1", TotalXP: 160, Level: 1}), nil).Once()
	col.On("FindOneAndUpdate", mock.Anything, bson.M{"guildId": "G1", "userId": "U1"}, mock.Anything).
		Return(singleResult(model.UserExperience{GuildID: "G1", UserID: "U1", TotalXP: 160, MessageCount: 2}))
	col.On("UpdateOne", mock.Anything, bson.M{"guildId": "G1", "userId": "U1"},
		bson.M{"$set": bson.M{"level": 1, "totalXP": int64(160)}}).Return(updateResult{matched: 1}, nil)

	_, err := s.repos.UserExperience.GetLeaderboard(s.ctx, "G1", 5)
	s.Require().NoError(err)

	ue, err := s.repos.UserExperience.AddXP(s.ctx, "G1", "U1", 150)
	s.Require().NoError(err)
	s.Equal(1, ue.Level)
	s.Equal(int64(160), ue.TotalXP)

	board, err := s.repos.UserExperience.GetLeaderboard(s.ctx, "G1", 5)
	s.Require().NoError(err)
	s.Equal(int64(160), board[0].TotalXP)
	col.AssertNumberOfCalls(s.T(), "Find", 2)

	cached, err := s.repos.UserExperience.Get(s.ctx, "G1", "U1")
	s.Require().NoError(err)
	s.Equal(1, cached.Level)
	col.AssertNotCalled(s.T(), "FindOne", mock.Anything, mock.Anything)
}

func (s *RepositorySuite) TestPolls_ListingCachedUntilWrite() {
	col := s.db.Mock(model.CollectionPolls)
	col.On("Find", mock.Anything, bson.M{"guildId": "G1", "isActive": true}, mock.Anything).
		Return(cursorOf(model.Poll{ID: "p1", GuildID: "G1", IsActive: true}), nil).Twice()
	col.On("InsertOne", mock.Anything, mock.Anything).Return("id", nil)

	_, err := s.repos.Polls.GetByGuild(s.ctx, "G1", true)
	s.Require().NoError(err)
	_, err = s.repos.Polls.GetByGuild(s.ctx, "G1", true)
	s.Require().NoError(err)
	col.AssertNumberOfCalls(s.T(), "Find", 1)

	poll := &model.Poll{GuildID: "G1", CreatorID: "U1", Question: "?", Options: []string{"a", "b"}, IsActive: true}
	s.Require().NoError(s.repos.Polls.Create(s.ctx, poll))
	s.NotEmpty(poll.ID)
	s.Equal(repoNow, poll.CreatedAt)

	_, err = s.repos.Polls.GetByGuild(s.ctx, "G1", true)
	s.Require().NoError(err)
	col.AssertNumberOfCalls(s.T(), "Find", 2)
}

func (s *RepositorySuite) TestPolls_UpdateMissingIsNotFound() {
	col := s.db.Mock(model.CollectionPolls)
	col.On("ReplaceOne", mock.Anything, bson.M{"pollId": "ghost"}, mock.Anything).Return(updateResult{}, nil)

	err := s.repos.Polls.Update(s.ctx, &model.Poll{ID: "ghost", GuildID: "G1", CreatorID: "U1", Question: "?", Options: []string{"a", "b"}})
	s.True(apperrors.IsNotFound(err))
}

func (s *RepositorySuite) TestPolls_DeleteEndedDropsCachedPolls() {
	col := s.db.Mock(model.CollectionPolls)
	col.On("InsertOne", mock.Anything, mock.Anything).Return("id", nil)
	col.On("DeleteMany", mock.Anything, mock.Anything).Return(deleteResult(1), nil)

	s.Require().NoError(s.repos.Polls.Create(s.ctx, &model.Poll{ID: "p1", GuildID: "G1", CreatorID: "U1", Question: "?", Options: []string{"a", "b"}}))
	s.Equal(1, s.objects.Len())

	n, err := s.repos.Polls.DeleteEnded(s.ctx, repoNow)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
	s.Equal(0, s.objects.Len())
}

func (s *RepositorySuite) TestPolls_UnsavedMutationDoesNotReachCache() {
	col := s.db.Mock(model.CollectionPolls)
	col.On("FindOne", mock.Anything, bson.M{"pollId": "p1"}).
		Return(singleResult(model.Poll{
			ID: "p1", GuildID: "G1", CreatorID: "U1", Question: "?",
			Options: []string{"a", "b"}, Votes: map[string][]int{"U1": {0}}, IsActive: true,
		})).Once()
	col.On("ReplaceOne", mock.Anything, bson.M{"pollId": "p1"}, mock.Anything).
		Return(nil, errors.New("write rejected"))

	poll, err := s.repos.Polls.GetByID(s.ctx, "p1")
	s.Require().NoError(err)
	poll.Votes["U2"] = []int{1}
	poll.Votes["U1"][0] = 1
	poll.Options[0] = "changed"
	s.Error(s.repos.Polls.Update(s.ctx, poll))

	again, err := s.repos.Polls.GetByID(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal(map[string][]int{"U1": {0}}, again.Votes)
	s.Equal([]string{"a", "b"}, again.Options)
	col.AssertNumberOfCalls(s.T(), "FindOne", 1)
}

func (s *RepositorySuite) TestLeaderboard_CallersGetIndependentCopies() {
	col := s.db.Mock(model.CollectionUserExperience)
	col.On("Find", mock.Anything, bson.M{"guildId": "G1"}, mock.Anything).
		Return(cursorOf(
			model.UserExperience{GuildID: "G1", UserID: "U2", TotalXP: 500},
			model.UserExperience{GuildID: "G1", UserID: "U1", TotalXP: 300},
		), nil).Once()

	first, err := s.repos.UserExperience.GetLeaderboard(s.ctx, "G1", 10)
	s.Require().NoError(err)
	first[0].TotalXP = 1
	first[1] = &model.UserExperience{UserID: "intruder"}

	second, err := s.repos.UserExperience.GetLeaderboard(s.ctx, "G1", 10)
	s.Require().NoError(err)
	s.Require().Len(second, 2)
	s.Equal(int64(500), second[0].TotalXP)
	s.Equal("U1", second[1].UserID)
	col.AssertNumberOfCalls(s.T(), "Find", 1)
}

func (s *RepositorySuite) TestPolls_WrittenPollIsCopiedIntoCache() {
	col := s.db.Mock(model.CollectionPolls)
	col.On("InsertOne", mock.Anything, mock.Anything).Return("id", nil)

	poll := &model.Poll{ID: "p1", GuildID: "G1", CreatorID: "U1", Question: "?", Options: []string{"a", "b"}}
	s.Require().NoError(s.repos.Polls.Create(s.ctx, poll))
	poll.Votes["U9"] = []int{0}

	cached, err := s.repos.Polls.GetByID(s.ctx, "p1")
	s.Require().NoError(err)
	s.Empty(cached.Votes)
	col.AssertNotCalled(s.T(), "FindOne", mock.Anything, mock.Anything)
}

func (s *RepositorySuite) TestModerationLogs_DuplicateCaseIsConflict() {
	col := s.db.Mock(model.CollectionModerationLogs)
	col.On("InsertOne", mock.Anything, mock.Anything).Return(nil, duplicateKeyError())

	err := s.repos.ModerationLogs.Record(s.ctx, &model.ModerationLog{
		CaseID: "C1", GuildID: "G1", UserID: "U1", ModeratorID: "M", Action: model.ActionWarn,
	})
	s.True(apperrors.IsConflict(err))
	s.Equal(0, s.objects.Len())
}

func (s *RepositorySuite) TestModerationLogs_CountWarningsAndRemove() {
	col := s.db.Mock(model.CollectionModerationLogs)
	col.On("CountDocuments", mock.Anything, bson.M{"guildId": "G1", "userId": "U1", "action": model.ActionWarn}).
		Return(int64(3), nil)
	col.On("DeleteOne", mock.Anything, bson.M{"caseId": "C1"}).Return(deleteResult(0), nil)

	n, err := s.repos.ModerationLogs.CountWarnings(s.ctx, "G1", "U1")
	s.Require().NoError(err)
	s.Equal(int64(3), n)

	s.True(apperrors.IsNotFound(s.repos.ModerationLogs.RemoveCase(s.ctx, "C1")))
}

func (s *RepositorySuite) TestSupporters_DuplicateIsIdempotent() {
	col := s.db.Mock(model.CollectionSupporters)
	col.On("InsertOne", mock.Anything, mock.Anything).Return(nil, duplicateKeyError())

	err := s.repos.Supporters.AddSupporter(s.ctx, &model.Supporter{GuildID: "G1", UserID: "U1"})
	s.NoError(err)
}

func (s *RepositorySuite) TestSupporters_IsSupporter() {
	col := s.db.Mock(model.CollectionSupporters)
	col.On("FindOne", mock.Anything, bson.M{"guildId": "G1", "userId": "U1"}).
		Return(singleResult(model.Supporter{GuildID: "G1", UserID: "U1"}))
	col.On("FindOne", mock.Anything, bson.M{"guildId": "G1", "userId": "U2"}).Return(noDocuments())

	ok, err := s.repos.Supporters.IsSupporter(s.ctx, "G1", "U1")
	s.NoError(err)
	s.True(ok)
	ok, err = s.repos.Supporters.IsSupporter(s.ctx, "G1", "U2")
	s.NoError(err)
	s.False(ok)
}

func (s *RepositorySuite) TestScheduledRoles_MarkExecuted() {
	col := s.db.Mock(model.CollectionScheduledRoles)
	col.On("UpdateOne", mock.Anything, bson.M{"scheduleId": "S1"}, mock.Anything).Return(updateResult{matched: 1}, nil)
	col.On("UpdateOne", mock.Anything, bson.M{"scheduleId": "S2"}, mock.Anything).Return(updateResult{}, nil)

	s.NoError(s.repos.ScheduledRoles.MarkExecuted(s.ctx, "S1", repoNow))
	s.True(apperrors.IsNotFound(s.repos.ScheduledRoles.MarkExecuted(s.ctx, "S2", repoNow)))
}

func (s *RepositorySuite) TestTemporaryRoles_RemoveExpired() {
	col := s.db.Mock(model.CollectionTemporaryRoles)
	col.On("DeleteMany", mock.Anything, bson.M{"expiresAt": bson.M{"$lte": repoNow}}).Return(deleteResult(4), nil)

	n, err := s.repos.TemporaryRoles.RemoveExpired(s.ctx, repoNow)
	s.NoError(err)
	s.Equal(int64(4), n)
}

func (s *RepositorySuite) TestAnalytics_IncrementSanitisesCommand() {
	col := s.db.Mock(model.CollectionCommandAnalytics)
	col.On("UpdateOne", mock.Anything, bson.M{"date": "2024-03-01", "guildId": "G1"}, mock.MatchedBy(func(u bson.M) bool {
		inc, ok := u["$inc"].(bson.M)
		return ok && inc["commands.role_add"] == 1 && inc["total"] == 1
	})).Return(updateResult{upserted: true}, nil)

	s.NoError(s.repos.CommandAnalytics.IncrementCommand(s.ctx, "G1", "role.add", repoNow))
}

func (s *RepositorySuite) TestStoreErrors_NetworkIsUnavailable() {
	col := s.db.Mock(model.CollectionRoleMappings)
	col.On("FindOne", mock.Anything, mock.Anything).
		Return(&fakeSingleResult{err: mongo.CommandError{Code: 6, Labels: []string{"NetworkError"}}})

	_, err := s.repos.RoleMappings.GetByMessage(s.ctx, "M1")
	s.True(apperrors.IsUnavailable(err))
}

func TestStoreError_Plain(t *testing.T) {
	b := &base{name: "polls"}
	err := b.storeError(errors.New("boom"), "insert document")
	require.Error(t, err)
	assert.Equal(t, "failed to insert document in polls: boom", err.Error())
	assert.False(t, apperrors.IsUnavailable(err))
	assert.True(t, apperrors.IsConflict(b.storeError(duplicateKeyError(), "insert document")))
}
