package mongodb

import (
	"context"
	"errors"
	"testing"

	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/logger"
	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/metrics"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestRequiredIndexes_CoverEveryCollection(t *testing.T) {
	covered := map[string]bool{}
	for _, spec := range RequiredIndexes {
		covered[spec.Collection] = true
	}
	for _, c := range model.AllCollections {
		assert.True(t, covered[c], "collection %s has no index", c)
	}
}

func TestEnsureIndexes_DropsObsoleteFirstAndToleratesFailures(t *testing.T) {
	db := NewMockDatabase("test")
	var order []string

	db.Mock(model.CollectionRoleMappings).indexes.On("DropOne", mock.Anything, "guildId_1_messageId_1").
		Run(func(args mock.Arguments) { order = append(order, "drop") }).
		Return(mongo.CommandError{Code: 27, Name: "IndexNotFound"})
	db.Mock(model.CollectionUserExperience).indexes.On("DropOne", mock.Anything, "userId_1").Return(nil)
	db.Mock(model.CollectionModerationLogs).indexes.On("DropOne", mock.Anything, "caseId_1_guildId_1").
		Return(errors.New("not authorized"))

	for _, spec := range RequiredIndexes {
		im := db.Mock(spec.Collection).indexes
		if spec.Collection == model.CollectionPolls {
			im.On("CreateOne", mock.Anything, mock.Anything).Return("", errors.New("index build failed"))
			continue
		}
		im.On("CreateOne", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { order = append(order, "create") }).
			Return("ok", nil)
	}

	collector := metrics.NewCollector("test")
	failures := EnsureIndexes(context.Background(), db, logger.NewNopLogger(), collector)

	// one failed drop plus two failed poll indexes; the missing index is ignored
	assert.Equal(t, 3, failures)
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.IndexFailures.WithLabelValues(model.CollectionPolls)))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.IndexFailures.WithLabelValues(model.CollectionModerationLogs)))
	assert.Equal(t, "drop", order[0])

	db.Mock(model.CollectionSupporters).indexes.AssertNumberOfCalls(t, "CreateOne", 1)
}

func TestEnsureIndexes_UniqueFlag(t *testing.T) {
	db := NewMockDatabase("test")
	for c := range ObsoleteIndexes {
		db.Mock(c).indexes.On("DropOne", mock.Anything, mock.Anything).Return(nil)
	}
	var unique []string
	for _, spec := range RequiredIndexes {
		db.Mock(spec.Collection).indexes.On("CreateOne", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				idx := args.Get(1).(mongo.IndexModel)
				if idx.Options.Unique != nil && *idx.Options.Unique {
					unique = append(unique, *idx.Options.Name)
				}
			}).Return("ok", nil).Maybe()
	}

	assert.Zero(t, EnsureIndexes(context.Background(), db, nil, nil))
	assert.Contains(t, unique, "caseId_unique")
	assert.Contains(t, unique, "pollId_unique")
	assert.NotContains(t, unique, "expiresAt_1")
}
