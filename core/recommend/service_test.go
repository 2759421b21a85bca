package recommend_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifecraft/backend/core/badge"
	"github.com/lifecraft/backend/core/learning"
	"github.com/lifecraft/backend/core/recommend"
	"github.com/lifecraft/backend/core/user"
	brokersvc "github.com/lifecraft/backend/services/broker"
	cachesvc "github.com/lifecraft/backend/services/cache"
	emailsvc "github.com/lifecraft/backend/services/email"
	logsvc "github.com/lifecraft/backend/services/logger"
	inmemdb "github.com/lifecraft/backend/storage/database/inmem"
	testutil "github.com/lifecraft/backend/tests"
)

type generatorStub struct {
	response string
	err      error
	calls    int
}

func (g *generatorStub) Generate(context.Context, string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

type recommendFixture struct {
	db        *inmemdb.DB
	cache     *cachesvc.InmemCache
	gen       *generatorStub
	usr       user.User
	learnRepo learning.Repository
	svc       recommend.Service
}

func newRecommendFixture(t *testing.T, gen *generatorStub) *recommendFixture {
	t.Helper()

	conf := testutil.NewConfig()
	db := inmemdb.NewDB()
	logger := logsvc.NewTestLogger()
	cache := cachesvc.NewInmemCache()
	usrSvc := user.NewServiceMock(inmemdb.NewUserRepository(db), emailsvc.NewConsoleServiceMock(conf), conf)
	learnRepo := inmemdb.NewLearningRepository(db)
	learnSvc := learning.NewService(learnRepo, usrSvc, brokersvc.NewInmemBroker(), logger)
	badgeSvc := badge.NewService(inmemdb.NewBadgeRepository(db), learnSvc, usrSvc, cache, conf.Badge, logger)
	svc := recommend.NewService(gen, learnSvc, badgeSvc, cache, conf.Recommend, logger)

	usr := testutil.CreateUser(t, inmemdb.NewUserRepository(db), "Jane", "jane01", "jane@test.cd", "", nil, true)
	return &recommendFixture{
		db:        db,
		cache:     cache,
		gen:       gen,
		usr:       usr,
		learnRepo: learnRepo,
		svc:       svc,
	}
}

func itemIDs(recs []recommend.Recommendation) []string {
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ItemID)
	}
	return ids
}

func Test_recommend_emptyAvailableShortCircuits(t *testing.T) {
	gen := &generatorStub{response: "[]"}
	fix := newRecommendFixture(t, gen)
	ctx := context.Background()

	res, err := fix.svc.Recommend(ctx, fix.usr)
	require.NoError(t, err)
	assert.Empty(t, res.Recommendations)
	assert.False(t, res.FromCache)
	assert.Zero(t, gen.calls, "generation must not run with nothing to recommend")

	// the empty result is not cached either
	res, err = fix.svc.Recommend(ctx, fix.usr)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
}

func Test_recommend_cacheHitSkipsGeneration(t *testing.T) {
	item := `[{"item_id": "ID", "title": "T", "reason": "R"}]`
	gen := &generatorStub{response: item}
	fix := newRecommendFixture(t, gen)
	ctx := context.Background()

	created := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Flood Basics", "floods", learning.DifficultyBeginner, 10, false)
	gen.response = `[{"item_id": "` + created.ID + `", "title": "", "reason": ""}]`

	res, err := fix.svc.Recommend(ctx, fix.usr)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, 1, gen.calls)

	cached, err := fix.svc.Recommend(ctx, fix.usr)
	require.NoError(t, err)
	assert.True(t, cached.FromCache)
	assert.Equal(t, 1, gen.calls, "cache hit must not re-invoke generation")
	assert.Equal(t, res.Recommendations, cached.Recommendations)
}

func Test_recommend_stripsCodeFences(t *testing.T) {
	gen := &generatorStub{}
	fix := newRecommendFixture(t, gen)
	ctx := context.Background()

	created := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Flood Basics", "floods", learning.DifficultyBeginner, 10, false)
	gen.response = "```json\n[{\"item_id\": \"" + created.ID + "\", \"title\": \"Flood Basics\", \"reason\": \"start here\"}]\n```"

	res, err := fix.svc.Recommend(ctx, fix.usr)
	require.NoError(t, err)
	require.Len(t, res.Recommendations, 1)
	assert.Equal(t, created.ID, res.Recommendations[0].ItemID)
	assert.Equal(t, "start here", res.Recommendations[0].Reason)
}

func Test_recommend_truncatesAndFillsDefaults(t *testing.T) {
	gen := &generatorStub{}
	fix := newRecommendFixture(t, gen)
	ctx := context.Background()

	var items []learning.Item
	for _, title := range []string{"A", "B", "C", "D"} {
		items = append(items, testutil.CreateItem(t, fix.learnRepo, learning.KindModule, title, "floods", learning.DifficultyBeginner, 10, false))
	}
	// 4 entries, empty titles and reasons
	gen.response = `[` +
		`{"item_id": "` + items[0].ID + `"},` +
		`{"item_id": "` + items[1].ID + `"},` +
		`{"item_id": "` + items[2].ID + `"},` +
		`{"item_id": "` + items[3].ID + `"}]`

	res, err := fix.svc.Recommend(ctx, fix.usr)
	require.NoError(t, err)
	require.Len(t, res.Recommendations, recommend.MaxRecommendations)
	assert.Equal(t, []string{items[0].ID, items[1].ID, items[2].ID}, itemIDs(res.Recommendations))
	assert.Equal(t, "A", res.Recommendations[0].Title, "missing title is filled from the item")
	assert.NotEmpty(t, res.Recommendations[0].Reason, "missing reason gets a default")
}

func Test_recommend_topsUpShortResults(t *testing.T) {
	gen := &generatorStub{}
	fix := newRecommendFixture(t, gen)
	ctx := context.Background()

	var items []learning.Item
	for _, title := range []string{"A", "B", "C"} {
		items = append(items, testutil.CreateItem(t, fix.learnRepo, learning.KindModule, title, "floods", learning.DifficultyBeginner, 10, false))
	}
	gen.response = `[{"item_id": "` + items[1].ID + `", "title": "B", "reason": "next step"}]`

	res, err := fix.svc.Recommend(ctx, fix.usr)
	require.NoError(t, err)
	assert.Equal(t, []string{items[1].ID, items[0].ID, items[2].ID}, itemIDs(res.Recommendations))
}

func Test_recommend_dropsUnknownItems(t *testing.T) {
	gen := &generatorStub{}
	fix := newRecommendFixture(t, gen)
	ctx := context.Background()

	var items []learning.Item
	for _, title := range []string{"A", "B"} {
		items = append(items, testutil.CreateItem(t, fix.learnRepo, learning.KindModule, title, "floods", learning.DifficultyBeginner, 10, false))
	}
	// a made-up id and a repeat alongside one real suggestion
	gen.response = `[` +
		`{"item_id": "no-such-item", "title": "Ghost Module", "reason": "sounds useful"},` +
		`{"item_id": "` + items[1].ID + `", "title": "B", "reason": "next step"},` +
		`{"item_id": "` + items[1].ID + `", "title": "B", "reason": "again"}]`

	res, err := fix.svc.Recommend(ctx, fix.usr)
	require.NoError(t, err)
	assert.Equal(t, []string{items[1].ID, items[0].ID}, itemIDs(res.Recommendations))
}

func Test_recommend_fallbackOnGeneratorError(t *testing.T) {
	gen := &generatorStub{err: errors.New("model unavailable")}
	fix := newRecommendFixture(t, gen)
	ctx := context.Background()

	beginner := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Basics", "floods", learning.DifficultyBeginner, 10, false)
	advanced := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Mastery", "floods", learning.DifficultyAdvanced, 10, false)
	intermediate := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Response", "floods", learning.DifficultyIntermediate, 10, false)

	// no completions: average 0 ranks beginner > intermediate > advanced
	res, err := fix.svc.Recommend(ctx, fix.usr)
	require.NoError(t, err)
	assert.Equal(t, []string{beginner.ID, intermediate.ID, advanced.ID}, itemIDs(res.Recommendations))
}

func Test_recommend_fallbackOnUnparsableOutput(t *testing.T) {
	gen := &generatorStub{response: "I would recommend starting with the basics!"}
	fix := newRecommendFixture(t, gen)
	ctx := context.Background()

	completedItem := testutil.CreateItem(t, fix.learnRepo, learning.KindDrill, "Warmup", "floods", learning.DifficultyBeginner, 5, false)
	testutil.CreateCompletion(t, fix.learnRepo, fix.usr.ID, completedItem.ID, 85)

	beginner := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Basics", "floods", learning.DifficultyBeginner, 10, false)
	advanced := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Mastery", "floods", learning.DifficultyAdvanced, 10, false)
	intermediate := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Response", "floods", learning.DifficultyIntermediate, 10, false)

	// average 85 ranks advanced > intermediate > beginner
	res, err := fix.svc.Recommend(ctx, fix.usr)
	require.NoError(t, err)
	assert.Equal(t, []string{advanced.ID, intermediate.ID, beginner.ID}, itemIDs(res.Recommendations))
}

func Test_recommend_fallbackTieBreakKeepsIterationOrder(t *testing.T) {
	gen := &generatorStub{err: errors.New("down")}
	fix := newRecommendFixture(t, gen)
	ctx := context.Background()

	first := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "First", "floods", learning.DifficultyBeginner, 10, false)
	second := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Second", "floods", learning.DifficultyBeginner, 10, false)
	third := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Third", "floods", learning.DifficultyBeginner, 10, false)

	res, err := fix.svc.Recommend(ctx, fix.usr)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, itemIDs(res.Recommendations))
}
