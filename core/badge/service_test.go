package badge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifecraft/backend/core/badge"
	"github.com/lifecraft/backend/core/learning"
	"github.com/lifecraft/backend/core/user"
	brokersvc "github.com/lifecraft/backend/services/broker"
	cachesvc "github.com/lifecraft/backend/services/cache"
	emailsvc "github.com/lifecraft/backend/services/email"
	logsvc "github.com/lifecraft/backend/services/logger"
	inmemdb "github.com/lifecraft/backend/storage/database/inmem"
	testutil "github.com/lifecraft/backend/tests"
)

type badgeFixture struct {
	db        *inmemdb.DB
	cache     *cachesvc.InmemCache
	usrSvc    user.Service
	learnRepo learning.Repository
	badgeSvc  badge.Service
}

func newBadgeFixture(t *testing.T) *badgeFixture {
	t.Helper()

	conf := testutil.NewConfig()
	db := inmemdb.NewDB()
	logger := logsvc.NewTestLogger()
	cache := cachesvc.NewInmemCache()
	usrSvc := user.NewServiceMock(inmemdb.NewUserRepository(db), emailsvc.NewConsoleServiceMock(conf), conf)
	learnRepo := inmemdb.NewLearningRepository(db)
	learnSvc := learning.NewService(learnRepo, usrSvc, brokersvc.NewInmemBroker(), logger)
	badgeSvc := badge.NewService(inmemdb.NewBadgeRepository(db), learnSvc, usrSvc, cache, conf.Badge, logger)
	return &badgeFixture{
		db:        db,
		cache:     cache,
		usrSvc:    usrSvc,
		learnRepo: learnRepo,
		badgeSvc:  badgeSvc,
	}
}

func badgeNames(badges []badge.Badge) []string {
	names := make([]string, 0, len(badges))
	for _, b := range badges {
		names = append(names, b.Name)
	}
	return names
}

func earnedNames(badges []badge.EarnedBadge) []string {
	names := make([]string, 0, len(badges))
	for _, b := range badges {
		names = append(names, b.Name)
	}
	return names
}

func Test_badge_Evaluate_firstCompletion(t *testing.T) {
	fix := newBadgeFixture(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, inmemdb.NewUserRepository(fix.db), "Jane", "jane01", "jane@test.cd", "", nil, true)
	item := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Flood Basics", "floods", learning.DifficultyBeginner, 10, false)
	testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Flood Response", "floods", learning.DifficultyIntermediate, 10, false)
	testutil.CreateCompletion(t, fix.learnRepo, usr.ID, item.ID, 80)

	newly, err := fix.badgeSvc.Evaluate(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"First Steps"}, badgeNames(newly))

	got, err := fix.usrSvc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Points, "one badge bonus expected")
}

func Test_badge_Evaluate_isDeterministicAndNeverReawards(t *testing.T) {
	fix := newBadgeFixture(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, inmemdb.NewUserRepository(fix.db), "Jane", "jane01", "jane@test.cd", "", nil, true)
	// 2 of 3 items in the category: full-category badge must not fire
	for i, title := range []string{"Quake Basics", "Quake Response"} {
		item := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, title, "earthquakes", learning.DifficultyBeginner, 10, false)
		testutil.CreateCompletion(t, fix.learnRepo, usr.ID, item.ID, 90+i)
	}
	testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Quake Drill", "earthquakes", learning.DifficultyAdvanced, 10, false)

	first, err := fix.badgeSvc.Evaluate(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"First Steps", "High Achiever"}, badgeNames(first), "awards follow rule declaration order")

	// unchanged stats: a second run awards nothing and adds no points
	second, err := fix.badgeSvc.Evaluate(ctx, usr.ID)
	require.NoError(t, err)
	assert.Empty(t, second)

	got, err := fix.usrSvc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Points)
}

func Test_badge_Evaluate_fullCategoryAndPerfectScore(t *testing.T) {
	fix := newBadgeFixture(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, inmemdb.NewUserRepository(fix.db), "Jane", "jane01", "jane@test.cd", "", nil, true)
	drill := testutil.CreateItem(t, fix.learnRepo, learning.KindDrill, "Fire Drill", "fires", learning.DifficultyBeginner, 10, false)
	testutil.CreateCompletion(t, fix.learnRepo, usr.ID, drill.ID, 100)

	newly, err := fix.badgeSvc.Evaluate(ctx, usr.ID)
	require.NoError(t, err)
	// drill is the only item in its category; no module completed yet
	assert.Equal(t, []string{"Sharp Shooter", "High Achiever", "Category Champion"}, badgeNames(newly))
}

func Test_badge_Evaluate_lockedItemsDoNotCountTowardsCategory(t *testing.T) {
	fix := newBadgeFixture(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, inmemdb.NewUserRepository(fix.db), "Jane", "jane01", "jane@test.cd", "", nil, true)
	item := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Storm Basics", "storms", learning.DifficultyBeginner, 10, false)
	testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Storm Secrets", "storms", learning.DifficultyAdvanced, 10, true)
	testutil.CreateCompletion(t, fix.learnRepo, usr.ID, item.ID, 70)

	newly, err := fix.badgeSvc.Evaluate(ctx, usr.ID)
	require.NoError(t, err)
	assert.Contains(t, badgeNames(newly), "Category Champion", "locked items are excluded from category totals")
}

func Test_badge_AllBadges_cacheAside(t *testing.T) {
	fix := newBadgeFixture(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, inmemdb.NewUserRepository(fix.db), "Jane", "jane01", "jane@test.cd", "", nil, true)
	item := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Flood Basics", "floods", learning.DifficultyBeginner, 10, false)
	testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Flood Response", "floods", learning.DifficultyIntermediate, 10, false)
	testutil.CreateCompletion(t, fix.learnRepo, usr.ID, item.ID, 75)

	_, err := fix.badgeSvc.Evaluate(ctx, usr.ID)
	require.NoError(t, err)

	all, err := fix.badgeSvc.AllBadges(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"First Steps"}, earnedNames(all))

	// cache flushed: the snapshot is rebuilt from the awards table
	fix.cache.Flush()
	all, err = fix.badgeSvc.AllBadges(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"First Steps"}, earnedNames(all))
}

func Test_badge_AllBadges_isDuplicateFreeUnion(t *testing.T) {
	fix := newBadgeFixture(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, inmemdb.NewUserRepository(fix.db), "Jane", "jane01", "jane@test.cd", "", nil, true)
	item := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Flood Basics", "floods", learning.DifficultyBeginner, 10, false)
	testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Flood Response", "floods", learning.DifficultyIntermediate, 10, false)
	testutil.CreateCompletion(t, fix.learnRepo, usr.ID, item.ID, 95)

	// repeated evaluations must not duplicate entries in the snapshot
	for i := 0; i < 3; i++ {
		_, err := fix.badgeSvc.Evaluate(ctx, usr.ID)
		require.NoError(t, err)
	}

	all, err := fix.badgeSvc.AllBadges(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"First Steps", "High Achiever"}, earnedNames(all))
}

func Test_badge_NewBadges(t *testing.T) {
	fix := newBadgeFixture(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, inmemdb.NewUserRepository(fix.db), "Jane", "jane01", "jane@test.cd", "", nil, true)

	// nothing evaluated yet: cache miss yields an empty list, not an error
	newly, err := fix.badgeSvc.NewBadges(ctx, usr.ID)
	require.NoError(t, err)
	assert.Empty(t, newly)

	item := testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Flood Basics", "floods", learning.DifficultyBeginner, 10, false)
	testutil.CreateItem(t, fix.learnRepo, learning.KindModule, "Flood Response", "floods", learning.DifficultyIntermediate, 10, false)
	testutil.CreateCompletion(t, fix.learnRepo, usr.ID, item.ID, 60)

	_, err = fix.badgeSvc.Evaluate(ctx, usr.ID)
	require.NoError(t, err)

	newly, err = fix.badgeSvc.NewBadges(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"First Steps"}, badgeNames(newly))

	// a no-op evaluation clears the newly-earned list
	_, err = fix.badgeSvc.Evaluate(ctx, usr.ID)
	require.NoError(t, err)
	newly, err = fix.badgeSvc.NewBadges(ctx, usr.ID)
	require.NoError(t, err)
	assert.Empty(t, newly)
}
