package learning_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifecraft/backend/core"
	"github.com/lifecraft/backend/core/learning"
	"github.com/lifecraft/backend/core/user"
	brokersvc "github.com/lifecraft/backend/services/broker"
	emailsvc "github.com/lifecraft/backend/services/email"
	logsvc "github.com/lifecraft/backend/services/logger"
	inmemdb "github.com/lifecraft/backend/storage/database/inmem"
	testutil "github.com/lifecraft/backend/tests"
)

type learningFixture struct {
	db     *inmemdb.DB
	broker *brokersvc.InmemBroker
	usrSvc user.Service
	repo   learning.Repository
	svc    learning.Service
}

func newLearningFixture(t *testing.T) *learningFixture {
	t.Helper()

	conf := testutil.NewConfig()
	db := inmemdb.NewDB()
	broker := brokersvc.NewInmemBroker()
	usrSvc := user.NewServiceMock(inmemdb.NewUserRepository(db), emailsvc.NewConsoleServiceMock(conf), conf)
	repo := inmemdb.NewLearningRepository(db)
	svc := learning.NewService(repo, usrSvc, broker, logsvc.NewTestLogger())
	return &learningFixture{db: db, broker: broker, usrSvc: usrSvc, repo: repo, svc: svc}
}

func intPtr(i int) *int { return &i }

func Test_learning_Complete_awardsPointsOnce(t *testing.T) {
	fix := newLearningFixture(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, inmemdb.NewUserRepository(fix.db), "Jane", "jane01", "jane@test.cd", "", nil, true)
	item := testutil.CreateItem(t, fix.repo, learning.KindModule, "Flood Basics", "floods", learning.DifficultyBeginner, 25, false)

	cmp, err := fix.svc.Complete(ctx, usr, item.ID, learning.CompleteItem{})
	require.NoError(t, err)
	assert.Equal(t, 100, cmp.Score, "non-drill completions record a full score")

	got, err := fix.usrSvc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, got.Points)

	// re-completing never re-awards points
	_, err = fix.svc.Complete(ctx, usr, item.ID, learning.CompleteItem{})
	require.NoError(t, err)
	got, err = fix.usrSvc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, got.Points)

	require.Len(t, fix.broker.Messages, 2)
	assert.Equal(t, usr.ID, fix.broker.Messages[0].UserID)
	assert.Equal(t, "learning.complete", fix.broker.Messages[0].Reason)
}

func Test_learning_Complete_drillKeepsBestScore(t *testing.T) {
	fix := newLearningFixture(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, inmemdb.NewUserRepository(fix.db), "Jane", "jane01", "jane@test.cd", "", nil, true)
	drill := testutil.CreateItem(t, fix.repo, learning.KindDrill, "Fire Drill", "fires", learning.DifficultyBeginner, 10, false)

	cmp, err := fix.svc.Complete(ctx, usr, drill.ID, learning.CompleteItem{Score: intPtr(60)})
	require.NoError(t, err)
	assert.Equal(t, 60, cmp.Score)

	// a lower retake keeps the stored best
	cmp, err = fix.svc.Complete(ctx, usr, drill.ID, learning.CompleteItem{Score: intPtr(40)})
	require.NoError(t, err)
	assert.Equal(t, 60, cmp.Score)

	// a better retake replaces it
	cmp, err = fix.svc.Complete(ctx, usr, drill.ID, learning.CompleteItem{Score: intPtr(90)})
	require.NoError(t, err)
	assert.Equal(t, 90, cmp.Score)
}

func Test_learning_Complete_lockedItem(t *testing.T) {
	fix := newLearningFixture(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, inmemdb.NewUserRepository(fix.db), "Jane", "jane01", "jane@test.cd", "", nil, true)
	admin := testutil.CreateUser(t, inmemdb.NewUserRepository(fix.db), "Root", "root01", "root@test.cd", "", []string{user.RoleAdmin}, true)
	item := testutil.CreateItem(t, fix.repo, learning.KindModule, "Locked Module", "floods", learning.DifficultyAdvanced, 10, true)

	_, err := fix.svc.Complete(ctx, usr, item.ID, learning.CompleteItem{})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, learning.ErrItemLocked, errors.Cause(vErr.Err))

	// admins may preview locked content
	_, err = fix.svc.Complete(ctx, admin, item.ID, learning.CompleteItem{})
	assert.NoError(t, err)
}

func Test_learning_Complete_unknownItem(t *testing.T) {
	fix := newLearningFixture(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, inmemdb.NewUserRepository(fix.db), "Jane", "jane01", "jane@test.cd", "", nil, true)
	_, err := fix.svc.Complete(ctx, usr, "nope", learning.CompleteItem{})
	assert.Equal(t, learning.ErrNotFound, errors.Cause(err))
}

func Test_learning_Available_excludesLockedAndCompleted(t *testing.T) {
	fix := newLearningFixture(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, inmemdb.NewUserRepository(fix.db), "Jane", "jane01", "jane@test.cd", "", nil, true)
	done := testutil.CreateItem(t, fix.repo, learning.KindModule, "Done", "floods", learning.DifficultyBeginner, 10, false)
	open := testutil.CreateItem(t, fix.repo, learning.KindModule, "Open", "floods", learning.DifficultyBeginner, 10, false)
	testutil.CreateItem(t, fix.repo, learning.KindModule, "Locked", "floods", learning.DifficultyBeginner, 10, true)
	testutil.CreateCompletion(t, fix.repo, usr.ID, done.ID, 100)

	available, err := fix.svc.Available(ctx, usr.ID)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, open.ID, available[0].ID)
}

func Test_learning_ComputeStats(t *testing.T) {
	item := func(kind, category string) learning.Item {
		return learning.Item{Kind: kind, Category: category}
	}
	tests := []struct {
		name      string
		completed []learning.CompletedItem
		totals    map[string]int
		want      learning.AchievementStats
	}{
		{name: "no completions", totals: map[string]int{"floods": 3}},
		{
			name: "modules counted, average over all kinds",
			completed: []learning.CompletedItem{
				{Item: item(learning.KindModule, "floods"), Score: 80},
				{Item: item(learning.KindDrill, "floods"), Score: 60},
				{Item: item(learning.KindTutorial, "fires"), Score: 100},
			},
			totals: map[string]int{"floods": 5, "fires": 2},
			want: learning.AchievementStats{
				CompletedModuleCount: 1,
				AverageScore:         80,
				HasPerfectScore:      true,
			},
		},
		{
			name: "full category detected",
			completed: []learning.CompletedItem{
				{Item: item(learning.KindModule, "fires"), Score: 70},
				{Item: item(learning.KindModule, "fires"), Score: 75},
			},
			totals: map[string]int{"fires": 2},
			want: learning.AchievementStats{
				CompletedModuleCount:     2,
				AverageScore:             72.5,
				HasCompletedFullCategory: true,
			},
		},
		{
			name: "category with no unlocked items never counts as full",
			completed: []learning.CompletedItem{
				{Item: item(learning.KindModule, "ghost"), Score: 50},
			},
			totals: map[string]int{},
			want: learning.AchievementStats{
				CompletedModuleCount: 1,
				AverageScore:         50,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := learning.ComputeStats(tt.completed, tt.totals)
			assert.Equal(t, tt.want, got)
		})
	}
}
