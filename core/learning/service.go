package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/lifecraft/backend/core"
	"github.com/lifecraft/backend/core/user"
)

var (
	// errors
	ErrNotFound   = errors.New("learning item not found")
	ErrItemLocked = errors.New("this item is not unlocked yet")
)

type (
	Repository interface {
		CreateItem(ctx context.Context, item Item) (Item, error)
		UpdateItem(ctx context.Context, item Item, locked *bool) (Item, error)
		DeleteItemsByID(ctx context.Context, ids ...string) error
		GetItemByID(ctx context.Context, id string) (Item, error)
		// QueryItems applies AND operation on available QueryFilter fields.
		QueryItems(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Item, error)
		// CountItemsByCategory counts unlocked items per category.
		CountItemsByCategory(ctx context.Context) (map[string]int, error)
		// QueryAvailableItems returns unlocked items the user has not completed.
		QueryAvailableItems(ctx context.Context, userID string) ([]Item, error)

		GetCompletion(ctx context.Context, userID, itemID string) (Completion, error)
		CreateCompletion(ctx context.Context, cmp Completion) (Completion, error)
		UpdateCompletionScore(ctx context.Context, id string, score int) (Completion, error)
		QueryUserCompletions(ctx context.Context, userID string) ([]CompletedItem, error)
	}

	Service interface {
		Create(ctx context.Context, ni NewItem) (Item, error)
		Update(ctx context.Context, id string, ui UpdateItem) (Item, error)
		Delete(ctx context.Context, ids ...string) error
		GetByID(ctx context.Context, id string) (Item, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Item, error)
		Complete(ctx context.Context, usr user.User, itemID string, data CompleteItem) (Completion, error)
		UserCompletions(ctx context.Context, userID string) ([]CompletedItem, error)
		Stats(ctx context.Context, userID string) (AchievementStats, error)
		Available(ctx context.Context, userID string) ([]Item, error)
	}

	service struct {
		repo   Repository
		usrSvc user.Service
		broker core.Broker
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrSvc user.Service, broker core.Broker, logger core.Logger) Service {
	return &service{
		repo:   repo,
		usrSvc: usrSvc,
		broker: broker,
		logger: logger,
	}
}

func (svc *service) Create(ctx context.Context, ni NewItem) (Item, error) {
	now := time.Now().UTC()
	item := Item{
		Kind:       ni.Kind,
		Title:      ni.Title,
		Summary:    ni.Summary,
		Category:   ni.Category,
		Difficulty: ni.Difficulty,
		Points:     ni.Points,
		Locked:     ni.Locked,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return svc.repo.CreateItem(ctx, item)
}

func (svc *service) Update(ctx context.Context, id string, ui UpdateItem) (Item, error) {
	item := Item{
		ID:         id,
		Title:      ui.Title,
		Summary:    ui.Summary,
		Category:   ui.Category,
		Difficulty: ui.Difficulty,
		UpdatedAt:  time.Now().UTC(),
	}
	if ui.Points != nil {
		item.Points = *ui.Points
	} else {
		item.Points = -1 // keep stored value
	}
	return svc.repo.UpdateItem(ctx, item, ui.Locked)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteItemsByID(ctx, ids...)
}

func (svc *service) GetByID(ctx context.Context, id string) (Item, error) {
	return svc.repo.GetItemByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Item, error) {
	return svc.repo.QueryItems(ctx, filter, ordering)
}

// Complete records that usr finished the item. The first completion awards the
// item's points and a re-completion only keeps the best score; either way a
// badge evaluation is enqueued when the user's stats may have changed.
func (svc *service) Complete(ctx context.Context, usr user.User, itemID string, data CompleteItem) (Completion, error) {
	item, err := svc.repo.GetItemByID(ctx, itemID)
	if err != nil {
		return Completion{}, err
	}
	if item.Locked && !usr.IsAdmin() {
		return Completion{}, core.NewValidationError(ErrItemLocked)
	}

	score := 100
	if item.Kind == KindDrill && data.Score != nil {
		score = *data.Score
	}

	cmp, err := svc.repo.GetCompletion(ctx, usr.ID, item.ID)
	switch errors.Cause(err) {
	case nil:
		if score <= cmp.Score {
			return cmp, nil // nothing improved
		}
		if cmp, err = svc.repo.UpdateCompletionScore(ctx, cmp.ID, score); err != nil {
			return Completion{}, errors.Wrap(err, "updating completion score")
		}
	case ErrNotFound:
		cmp = Completion{
			UserID:      usr.ID,
			ItemID:      item.ID,
			Score:       score,
			CompletedAt: time.Now().UTC(),
		}
		if cmp, err = svc.repo.CreateCompletion(ctx, cmp); err != nil {
			return Completion{}, errors.Wrap(err, "creating completion")
		}
		if item.Points > 0 {
			if _, err = svc.usrSvc.AddPoints(ctx, usr.ID, item.Points); err != nil {
				return Completion{}, errors.Wrap(err, "awarding item points")
			}
		}
	default:
		return Completion{}, errors.Wrap(err, "checking existing completion")
	}

	svc.enqueueBadgeEvaluation(ctx, usr.ID)
	return cmp, nil
}

func (svc *service) UserCompletions(ctx context.Context, userID string) ([]CompletedItem, error) {
	return svc.repo.QueryUserCompletions(ctx, userID)
}

func (svc *service) Stats(ctx context.Context, userID string) (AchievementStats, error) {
	completed, err := svc.repo.QueryUserCompletions(ctx, userID)
	if err != nil {
		return AchievementStats{}, errors.Wrap(err, "querying user completions")
	}
	totals, err := svc.repo.CountItemsByCategory(ctx)
	if err != nil {
		return AchievementStats{}, errors.Wrap(err, "counting items per category")
	}
	return ComputeStats(completed, totals), nil
}

func (svc *service) Available(ctx context.Context, userID string) ([]Item, error) {
	return svc.repo.QueryAvailableItems(ctx, userID)
}

// enqueueBadgeEvaluation publishes a badge evaluation for the user; the
// completion is already committed so a broker failure is only logged.
func (svc *service) enqueueBadgeEvaluation(ctx context.Context, userID string) {
	msg := core.BadgeEvaluation{
		UserID:     userID,
		Reason:     "learning.complete",
		EnqueuedAt: time.Now().UTC(),
	}
	if err := svc.broker.PublishBadgeEvaluation(ctx, msg); err != nil {
		svc.logger.Error(fmt.Sprintf("enqueueing badge evaluation: %v", err), err)
	}
}
