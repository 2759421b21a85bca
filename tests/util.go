package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"github.com/lifecraft/backend/core"
	"github.com/lifecraft/backend/core/community"
	"github.com/lifecraft/backend/core/learning"
	"github.com/lifecraft/backend/core/user"
)

// NewConfig returns a Config suitable for tests; no external services needed.
func NewConfig() *core.Config {
	return &core.Config{
		TestMode:                  true,
		Env:                       "TEST",
		AppName:                   "LifeCraft",
		SecretKey:                 []byte("s3cr3t-t3st-k3y"),
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Name: "LifeCraft", Address: "noreply@test.cd"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        30 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Badge: core.BadgeConfig{
			BonusPoints:  50,
			NewBadgesTTL: 5 * time.Minute,
			AllBadgesTTL: 24 * time.Hour,
		},
		Recommend: core.RecommendConfig{
			CacheTTL: time.Hour,
		},
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateItem(
	t *testing.T,
	repo learning.Repository,
	kind, title, category, difficulty string,
	points int,
	locked bool,
) learning.Item {
	t.Helper()

	now := time.Now().UTC()
	item := learning.Item{
		Kind:       kind,
		Title:      title,
		Summary:    title + " summary",
		Category:   category,
		Difficulty: difficulty,
		Points:     points,
		Locked:     locked,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	item, err := repo.CreateItem(context.Background(), item)
	if err != nil {
		t.Fatalf("CreateItem() failed: %v", err)
	}
	return item
}

func CreateCompletion(
	t *testing.T,
	repo learning.Repository,
	userID, itemID string,
	score int,
	completedAt ...time.Time,
) learning.Completion {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(completedAt) > 0 {
		tstamp = completedAt[0].UTC()
	}
	cmp, err := repo.CreateCompletion(context.Background(), learning.Completion{
		UserID:      userID,
		ItemID:      itemID,
		Score:       score,
		CompletedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateCompletion() failed: %v", err)
	}
	return cmp
}

func CreateSession(
	t *testing.T,
	repo community.Repository,
	title, location string,
	startsAt time.Time,
	capacity int,
) community.Session {
	t.Helper()

	now := time.Now().UTC()
	sess, err := repo.CreateSession(context.Background(), community.Session{
		Title:     title,
		Location:  location,
		StartsAt:  startsAt.UTC(),
		Capacity:  capacity,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return sess
}
