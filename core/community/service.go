package community

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/lifecraft/backend/core"
	"github.com/lifecraft/backend/core/user"
)

var (
	// errors
	ErrNotFound          = errors.New("session not found")
	ErrSessionFull       = errors.New("this session is already full")
	ErrAlreadyRegistered = errors.New("you are already registered for this session")
	ErrNotRegistered     = errors.New("you are not registered for this session")
	ErrSessionStarted    = errors.New("this session has already started")
)

type (
	Repository interface {
		CreateSession(ctx context.Context, sess Session) (Session, error)
		UpdateSession(ctx context.Context, sess Session) (Session, error)
		DeleteSessionsByID(ctx context.Context, ids ...string) error
		GetSessionByID(ctx context.Context, id string) (SessionDetail, error)
		// QueryUpcomingSessions returns sessions starting at or after `from`,
		// soonest first, each with its registration count.
		QueryUpcomingSessions(ctx context.Context, from time.Time) ([]SessionDetail, error)

		GetRegistration(ctx context.Context, sessionID, userID string) (Registration, error)
		// CreateRegistration inserts the registration, enforcing capacity and
		// uniqueness in one atomic step: ErrSessionFull when the session is at
		// capacity, ErrAlreadyRegistered when (session, user) already exists.
		CreateRegistration(ctx context.Context, reg Registration) (Registration, error)
		DeleteRegistration(ctx context.Context, id string) error
		// QueryUserSessions returns the sessions the user is registered for,
		// soonest first.
		QueryUserSessions(ctx context.Context, userID string) ([]SessionDetail, error)
	}

	Service interface {
		Create(ctx context.Context, ns NewSession) (Session, error)
		Update(ctx context.Context, id string, us UpdateSession) (Session, error)
		Delete(ctx context.Context, ids ...string) error
		GetByID(ctx context.Context, id string) (SessionDetail, error)
		QueryUpcoming(ctx context.Context) ([]SessionDetail, error)
		// Register books usr a spot, checking capacity and duplicates.
		Register(ctx context.Context, usr user.User, sessionID string) (Registration, error)
		Cancel(ctx context.Context, usr user.User, sessionID string) error
		UserSessions(ctx context.Context, userID string) ([]SessionDetail, error)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		broker  core.Broker
		logger  core.Logger
		nowFunc func() time.Time // mockable
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, broker core.Broker, logger core.Logger) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		broker:  broker,
		logger:  logger,
		nowFunc: time.Now,
	}
}

func (svc *service) Create(ctx context.Context, ns NewSession) (Session, error) {
	now := svc.nowFunc().UTC()
	sess := Session{
		Title:       ns.Title,
		Description: ns.Description,
		Location:    ns.Location,
		StartsAt:    ns.StartsAt.UTC(),
		Capacity:    ns.Capacity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateSession(ctx, sess)
}

func (svc *service) Update(ctx context.Context, id string, us UpdateSession) (Session, error) {
	detail, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return Session{}, err
	}
	sess := detail.Session
	sess.Title = us.Title
	sess.Description = us.Description
	sess.Location = us.Location
	if us.StartsAt != nil {
		sess.StartsAt = us.StartsAt.UTC()
	}
	if us.Capacity != nil {
		sess.Capacity = *us.Capacity
	}
	sess.UpdatedAt = svc.nowFunc().UTC()
	return svc.repo.UpdateSession(ctx, sess)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteSessionsByID(ctx, ids...)
}

func (svc *service) GetByID(ctx context.Context, id string) (SessionDetail, error) {
	return svc.repo.GetSessionByID(ctx, id)
}

func (svc *service) QueryUpcoming(ctx context.Context) ([]SessionDetail, error) {
	return svc.repo.QueryUpcomingSessions(ctx, svc.nowFunc().UTC())
}

// Register books usr a spot in the session. Past sessions, full sessions and
// duplicate registrations are rejected as validation errors. On success a
// confirmation email goes out and a badge evaluation is enqueued.
func (svc *service) Register(ctx context.Context, usr user.User, sessionID string) (Registration, error) {
	detail, err := svc.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return Registration{}, err
	}
	if detail.StartsAt.Before(svc.nowFunc().UTC()) {
		return Registration{}, core.NewValidationError(ErrSessionStarted)
	}
	if detail.IsFull() {
		return Registration{}, core.NewValidationError(ErrSessionFull)
	}
	if _, err = svc.repo.GetRegistration(ctx, sessionID, usr.ID); err == nil {
		return Registration{}, core.NewValidationError(ErrAlreadyRegistered)
	} else if errors.Cause(err) != ErrNotRegistered {
		return Registration{}, errors.Wrap(err, "checking existing registration")
	}

	reg := Registration{
		SessionID: sessionID,
		UserID:    usr.ID,
		CreatedAt: svc.nowFunc().UTC(),
	}
	// capacity and uniqueness are re-checked atomically by the repo; the
	// checks above are only a fast path
	reg, err = svc.repo.CreateRegistration(ctx, reg)
	switch errors.Cause(err) {
	case nil:
	case ErrAlreadyRegistered:
		return Registration{}, core.NewValidationError(ErrAlreadyRegistered)
	case ErrSessionFull:
		return Registration{}, core.NewValidationError(ErrSessionFull)
	default:
		return Registration{}, errors.Wrap(err, "creating registration")
	}

	svc.sendConfirmationMail(usr, detail.Session)
	svc.enqueueBadgeEvaluation(ctx, usr.ID)
	return reg, nil
}

// Cancel frees usr's spot. Cancelling without a registration is a validation
// error; an unknown session is ErrNotFound.
func (svc *service) Cancel(ctx context.Context, usr user.User, sessionID string) error {
	if _, err := svc.repo.GetSessionByID(ctx, sessionID); err != nil {
		return err
	}
	reg, err := svc.repo.GetRegistration(ctx, sessionID, usr.ID)
	if errors.Cause(err) == ErrNotRegistered {
		return core.NewValidationError(ErrNotRegistered)
	} else if err != nil {
		return errors.Wrap(err, "checking existing registration")
	}
	return svc.repo.DeleteRegistration(ctx, reg.ID)
}

func (svc *service) UserSessions(ctx context.Context, userID string) ([]SessionDetail, error) {
	return svc.repo.QueryUserSessions(ctx, userID)
}

func (svc *service) sendConfirmationMail(usr user.User, sess Session) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("You're registered: %s", sess.Title),
		TemplateName: "session-confirmation",
		TemplateData: struct {
			User    user.User
			Session Session
		}{usr, sess},
	}
	svc.mailSvc.SendMessages(msg)
}

// enqueueBadgeEvaluation publishes a badge evaluation for the user; the
// registration is already committed so a broker failure is only logged.
func (svc *service) enqueueBadgeEvaluation(ctx context.Context, userID string) {
	msg := core.BadgeEvaluation{
		UserID:     userID,
		Reason:     "community.register",
		EnqueuedAt: svc.nowFunc().UTC(),
	}
	if err := svc.broker.PublishBadgeEvaluation(ctx, msg); err != nil {
		svc.logger.Error(fmt.Sprintf("enqueueing badge evaluation: %v", err), err)
	}
}
