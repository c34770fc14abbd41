package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/roster"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrUserExists         = errors.New("an account with this student id already exists")
	ErrNotVerified        = errors.New("email is not verified, please check your mail box")
	ErrAccountDeactivated = errors.New("account deactivated")
)

type Repository interface {
	CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
	QueryUsers(ctx context.Context, exec ...core.DBExecutor) ([]User, error)
	UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	UpdateOrCreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
}

type Service struct {
	repo       Repository
	rosterRepo roster.Repository
	mailSvc    core.EmailService
	conf       *core.Config
	tokens     *TokenGenerator
}

func NewService(
	repo Repository,
	rosterRepo roster.Repository,
	mailSvc core.EmailService,
	conf *core.Config,
) *Service {
	return &Service{
		repo:       repo,
		rosterRepo: rosterRepo,
		mailSvc:    mailSvc,
		conf:       conf,
		tokens:     NewTokenGenerator(conf),
	}
}

// Tokens exposes the activation token generator (handlers need it for links).
func (svc *Service) Tokens() *TokenGenerator { return svc.tokens }

// Register creates a student account gated by the roster: the student id must
// be on the eligible list, and name + email are derived from it. A fresh
// account is unverified until the emailed activation link is followed.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	entry, err := svc.rosterRepo.GetEntry(ctx, nu.StudentID)
	if err != nil {
		if errors.Cause(err) == roster.ErrNotFound {
			return User{}, core.NewValidationError(err, core.FieldError{Field: "student_id", Error: "invalid student id"})
		}
		return User{}, errors.Wrap(err, "checking roster")
	}

	now := time.Now().UTC()
	usr := User{
		Username:   entry.StudentID,
		FirstName:  entry.FirstName,
		LastName:   entry.LastName,
		Email:      fmt.Sprintf("%s@%s", entry.StudentID, svc.conf.StudentEmailDomain),
		Role:       RoleStudent,
		IsVerified: false,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err = usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	usr, err = svc.repo.CreateUser(ctx, usr)
	if err != nil {
		if errors.Cause(err) == ErrUserExists {
			return User{}, core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return User{}, errors.Wrap(err, "creating user")
	}

	svc.SendActivationMail(usr)
	return usr, nil
}

// Activate flips the email-verified flag for the user encoded in `uid` after
// checking `token`. Activating an already-verified account fails the token
// check (the verified flag is part of the token hash).
func (svc *Service) Activate(ctx context.Context, uid, token string) (User, error) {
	id, err := DecodeUID(uid)
	if err != nil {
		return User{}, core.NewValidationError(ErrInvalidToken)
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, core.NewValidationError(ErrInvalidToken)
		}
		return User{}, errors.Wrap(err, "finding user by ID")
	}

	if err = svc.tokens.VerifyToken(usr, token); err != nil {
		return User{}, core.NewValidationError(err)
	}

	usr.IsVerified = true
	usr.UpdatedAt = time.Now().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}

// Authenticate checks credentials and account state. An unverified account
// triggers a fresh activation mail and fails with ErrNotVerified.
func (svc *Service) Authenticate(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return User{}, err
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrNotFound
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	if !usr.IsVerified {
		svc.SendActivationMail(usr)
		return User{}, ErrNotVerified
	}

	usr.LastLogin = time.Now().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "setting last login")
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

// SendActivationMail dispatches the activation email; delivery is
// fire-and-forget, failures are swallowed by the email service.
func (svc *Service) SendActivationMail(usr User) {
	token, err := svc.tokens.MakeToken(usr)
	if err != nil {
		return
	}
	link := fmt.Sprintf("%s/v1/users/activate/%s/%s", svc.conf.FrontendBaseURL, EncodeUID(usr), token)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name(), Address: usr.Email}},
		Subject: "Activate your account",
		BodyStr: fmt.Sprintf(
			"Hi %s,\n\nPlease click the link below to verify your email address:\n\n%s\n\n"+
				"If you did not register, please contact a teaching assistant.",
			usr.Name(), link,
		),
	})
}
