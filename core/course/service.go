package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("coursework not found")
	ErrCourseworkExists = errors.New("a coursework already exists for this course")
	ErrAlreadyEnrolled  = errors.New("already enrolled in this coursework")
	ErrNotEnrolled      = errors.New("not enrolled in this coursework")
	ErrRequestNotFound  = errors.New("join request not found")

	// ErrRequestExists is a repository-level conflict; the service recovers
	// it into idempotent no-op semantics and never surfaces it.
	ErrRequestExists = errors.New("join request already exists")
)

type Repository interface {
	// CreateCoursework persists the course/coursework pair atomically and
	// enrolls the creator. Fails with ErrCourseworkExists when the course
	// already has a coursework.
	CreateCoursework(ctx context.Context, cw Coursework, creatorID string, exec ...core.DBExecutor) (Coursework, error)
	GetCoursework(ctx context.Context, id string, exec ...core.DBExecutor) (Coursework, error)
	QueryCourseworks(ctx context.Context, exec ...core.DBExecutor) ([]Coursework, error)

	// AddMember is idempotent: enrolling an enrolled user is a no-op.
	AddMember(ctx context.Context, courseworkID, userID string, exec ...core.DBExecutor) error
	IsMember(ctx context.Context, courseworkID, userID string, exec ...core.DBExecutor) (bool, error)
	QueryMembers(ctx context.Context, courseworkID string, exec ...core.DBExecutor) ([]user.User, error)

	// CreateJoinRequest fails with ErrRequestExists when the (coursework,
	// user) pair already has an outstanding request.
	CreateJoinRequest(ctx context.Context, req JoinRequest, exec ...core.DBExecutor) (JoinRequest, error)
	GetJoinRequest(ctx context.Context, id string, exec ...core.DBExecutor) (JoinRequest, error)
	// DeleteJoinRequest fails with ErrRequestNotFound when the request is
	// already gone; callers rely on this for consume-once resolution.
	DeleteJoinRequest(ctx context.Context, id string, exec ...core.DBExecutor) error
	// DeleteJoinRequestForUser drops any outstanding request for the
	// (coursework, user) pair; absent is a no-op.
	DeleteJoinRequestForUser(ctx context.Context, courseworkID, userID string, exec ...core.DBExecutor) error
	QueryJoinRequests(ctx context.Context, exec ...core.DBExecutor) ([]JoinRequest, error)
	CountJoinRequests(ctx context.Context, exec ...core.DBExecutor) (int, error)
}

type Service struct {
	db   core.DB
	repo Repository
	conf *core.Config
}

func NewService(db core.DB, repo Repository, conf *core.Config) *Service {
	return &Service{db: db, repo: repo, conf: conf}
}

// CreateCoursework opens a Coursework for the named Course; the creating
// Teacher is auto-enrolled. At most one Coursework exists per Course.
func (svc *Service) CreateCoursework(ctx context.Context, actor user.User, nc NewCoursework) (Coursework, error) {
	if !user.CanCreateCoursework(actor.Role) {
		return Coursework{}, core.ErrPermissionDenied
	}

	now := time.Now().UTC()
	cw := Coursework{
		CourseName: nc.CourseName,
		CreatedAt:  now,
	}
	cw, err := svc.repo.CreateCoursework(ctx, cw, actor.ID)
	if err != nil {
		return Coursework{}, err
	}
	return cw, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Coursework, error) {
	return svc.repo.GetCoursework(ctx, id)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Coursework, error) {
	return svc.repo.QueryCourseworks(ctx)
}

func (svc *Service) Members(ctx context.Context, courseworkID string) ([]user.User, error) {
	return svc.repo.QueryMembers(ctx, courseworkID)
}

// Join enrolls the actor directly. Joining twice is idempotent. Any join
// request the actor filed earlier is consumed: a member never sits in the
// staff queue.
func (svc *Service) Join(ctx context.Context, actor user.User, courseworkID string) error {
	if _, err := svc.repo.GetCoursework(ctx, courseworkID); err != nil {
		return err
	}
	return core.Atomic(ctx, svc.db, func(exec ...core.DBExecutor) error {
		if err := svc.repo.AddMember(ctx, courseworkID, actor.ID, exec...); err != nil {
			return err
		}
		return svc.repo.DeleteJoinRequestForUser(ctx, courseworkID, actor.ID, exec...)
	})
}

// RequestJoin files an enrollment application. Re-requesting is a no-op;
// requesting while enrolled fails with ErrAlreadyEnrolled.
func (svc *Service) RequestJoin(ctx context.Context, actor user.User, courseworkID string) error {
	if _, err := svc.repo.GetCoursework(ctx, courseworkID); err != nil {
		return err
	}

	enrolled, err := svc.repo.IsMember(ctx, courseworkID, actor.ID)
	if err != nil {
		return errors.Wrap(err, "checking membership")
	}
	if enrolled {
		return ErrAlreadyEnrolled
	}

	req := JoinRequest{
		CourseworkID: courseworkID,
		UserID:       actor.ID,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err = svc.repo.CreateJoinRequest(ctx, req); err != nil {
		if errors.Cause(err) == ErrRequestExists {
			return nil // idempotent re-request
		}
		return errors.Wrap(err, "creating join request")
	}
	return nil
}

// ResolveJoinRequest consumes a request exactly once: Accept enrolls the
// student then deletes the request, Decline only deletes it.
func (svc *Service) ResolveJoinRequest(ctx context.Context, actor user.User, requestID string, decision Decision) error {
	if !user.CanResolveRequests(actor.Role) {
		return core.ErrPermissionDenied
	}

	req, err := svc.repo.GetJoinRequest(ctx, requestID)
	if err != nil {
		return err
	}

	return core.Atomic(ctx, svc.db, func(exec ...core.DBExecutor) error {
		// delete first: a lost race on the same request resolves it once.
		if err := svc.repo.DeleteJoinRequest(ctx, req.ID, exec...); err != nil {
			return err
		}
		if decision == DecisionAccept {
			if err := svc.repo.AddMember(ctx, req.CourseworkID, req.UserID, exec...); err != nil {
				return errors.Wrap(err, "enrolling student")
			}
		}
		return nil
	})
}

// IsEnrolled is the authorization gate used by everything downstream.
func (svc *Service) IsEnrolled(ctx context.Context, usr user.User, courseworkID string) (bool, error) {
	return svc.repo.IsMember(ctx, courseworkID, usr.ID)
}

func (svc *Service) PendingRequests(ctx context.Context, actor user.User) ([]JoinRequest, error) {
	if !user.CanResolveRequests(actor.Role) {
		return nil, core.ErrPermissionDenied
	}
	return svc.repo.QueryJoinRequests(ctx)
}

func (svc *Service) PendingRequestCount(ctx context.Context, actor user.User) (int, error) {
	if !user.CanResolveRequests(actor.Role) {
		return 0, core.ErrPermissionDenied
	}
	return svc.repo.CountJoinRequests(ctx)
}
