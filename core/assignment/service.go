package assignment

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/course"
	"github.com/itdsea/coursework/core/user"
)

var (
	// errors
	ErrNotFound           = errors.New("assignment not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrFileNotFound       = errors.New("uploaded file not found")
	ErrExpired            = errors.New("deadline has passed")
	ErrNotExpired         = errors.New("results are not available until the deadline passes")
	ErrNoFiles            = errors.New("no submitted files to bundle")
	ErrBundleNotFound     = errors.New("results bundle not built yet")

	// ErrSubmissionExists is a repository-level conflict; the service
	// recovers it by re-fetching the existing record.
	ErrSubmissionExists = errors.New("submission already exists")
)

type Repository interface {
	CreateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
	GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (Assignment, error)
	QueryAssignments(ctx context.Context, courseworkID string, exec ...core.DBExecutor) ([]Assignment, error)
	// SetAssignmentArchive attaches the bundle reference only when none is
	// set yet; reports whether the row was updated.
	SetAssignmentArchive(ctx context.Context, assignmentID, archivePath string, exec ...core.DBExecutor) (bool, error)

	// CreateSubmission fails with ErrSubmissionExists when the (assignment,
	// user) pair already has a record.
	CreateSubmission(ctx context.Context, sub Submission, exec ...core.DBExecutor) (Submission, error)
	GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (Submission, error)
	GetSubmissionForUser(ctx context.Context, assignmentID, userID string, exec ...core.DBExecutor) (Submission, error)
	UpdateSubmissionMemo(ctx context.Context, id, memo string, exec ...core.DBExecutor) (Submission, error)

	// UpsertFile overwrites the record sharing the submission and path, if any.
	UpsertFile(ctx context.Context, f UploadedFile, exec ...core.DBExecutor) (UploadedFile, error)
	GetFile(ctx context.Context, id string, exec ...core.DBExecutor) (UploadedFile, error)
	QueryFiles(ctx context.Context, submissionID string, exec ...core.DBExecutor) ([]UploadedFile, error)
	// QueryAssignmentFiles returns every file across every submission of the
	// assignment, with StudentUsername populated.
	QueryAssignmentFiles(ctx context.Context, assignmentID string, exec ...core.DBExecutor) ([]UploadedFile, error)
	DeleteFile(ctx context.Context, id string, exec ...core.DBExecutor) error
}

type Service struct {
	repo      Repository
	courseSvc *course.Service
	storage   core.FileStorage
	conf      *core.Config
	logger    core.Logger

	NowFunc func() time.Time // mockable

	buildMu    sync.Mutex
	buildLocks map[string]*sync.Mutex
}

func NewService(
	repo Repository,
	courseSvc *course.Service,
	storage core.FileStorage,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		repo:       repo,
		courseSvc:  courseSvc,
		storage:    storage,
		conf:       conf,
		logger:     logger,
		NowFunc:    time.Now,
		buildLocks: make(map[string]*sync.Mutex),
	}
}

// Create adds an Assignment to a Coursework. Staff only; the creator must be
// enrolled. The deadline is immutable afterwards.
func (svc *Service) Create(ctx context.Context, actor user.User, courseworkID string, na NewAssignment) (Assignment, error) {
	if !user.CanCreateAssignment(actor.Role) {
		return Assignment{}, core.ErrPermissionDenied
	}
	if err := svc.requireEnrolled(ctx, actor, courseworkID); err != nil {
		return Assignment{}, err
	}

	a := Assignment{
		CourseworkID: courseworkID,
		Title:        na.Title,
		Deadline:     na.Deadline.UTC(),
		CreatedAt:    time.Now().UTC(),
	}
	return svc.repo.CreateAssignment(ctx, a)
}

func (svc *Service) Get(ctx context.Context, id string) (Assignment, error) {
	return svc.repo.GetAssignment(ctx, id)
}

// QueryForCoursework lists a coursework's assignments for an enrolled member.
func (svc *Service) QueryForCoursework(ctx context.Context, actor user.User, courseworkID string) ([]Assignment, error) {
	if err := svc.requireEnrolled(ctx, actor, courseworkID); err != nil {
		return nil, err
	}
	return svc.repo.QueryAssignments(ctx, courseworkID)
}

// OpenOrCreateSubmission returns the student's submission for the
// assignment, creating an empty one on first access. Creation is
// exactly-once per (assignment, student) even under concurrent calls: the
// repository's uniqueness conflict is recovered by re-fetching.
func (svc *Service) OpenOrCreateSubmission(ctx context.Context, actor user.User, assignmentID string) (Submission, error) {
	a, err := svc.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Submission{}, err
	}
	if err = svc.requireEnrolled(ctx, actor, a.CourseworkID); err != nil {
		return Submission{}, err
	}

	sub, err := svc.repo.GetSubmissionForUser(ctx, a.ID, actor.ID)
	if err != nil {
		if errors.Cause(err) != ErrSubmissionNotFound {
			return Submission{}, errors.Wrap(err, "finding submission")
		}
		now := time.Now().UTC()
		sub, err = svc.repo.CreateSubmission(ctx, Submission{
			AssignmentID: a.ID,
			UserID:       actor.ID,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			if errors.Cause(err) != ErrSubmissionExists {
				return Submission{}, errors.Wrap(err, "creating submission")
			}
			// lost the race: the record exists now, fetch it
			if sub, err = svc.repo.GetSubmissionForUser(ctx, a.ID, actor.ID); err != nil {
				return Submission{}, errors.Wrap(err, "re-fetching submission")
			}
		}
	}

	if sub.Files, err = svc.repo.QueryFiles(ctx, sub.ID); err != nil {
		return Submission{}, errors.Wrap(err, "querying files")
	}
	return sub, nil
}

// EditMemo overwrites the memo. Owner only; rejected once the assignment
// deadline has passed (uniform with file uploads).
func (svc *Service) EditMemo(ctx context.Context, actor user.User, submissionID, memo string) (Submission, error) {
	sub, err := svc.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}
	if sub.UserID != actor.ID {
		return Submission{}, core.ErrPermissionDenied
	}

	a, err := svc.repo.GetAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return Submission{}, err
	}
	if a.IsExpired(svc.NowFunc()) {
		return Submission{}, ErrExpired
	}

	return svc.repo.UpdateSubmissionMemo(ctx, sub.ID, memo)
}

// AttachFile stores the payload at the deterministic per-student path and
// records it on the actor's submission (created on first access). A repeated
// upload by the same student overwrites the previous payload silently.
// Rejected once the deadline has passed.
func (svc *Service) AttachFile(ctx context.Context, actor user.User, assignmentID, filename string, payload io.Reader, size int64) (UploadedFile, error) {
	a, err := svc.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return UploadedFile{}, err
	}
	if err = svc.requireEnrolled(ctx, actor, a.CourseworkID); err != nil {
		return UploadedFile{}, err
	}
	if a.IsExpired(svc.NowFunc()) {
		return UploadedFile{}, ErrExpired
	}

	sub, err := svc.OpenOrCreateSubmission(ctx, actor, a.ID)
	if err != nil {
		return UploadedFile{}, err
	}

	cw, err := svc.courseSvc.Get(ctx, a.CourseworkID)
	if err != nil {
		return UploadedFile{}, errors.Wrap(err, "finding coursework")
	}
	path := FilePath(cw.CourseName, a, actor.Username, filename)

	saveCtx, cancel := context.WithTimeout(ctx, svc.conf.Media.StorageTimeout)
	defer cancel()
	if err = svc.storage.Save(saveCtx, path, payload); err != nil {
		return UploadedFile{}, core.NewIOError(err, "storing payload")
	}

	return svc.repo.UpsertFile(ctx, UploadedFile{
		SubmissionID: sub.ID,
		Filename:     filename,
		Path:         path,
		Size:         size,
		CreatedAt:    time.Now().UTC(),
	})
}

// DeleteFile removes the record and the backing payload. The payload goes
// first: if its deletion fails the record is kept so the blob is never
// orphaned.
func (svc *Service) DeleteFile(ctx context.Context, actor user.User, fileID string) error {
	f, err := svc.repo.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	sub, err := svc.repo.GetSubmission(ctx, f.SubmissionID)
	if err != nil {
		return err
	}
	if sub.UserID != actor.ID && !actor.IsStaff() {
		return core.ErrPermissionDenied
	}

	// submissions are read-only for students once the deadline passes;
	// staff may still prune files afterwards
	if !actor.IsStaff() {
		a, err := svc.repo.GetAssignment(ctx, sub.AssignmentID)
		if err != nil {
			return err
		}
		if a.IsExpired(svc.NowFunc()) {
			return ErrExpired
		}
	}

	delCtx, cancel := context.WithTimeout(ctx, svc.conf.Media.StorageTimeout)
	defer cancel()
	if err = svc.storage.Delete(delCtx, f.Path); err != nil && errors.Cause(err) != core.ErrFileNotFound {
		return core.NewIOError(err, "deleting payload")
	}
	return svc.repo.DeleteFile(ctx, f.ID)
}

// ViewResult returns a student's submission and files once the deadline has
// passed. Students see their own; staff may view any student's.
func (svc *Service) ViewResult(ctx context.Context, actor user.User, assignmentID, studentID string) (Result, error) {
	a, err := svc.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Result{}, err
	}

	if studentID == "" || !actor.IsStaff() {
		studentID = actor.ID
	}
	if studentID == actor.ID {
		if err = svc.requireEnrolled(ctx, actor, a.CourseworkID); err != nil {
			return Result{}, err
		}
	}

	if !a.IsExpired(svc.NowFunc()) {
		return Result{}, ErrNotExpired
	}

	res := Result{Assignment: a}
	sub, err := svc.repo.GetSubmissionForUser(ctx, a.ID, studentID)
	if err != nil {
		if errors.Cause(err) == ErrSubmissionNotFound {
			return res, nil // explicit "no submission"
		}
		return Result{}, errors.Wrap(err, "finding submission")
	}
	if sub.Files, err = svc.repo.QueryFiles(ctx, sub.ID); err != nil {
		return Result{}, errors.Wrap(err, "querying files")
	}
	res.Submission = &sub
	res.HasSubmitted = true
	return res, nil
}

func (svc *Service) requireEnrolled(ctx context.Context, actor user.User, courseworkID string) error {
	enrolled, err := svc.courseSvc.IsEnrolled(ctx, actor, courseworkID)
	if err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return course.ErrNotEnrolled
	}
	return nil
}
