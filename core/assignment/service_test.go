package assignment_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/assignment"
	"github.com/itdsea/coursework/core/course"
	"github.com/itdsea/coursework/core/user"
	inmemdb "github.com/itdsea/coursework/storage/database/inmem"
	"github.com/itdsea/coursework/storage/files"
	"github.com/itdsea/coursework/tests"
)

type fixture struct {
	svc       *assignment.Service
	courseSvc *course.Service
	db        *inmemdb.DB
	storage   core.FileStorage

	teacher user.User
	student user.User
	cw      course.Coursework
}

func (f *fixture) join(t *testing.T, usr user.User) error {
	t.Helper()
	return f.courseSvc.Join(context.Background(), usr, f.cw.ID)
}

// brokenStorage wraps a FileStorage and fails the selected operations.
type brokenStorage struct {
	core.FileStorage
	failSave   bool
	failDelete bool
}

var errStorageDown = errors.New("storage down")

func (s *brokenStorage) Save(ctx context.Context, path string, r io.Reader) error {
	if s.failSave {
		return errStorageDown
	}
	return s.FileStorage.Save(ctx, path, r)
}

func (s *brokenStorage) Delete(ctx context.Context, path string) error {
	if s.failDelete {
		return errStorageDown
	}
	return s.FileStorage.Delete(ctx, path)
}

func setup(t *testing.T) *fixture {
	t.Helper()

	conf := testutil.NewConfig()
	db := inmemdb.NewDB()
	cwRepo := inmemdb.NewCourseRepository(db)
	courseSvc := course.NewService(nil /* db */, cwRepo, conf)

	storage, err := files.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() failed: %v", err)
	}

	svc := assignment.NewService(
		inmemdb.NewAssignmentRepository(db),
		courseSvc,
		storage,
		conf,
		testutil.NopLogger{},
	)

	usrRepo := inmemdb.NewUserRepository(db)
	teacher := testutil.CreateUser(t, usrRepo, "prof", "老師", "黃", "", user.RoleTeacher, true)
	student := testutil.CreateUser(t, usrRepo, "41047060", "學生", "許", "", user.RoleStudent, true)
	cw := testutil.CreateCoursework(t, cwRepo, "Game Design", teacher)
	if err := courseSvc.Join(context.Background(), student, cw.ID); err != nil {
		t.Fatalf("Join() failed: %v", err)
	}

	return &fixture{svc: svc, courseSvc: courseSvc, db: db, storage: storage, teacher: teacher, student: student, cw: cw}
}

func (f *fixture) createAssignment(t *testing.T, title string, deadline time.Time) assignment.Assignment {
	t.Helper()
	return testutil.CreateAssignment(t, inmemdb.NewAssignmentRepository(f.db), f.cw.ID, title, deadline)
}

func (f *fixture) expire(a assignment.Assignment) {
	f.svc.NowFunc = func() time.Time { return a.Deadline.Add(time.Minute) }
}

func TestServiceCreate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	deadline := time.Now().Add(24 * time.Hour)

	t.Run("students cannot create", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.student, f.cw.ID, assignment.NewAssignment{Title: "Week 1", Deadline: deadline})
		if errors.Cause(err) != core.ErrPermissionDenied {
			t.Errorf("Create() err = %v; want %v", err, core.ErrPermissionDenied)
		}
	})

	t.Run("staff must be enrolled", func(t *testing.T) {
		outsider := testutil.CreateUser(t, inmemdb.NewUserRepository(f.db), "ta9", "助教", "吳", "", user.RoleAssistant, true)
		_, err := f.svc.Create(ctx, outsider, f.cw.ID, assignment.NewAssignment{Title: "Week 1", Deadline: deadline})
		if errors.Cause(err) != course.ErrNotEnrolled {
			t.Errorf("Create() err = %v; want %v", err, course.ErrNotEnrolled)
		}
	})

	t.Run("teacher creates", func(t *testing.T) {
		a, err := f.svc.Create(ctx, f.teacher, f.cw.ID, assignment.NewAssignment{Title: "Week 1", Deadline: deadline})
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		if a.Title != "Week 1" {
			t.Errorf("Title = %q", a.Title)
		}
		if !a.Deadline.Equal(deadline.UTC()) {
			t.Errorf("Deadline = %v; want %v", a.Deadline, deadline.UTC())
		}

		as, err := f.svc.QueryForCoursework(ctx, f.teacher, f.cw.ID)
		if err != nil {
			t.Fatalf("QueryForCoursework() failed: %v", err)
		}
		if len(as) != 1 {
			t.Errorf("got %d assignments; want 1", len(as))
		}
	})
}

func TestServiceOpenOrCreateSubmission(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.createAssignment(t, "Essay", time.Now().Add(24*time.Hour))

	t.Run("not enrolled", func(t *testing.T) {
		outsider := testutil.CreateUser(t, inmemdb.NewUserRepository(f.db), "41047061", "外人", "郭", "", user.RoleStudent, true)
		_, err := f.svc.OpenOrCreateSubmission(ctx, outsider, a.ID)
		if errors.Cause(err) != course.ErrNotEnrolled {
			t.Errorf("OpenOrCreateSubmission() err = %v; want %v", err, course.ErrNotEnrolled)
		}
	})

	t.Run("concurrent opens create exactly one", func(t *testing.T) {
		const n = 10
		subs := make([]assignment.Submission, n)
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				subs[i], errs[i] = f.svc.OpenOrCreateSubmission(ctx, f.student, a.ID)
			}(i)
		}
		wg.Wait()

		for i := 0; i < n; i++ {
			if errs[i] != nil {
				t.Fatalf("OpenOrCreateSubmission() #%d failed: %v", i, errs[i])
			}
			if subs[i].ID != subs[0].ID {
				t.Errorf("submission #%d = %q; want %q", i, subs[i].ID, subs[0].ID)
			}
		}
	})
}

func TestServiceEditMemo(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.createAssignment(t, "Essay", time.Now().Add(24*time.Hour))

	sub, err := f.svc.OpenOrCreateSubmission(ctx, f.student, a.ID)
	if err != nil {
		t.Fatalf("OpenOrCreateSubmission() failed: %v", err)
	}

	t.Run("owner only", func(t *testing.T) {
		_, err := f.svc.EditMemo(ctx, f.teacher, sub.ID, "not yours")
		if errors.Cause(err) != core.ErrPermissionDenied {
			t.Errorf("EditMemo() err = %v; want %v", err, core.ErrPermissionDenied)
		}
	})

	t.Run("owner edits", func(t *testing.T) {
		sub, err := f.svc.EditMemo(ctx, f.student, sub.ID, "done, see essay.pdf")
		if err != nil {
			t.Fatalf("EditMemo() failed: %v", err)
		}
		if sub.Memo != "done, see essay.pdf" {
			t.Errorf("Memo = %q", sub.Memo)
		}
	})

	t.Run("locked after the deadline", func(t *testing.T) {
		f.expire(a)
		_, err := f.svc.EditMemo(ctx, f.student, sub.ID, "too late")
		if errors.Cause(err) != assignment.ErrExpired {
			t.Errorf("EditMemo() err = %v; want %v", err, assignment.ErrExpired)
		}
	})
}

func TestServiceAttachFile(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.createAssignment(t, "Essay", time.Now().Add(24*time.Hour))

	t.Run("payload lands at the per-student path", func(t *testing.T) {
		uf, err := f.svc.AttachFile(ctx, f.student, a.ID, "My Essay.PDF", strings.NewReader("v1"), 2)
		if err != nil {
			t.Fatalf("AttachFile() failed: %v", err)
		}
		if uf.Filename != "My Essay.PDF" {
			t.Errorf("Filename = %q", uf.Filename)
		}
		if !strings.HasSuffix(uf.Path, "/"+f.student.Username+".pdf") {
			t.Errorf("Path = %q; want a %s.pdf leaf", uf.Path, f.student.Username)
		}
		assertPayload(t, f.storage, uf.Path, "v1")
	})

	t.Run("re-upload overwrites in place", func(t *testing.T) {
		uf, err := f.svc.AttachFile(ctx, f.student, a.ID, "essay-final.pdf", strings.NewReader("v2"), 2)
		if err != nil {
			t.Fatalf("AttachFile() failed: %v", err)
		}
		assertPayload(t, f.storage, uf.Path, "v2")

		sub, err := f.svc.OpenOrCreateSubmission(ctx, f.student, a.ID)
		if err != nil {
			t.Fatalf("OpenOrCreateSubmission() failed: %v", err)
		}
		if len(sub.Files) != 1 {
			t.Fatalf("got %d files; want 1", len(sub.Files))
		}
		if sub.Files[0].Filename != "essay-final.pdf" {
			t.Errorf("Filename = %q; want the latest upload", sub.Files[0].Filename)
		}
	})

	t.Run("storage failure surfaces as IOError", func(t *testing.T) {
		svc := f.brokenService(t, &brokenStorage{FileStorage: f.storage, failSave: true})
		_, err := svc.AttachFile(ctx, f.student, a.ID, "essay.pdf", strings.NewReader("v3"), 2)
		var ioErr *core.IOError
		if !errors.As(err, &ioErr) {
			t.Errorf("AttachFile() err = %v; want IOError", err)
		}
	})

	t.Run("locked after the deadline", func(t *testing.T) {
		f.expire(a)
		_, err := f.svc.AttachFile(ctx, f.student, a.ID, "late.pdf", strings.NewReader("v3"), 2)
		if errors.Cause(err) != assignment.ErrExpired {
			t.Errorf("AttachFile() err = %v; want %v", err, assignment.ErrExpired)
		}
	})
}

func TestServiceDeleteFile(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.createAssignment(t, "Essay", time.Now().Add(24*time.Hour))

	upload := func(t *testing.T) assignment.UploadedFile {
		t.Helper()
		uf, err := f.svc.AttachFile(ctx, f.student, a.ID, "essay.pdf", strings.NewReader("v1"), 2)
		if err != nil {
			t.Fatalf("AttachFile() failed: %v", err)
		}
		return uf
	}

	t.Run("owner deletes record and payload", func(t *testing.T) {
		uf := upload(t)
		if err := f.svc.DeleteFile(ctx, f.student, uf.ID); err != nil {
			t.Fatalf("DeleteFile() failed: %v", err)
		}
		if _, err := f.storage.Open(ctx, uf.Path); errors.Cause(err) != core.ErrFileNotFound {
			t.Errorf("payload should be gone; Open() err = %v", err)
		}
		if err := f.svc.DeleteFile(ctx, f.student, uf.ID); errors.Cause(err) != assignment.ErrFileNotFound {
			t.Errorf("DeleteFile() err = %v; want %v", err, assignment.ErrFileNotFound)
		}
	})

	t.Run("staff may delete any file", func(t *testing.T) {
		uf := upload(t)
		if err := f.svc.DeleteFile(ctx, f.teacher, uf.ID); err != nil {
			t.Fatalf("DeleteFile() failed: %v", err)
		}
	})

	t.Run("strangers may not", func(t *testing.T) {
		uf := upload(t)
		other := testutil.CreateUser(t, inmemdb.NewUserRepository(f.db), "41047062", "別人", "趙", "", user.RoleStudent, true)
		if err := f.svc.DeleteFile(ctx, other, uf.ID); errors.Cause(err) != core.ErrPermissionDenied {
			t.Errorf("DeleteFile() err = %v; want %v", err, core.ErrPermissionDenied)
		}
	})

	t.Run("record survives a failed payload delete", func(t *testing.T) {
		uf := upload(t)
		svc := f.brokenService(t, &brokenStorage{FileStorage: f.storage, failDelete: true})

		err := svc.DeleteFile(ctx, f.student, uf.ID)
		var ioErr *core.IOError
		if !errors.As(err, &ioErr) {
			t.Fatalf("DeleteFile() err = %v; want IOError", err)
		}
		// the record is still there for a retry
		if err := f.svc.DeleteFile(ctx, f.student, uf.ID); err != nil {
			t.Fatalf("retry DeleteFile() failed: %v", err)
		}
	})

	t.Run("missing payload is tolerated", func(t *testing.T) {
		uf := upload(t)
		if err := f.storage.Delete(ctx, uf.Path); err != nil {
			t.Fatalf("Delete() failed: %v", err)
		}
		if err := f.svc.DeleteFile(ctx, f.student, uf.ID); err != nil {
			t.Fatalf("DeleteFile() failed: %v", err)
		}
	})

	t.Run("locked for the owner after the deadline", func(t *testing.T) {
		uf := upload(t)
		f.expire(a)

		if err := f.svc.DeleteFile(ctx, f.student, uf.ID); errors.Cause(err) != assignment.ErrExpired {
			t.Errorf("DeleteFile() err = %v; want %v", err, assignment.ErrExpired)
		}
		res, err := f.svc.ViewResult(ctx, f.student, a.ID, "")
		if err != nil {
			t.Fatalf("ViewResult() failed: %v", err)
		}
		if len(res.Submission.Files) != 1 {
			t.Fatalf("got %d files; want the file kept", len(res.Submission.Files))
		}

		// staff may still prune
		if err := f.svc.DeleteFile(ctx, f.teacher, uf.ID); err != nil {
			t.Fatalf("DeleteFile() failed: %v", err)
		}
	})
}

func TestServiceViewResult(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.createAssignment(t, "Essay", time.Now().Add(24*time.Hour))

	if _, err := f.svc.AttachFile(ctx, f.student, a.ID, "essay.pdf", strings.NewReader("v1"), 2); err != nil {
		t.Fatalf("AttachFile() failed: %v", err)
	}

	idle := testutil.CreateUser(t, inmemdb.NewUserRepository(f.db), "41047063", "潛水", "周", "", user.RoleStudent, true)
	if err := f.join(t, idle); err != nil {
		t.Fatalf("Join() failed: %v", err)
	}

	t.Run("hidden until the deadline", func(t *testing.T) {
		_, err := f.svc.ViewResult(ctx, f.student, a.ID, "")
		if errors.Cause(err) != assignment.ErrNotExpired {
			t.Errorf("ViewResult() err = %v; want %v", err, assignment.ErrNotExpired)
		}
	})

	f.expire(a)

	t.Run("own submission", func(t *testing.T) {
		res, err := f.svc.ViewResult(ctx, f.student, a.ID, "")
		if err != nil {
			t.Fatalf("ViewResult() failed: %v", err)
		}
		if !res.HasSubmitted || res.Submission == nil {
			t.Fatal("expected a submission")
		}
		if len(res.Submission.Files) != 1 {
			t.Errorf("got %d files; want 1", len(res.Submission.Files))
		}
	})

	t.Run("no submission is explicit, not an error", func(t *testing.T) {
		res, err := f.svc.ViewResult(ctx, idle, a.ID, "")
		if err != nil {
			t.Fatalf("ViewResult() failed: %v", err)
		}
		if res.HasSubmitted || res.Submission != nil {
			t.Error("expected the no-submission sentinel")
		}
	})

	t.Run("staff views any student", func(t *testing.T) {
		res, err := f.svc.ViewResult(ctx, f.teacher, a.ID, f.student.ID)
		if err != nil {
			t.Fatalf("ViewResult() failed: %v", err)
		}
		if !res.HasSubmitted {
			t.Error("expected the student's submission")
		}
	})

	t.Run("students cannot view others", func(t *testing.T) {
		res, err := f.svc.ViewResult(ctx, idle, a.ID, f.student.ID)
		if err != nil {
			t.Fatalf("ViewResult() failed: %v", err)
		}
		// the student_id hint is ignored for non-staff
		if res.HasSubmitted {
			t.Error("non-staff must only see their own submission")
		}
	})

	t.Run("not enrolled", func(t *testing.T) {
		outsider := testutil.CreateUser(t, inmemdb.NewUserRepository(f.db), "41047064", "外人", "郭", "", user.RoleStudent, true)
		_, err := f.svc.ViewResult(ctx, outsider, a.ID, "")
		if errors.Cause(err) != course.ErrNotEnrolled {
			t.Errorf("ViewResult() err = %v; want %v", err, course.ErrNotEnrolled)
		}
	})
}

// brokenService rebuilds the service around a failure-injecting storage,
// sharing the fixture's repositories.
func (f *fixture) brokenService(t *testing.T, storage core.FileStorage) *assignment.Service {
	t.Helper()

	conf := testutil.NewConfig()
	svc := assignment.NewService(
		inmemdb.NewAssignmentRepository(f.db),
		course.NewService(nil, inmemdb.NewCourseRepository(f.db), conf),
		storage,
		conf,
		testutil.NopLogger{},
	)
	svc.NowFunc = f.svc.NowFunc
	return svc
}

func assertPayload(t *testing.T, storage core.FileStorage, path, want string) {
	t.Helper()

	rc, err := storage.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", path, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if string(b) != want {
		t.Errorf("payload = %q; want %q", b, want)
	}
}
