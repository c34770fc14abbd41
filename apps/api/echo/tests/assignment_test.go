package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	. "github.com/itdsea/coursework/apps/api/echo"
	"github.com/itdsea/coursework/core/assignment"
	"github.com/itdsea/coursework/core/user"
	"github.com/itdsea/coursework/tests"
)

func newUploadRequest(t *testing.T, token, assignmentID, filename, content string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("assignment_id", assignmentID); err != nil {
		t.Fatalf("WriteField() failed: %v", err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() failed: %v", err)
	}
	if _, err = io.Copy(fw, strings.NewReader(content)); err != nil {
		t.Fatalf("Copy() failed: %v", err)
	}
	if err = mw.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/files", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func Test_assignmentApi_submissionFlow(t *testing.T) {
	db.Reset()
	assignSvc.NowFunc = time.Now
	defer func() { assignSvc.NowFunc = time.Now }()

	teacher := testutil.CreateUser(t, usrRepo, "prof", "老師", "黃", "", user.RoleTeacher, true)
	student := testutil.CreateUser(t, usrRepo, "41047060", "學生", "許", "", user.RoleStudent, true)
	cw := testutil.CreateCoursework(t, cwRepo, "Game Design", teacher)

	teacherToken := getToken(t, teacher)
	studentToken := getToken(t, student)

	joinReq, joinRec := newAuthRequest(http.MethodPost, "/v1/coursework/join", studentToken,
		marchallObj(t, JoinRequest{CourseworkID: cw.ID}))
	app.ServeHTTP(joinRec, joinReq)
	if joinRec.Code != http.StatusOK {
		t.Fatalf("join failed: %s", joinRec.Body.String())
	}

	deadline := time.Now().Add(time.Hour).UTC()
	var a assignment.Assignment

	t.Run("create assignment", func(t *testing.T) {
		body := marchallObj(t, assignment.NewAssignment{Title: "Final Project", Deadline: deadline})

		req, rec := newAuthRequest(http.MethodPost, "/v1/coursework/"+cw.ID+"/assignments", studentToken, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)

		req, rec = newAuthRequest(http.MethodPost, "/v1/coursework/"+cw.ID+"/assignments", teacherToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
			t.Fatalf("Unmarshal() failed: %v", err)
		}
	})

	t.Run("past deadline is rejected", func(t *testing.T) {
		body := marchallObj(t, assignment.NewAssignment{Title: "Late", Deadline: time.Now().Add(-time.Hour)})
		req, rec := newAuthRequest(http.MethodPost, "/v1/coursework/"+cw.ID+"/assignments", teacherToken, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"deadline": "deadline must be in the future"}),
		}, rec)
	})

	var sub assignment.Submission

	t.Run("open submission", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/coursework/"+cw.ID+"/assignments/"+a.ID+"/submit", studentToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &sub); err != nil {
			t.Fatalf("Unmarshal() failed: %v", err)
		}
		if sub.UserID != student.ID || len(sub.Files) != 0 {
			t.Errorf("sub = %+v; want a fresh empty submission", sub)
		}
	})

	t.Run("upload", func(t *testing.T) {
		req, rec := newUploadRequest(t, studentToken, a.ID, "project.pdf", "my work")
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var f assignment.UploadedFile
		if err := json.Unmarshal(rec.Body.Bytes(), &f); err != nil {
			t.Fatalf("Unmarshal() failed: %v", err)
		}
		if f.Filename != "project.pdf" || f.SubmissionID != sub.ID {
			t.Errorf("f = %+v", f)
		}
	})

	t.Run("memo", func(t *testing.T) {
		body := marchallObj(t, MemoRequest{SubmissionID: sub.ID, Memo: "done"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/memo", studentToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("results are hidden before the deadline", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/coursework/"+cw.ID+"/assignments/"+a.ID+"/view", studentToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: assignment.ErrNotExpired.Error()}),
		}, rec)
	})

	// the deadline passes
	assignSvc.NowFunc = func() time.Time { return deadline.Add(time.Minute) }

	t.Run("uploads lock after the deadline", func(t *testing.T) {
		req, rec := newUploadRequest(t, studentToken, a.ID, "late.pdf", "too late")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: assignment.ErrExpired.Error()}),
		}, rec)
	})

	t.Run("view own result", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/coursework/"+cw.ID+"/assignments/"+a.ID+"/view", studentToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var res assignment.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("Unmarshal() failed: %v", err)
		}
		if !res.HasSubmitted || res.Submission == nil || len(res.Submission.Files) != 1 {
			t.Errorf("res = %+v; want the submission with its file", res)
		}
	})

	t.Run("bundle", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/assignments/"+a.ID+"/result", studentToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)

		req, rec = newAuthRequest(http.MethodGet, "/v1/assignments/"+a.ID+"/result", teacherToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: assignment.ErrBundleNotFound.Error()}),
		}, rec)

		req, rec = newAuthRequest(http.MethodPost, "/v1/assignments/"+a.ID+"/result", teacherToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var built assignment.Assignment
		if err := json.Unmarshal(rec.Body.Bytes(), &built); err != nil {
			t.Fatalf("Unmarshal() failed: %v", err)
		}
		if !built.HasBundle() {
			t.Fatal("expected an attached bundle")
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/assignments/"+a.ID+"/result", teacherToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
			t.Errorf("Content-Type = %q", ct)
		}
		if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, ".zip") {
			t.Errorf("Content-Disposition = %q", cd)
		}
		b := rec.Body.Bytes()
		zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
		if err != nil {
			t.Fatalf("bundle is not a readable zip: %v", err)
		}
		if len(zr.File) != 1 || zr.File[0].Name != student.Username+".pdf" {
			t.Errorf("entries = %+v; want one %s.pdf", zr.File, student.Username)
		}
	})

	t.Run("delete file after deadline still works for staff", func(t *testing.T) {
		res := assignment.Result{}
		req, rec := newAuthRequest(http.MethodGet, "/v1/coursework/"+cw.ID+"/assignments/"+a.ID+"/view?student_id="+student.ID, teacherToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("Unmarshal() failed: %v", err)
		}
		if !res.HasSubmitted || len(res.Submission.Files) != 1 {
			t.Fatalf("res = %+v; want the student's file", res)
		}

		body := marchallObj(t, DeleteFileRequest{FileID: res.Submission.Files[0].ID})
		req, rec = newAuthRequest(http.MethodPost, "/v1/files/delete", teacherToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("code = %v; body %s", rec.Code, rec.Body.String())
		}
	})
}

func Test_assignmentApi_uploadValidation(t *testing.T) {
	db.Reset()
	assignSvc.NowFunc = time.Now

	student := testutil.CreateUser(t, usrRepo, "41047061", "學生", "許", "", user.RoleStudent, true)
	token := getToken(t, student)

	t.Run("missing assignment id", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/v1/files", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"assignment_id": "this field is required"}),
		}, rec)
	})

	t.Run("missing file part", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		_ = mw.WriteField("assignment_id", "xxx")
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/v1/files", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"file": "this field is required"}),
		}, rec)
	})

	t.Run("unknown assignment", func(t *testing.T) {
		req, rec := newUploadRequest(t, token, "xxx", "f.pdf", "data")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: assignment.ErrNotFound.Error()}),
		}, rec)
	})
}
