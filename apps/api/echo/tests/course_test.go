package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	. "github.com/itdsea/coursework/apps/api/echo"
	"github.com/itdsea/coursework/core/course"
	"github.com/itdsea/coursework/core/user"
	"github.com/itdsea/coursework/tests"
)

func Test_courseworkApi_createAndQuery(t *testing.T) {
	db.Reset()

	teacher := testutil.CreateUser(t, usrRepo, "prof", "老師", "黃", "", user.RoleTeacher, true)
	student := testutil.CreateUser(t, usrRepo, "41047050", "學生", "許", "", user.RoleStudent, true)
	teacherToken := getToken(t, teacher)
	studentToken := getToken(t, student)

	body := marchallObj(t, course.NewCoursework{CourseName: "Interaction Design"})

	tests := []httpTest{
		{
			name: "auth required", method: http.MethodPost, path: "/v1/coursework", body: body,
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "teacher required", method: http.MethodPost, path: "/v1/coursework", body: body, token: studentToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "missing name", method: http.MethodPost, path: "/v1/coursework", body: []byte(`{}`), token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"course_name": "this field is required"}),
		},
		{
			name: "created", method: http.MethodPost, path: "/v1/coursework", body: body, token: teacherToken,
			wantCode: http.StatusCreated,
		},
		{
			name: "one coursework per course", method: http.MethodPost, path: "/v1/coursework", body: body, token: teacherToken,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: course.ErrCourseworkExists.Error()}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("query lists the coursework", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/coursework", studentToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var cws []course.Coursework
		if err := json.Unmarshal(rec.Body.Bytes(), &cws); err != nil {
			t.Fatalf("Unmarshal() failed: %v", err)
		}
		if len(cws) != 1 || cws[0].CourseName != "Interaction Design" {
			t.Errorf("cws = %+v; want the created coursework", cws)
		}
	})
}

func Test_courseworkApi_joinFlow(t *testing.T) {
	db.Reset()

	teacher := testutil.CreateUser(t, usrRepo, "prof", "老師", "黃", "", user.RoleTeacher, true)
	direct := testutil.CreateUser(t, usrRepo, "41047051", "學生", "許", "", user.RoleStudent, true)
	applicant := testutil.CreateUser(t, usrRepo, "41047052", "同學", "蔡", "", user.RoleStudent, true)
	cw := testutil.CreateCoursework(t, cwRepo, "Typography", teacher)

	teacherToken := getToken(t, teacher)
	directToken := getToken(t, direct)
	applicantToken := getToken(t, applicant)

	joinBody := func(id string, approval bool) []byte {
		return marchallObj(t, JoinRequest{CourseworkID: id, RequestApproval: approval})
	}

	t.Run("direct join is idempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			req, rec := newAuthRequest(http.MethodPost, "/v1/coursework/join", directToken, joinBody(cw.ID, false))
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, httpTest{
				wantCode: http.StatusOK,
				wantData: marchallObj(t, SuccessResponse{Message: "enrolled"}),
			}, rec)
		}
	})

	t.Run("unknown coursework", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/coursework/join", directToken, joinBody("nope", false))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: course.ErrNotFound.Error()}),
		}, rec)
	})

	t.Run("detail is enrollment gated", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/coursework/"+cw.ID, applicantToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: course.ErrNotEnrolled.Error()}),
		}, rec)
	})

	t.Run("request approval", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/coursework/join", applicantToken, joinBody(cw.ID, true))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Message: "join request submitted"}),
		}, rec)
	})

	t.Run("requests are staff only", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/coursework/requests", applicantToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	var pending course.JoinRequest

	t.Run("staff sees the pending request", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/coursework/requests/count", teacherToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, map[string]int{"count": 1})}, rec)

		req, rec = newAuthRequest(http.MethodGet, "/v1/coursework/requests", teacherToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var reqs []course.JoinRequest
		if err := json.Unmarshal(rec.Body.Bytes(), &reqs); err != nil {
			t.Fatalf("Unmarshal() failed: %v", err)
		}
		if len(reqs) != 1 || reqs[0].UserID != applicant.ID {
			t.Fatalf("reqs = %+v; want the applicant's request", reqs)
		}
		pending = reqs[0]
	})

	t.Run("accept enrolls and consumes the request", func(t *testing.T) {
		body := marchallObj(t, ResolveRequest{Decision: "accept"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/coursework/requests/"+pending.ID, teacherToken, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Message: "request resolved"}),
		}, rec)

		// resolving again finds nothing
		req, rec = newAuthRequest(http.MethodPost, "/v1/coursework/requests/"+pending.ID, teacherToken, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: course.ErrRequestNotFound.Error()}),
		}, rec)

		// the applicant is now in
		req, rec = newAuthRequest(http.MethodGet, "/v1/coursework/"+cw.ID, applicantToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var detail CourseworkDetailResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
			t.Fatalf("Unmarshal() failed: %v", err)
		}
		if len(detail.Members) != 3 {
			t.Errorf("got %d members; want 3", len(detail.Members))
		}
	})

	t.Run("bad decision", func(t *testing.T) {
		body := marchallObj(t, ResolveRequest{Decision: "maybe"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/coursework/requests/xxx", teacherToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusBadRequest)
		}
	})
}
