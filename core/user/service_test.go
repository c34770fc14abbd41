package user_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/user"
	emailsvc "github.com/itdsea/coursework/services/email"
	inmemdb "github.com/itdsea/coursework/storage/database/inmem"
	"github.com/itdsea/coursework/tests"
)

func setup(t *testing.T) (*user.Service, *inmemdb.DB, *core.Config) {
	t.Helper()

	conf := testutil.NewConfig()
	db := inmemdb.NewDB()
	svc := user.NewService(
		inmemdb.NewUserRepository(db),
		inmemdb.NewRosterRepository(db),
		emailsvc.NewConsoleServiceMock(conf),
		conf,
	)
	emailsvc.ClearSentMessages()
	return svc, db, conf
}

func causeOf(err error) error { return errors.Cause(err) }

func errorAs(err error, target interface{}) bool { return errors.As(err, target) }

func isValidationError(err error) bool {
	var vErr *core.ValidationError
	return errors.As(err, &vErr)
}

func lastSentMessage(t *testing.T) core.EmailMessage {
	t.Helper()

	if len(emailsvc.SentMessages) == 0 {
		t.Fatal("no mail was sent")
	}
	return emailsvc.SentMessages[len(emailsvc.SentMessages)-1]
}

func TestServiceRegister(t *testing.T) {
	svc, db, conf := setup(t)
	ctx := context.Background()

	testutil.CreateRosterEntry(t, inmemdb.NewRosterRepository(db), "41047039", "小明", "王")

	t.Run("unknown student id is rejected", func(t *testing.T) {
		_, err := svc.Register(ctx, user.NewUser{StudentID: "99999999", Password: "LePraTrends", PasswordConfirm: "LePraTrends"})
		var vErr *core.ValidationError
		if !errorAs(err, &vErr) {
			t.Fatalf("Register() err = %v; want ValidationError", err)
		}
		if len(vErr.Fields) != 1 || vErr.Fields[0].Field != "student_id" {
			t.Errorf("Register() fields = %+v; want a student_id error", vErr.Fields)
		}
	})

	t.Run("roster student registers", func(t *testing.T) {
		usr, err := svc.Register(ctx, user.NewUser{StudentID: "41047039", Password: "LePraTrends", PasswordConfirm: "LePraTrends"})
		if err != nil {
			t.Fatalf("Register() failed: %v", err)
		}
		if usr.Username != "41047039" {
			t.Errorf("Username = %q; want the student id", usr.Username)
		}
		if want := "41047039@" + conf.StudentEmailDomain; usr.Email != want {
			t.Errorf("Email = %q; want %q", usr.Email, want)
		}
		if usr.FirstName != "小明" || usr.LastName != "王" {
			t.Errorf("name = %q %q; want roster names", usr.FirstName, usr.LastName)
		}
		if usr.Role != user.RoleStudent {
			t.Errorf("Role = %q; want %q", usr.Role, user.RoleStudent)
		}
		if usr.IsVerified {
			t.Error("fresh account must not be verified")
		}
		if err := usr.CheckPassword("LePraTrends"); err != nil {
			t.Errorf("CheckPassword() failed: %v", err)
		}

		msg := lastSentMessage(t)
		if msg.Subject != "Activate your account" {
			t.Errorf("Subject = %q", msg.Subject)
		}
		if len(msg.To) != 1 || msg.To[0].Address != usr.Email {
			t.Errorf("To = %+v; want %q", msg.To, usr.Email)
		}
		if !strings.Contains(msg.BodyStr, "/v1/users/activate/") {
			t.Errorf("Body = %q; want an activation link", msg.BodyStr)
		}
	})

	t.Run("duplicate registration is rejected", func(t *testing.T) {
		_, err := svc.Register(ctx, user.NewUser{StudentID: "41047039", Password: "LePraTrends", PasswordConfirm: "LePraTrends"})
		var vErr *core.ValidationError
		if !errorAs(err, &vErr) {
			t.Fatalf("Register() err = %v; want ValidationError", err)
		}
	})
}

func TestServiceActivate(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()

	testutil.CreateRosterEntry(t, inmemdb.NewRosterRepository(db), "41047040", "小華", "林")
	usr, err := svc.Register(ctx, user.NewUser{StudentID: "41047040", Password: "LePraTrends", PasswordConfirm: "LePraTrends"})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	token, err := svc.Tokens().MakeToken(usr)
	if err != nil {
		t.Fatalf("MakeToken() failed: %v", err)
	}
	uid := user.EncodeUID(usr)

	t.Run("garbage uid", func(t *testing.T) {
		if _, err := svc.Activate(ctx, "!!!", token); !isValidationError(err) {
			t.Errorf("Activate() err = %v; want ValidationError", err)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		if _, err := svc.Activate(ctx, uid, "lol-nope"); !isValidationError(err) {
			t.Errorf("Activate() err = %v; want ValidationError", err)
		}
	})

	t.Run("valid token verifies the account", func(t *testing.T) {
		usr, err := svc.Activate(ctx, uid, token)
		if err != nil {
			t.Fatalf("Activate() failed: %v", err)
		}
		if !usr.IsVerified {
			t.Error("account should be verified")
		}
	})

	t.Run("token is single use", func(t *testing.T) {
		// the verified flag is hashed into the token
		if _, err := svc.Activate(ctx, uid, token); !isValidationError(err) {
			t.Errorf("Activate() err = %v; want ValidationError", err)
		}
	})
}

func TestServiceAuthenticate(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	usrRepo := inmemdb.NewUserRepository(db)

	verified := testutil.CreateUser(t, usrRepo, "41047041", "阿強", "陳", "LePraTrends", user.RoleStudent, true)
	unverified := testutil.CreateUser(t, usrRepo, "41047042", "阿美", "張", "LePraTrends", user.RoleStudent, false)

	inactive := testutil.CreateUser(t, usrRepo, "41047043", "阿呆", "李", "LePraTrends", user.RoleStudent, true)
	inactive.IsActive = false
	if _, err := usrRepo.UpdateUser(ctx, inactive); err != nil {
		t.Fatalf("UpdateUser() failed: %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"unknown user", "nobody", "LePraTrends", user.ErrNotFound},
		{"wrong password", verified.Username, "wrong", user.ErrNotFound},
		{"deactivated account", inactive.Username, "LePraTrends", user.ErrAccountDeactivated},
		{"unverified account", unverified.Username, "LePraTrends", user.ErrNotVerified},
		{"ok by username", verified.Username, "LePraTrends", nil},
		{"ok by email", verified.Email, "LePraTrends", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emailsvc.ClearSentMessages()
			usr, err := svc.Authenticate(ctx, tt.username, tt.password)
			if tt.wantErr != nil {
				if causeOf(err) != tt.wantErr {
					t.Fatalf("Authenticate() err = %v; want %v", err, tt.wantErr)
				}
				if tt.wantErr == user.ErrNotVerified {
					// a fresh activation mail goes out
					if msg := lastSentMessage(t); msg.Subject != "Activate your account" {
						t.Errorf("Subject = %q", msg.Subject)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() failed: %v", err)
			}
			if usr.LastLogin.IsZero() {
				t.Error("LastLogin should be set")
			}
		})
	}
}
