package main

import (
	"context"
	"time"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/user"
)

// addStaff updates or creates a staff account. Staff accounts bypass the
// roster gate and are verified immediately.
func (cli *commandLine) addStaff(uname, email, pwd string, isTeacher bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: uname})
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Username:  uname,
			Email:     email,
			CreatedAt: time.Now().UTC(),
		}
	}
	usr.Email = email
	usr.Role = user.RoleAssistant
	if isTeacher {
		usr.Role = user.RoleTeacher
	}
	usr.IsVerified = true
	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
