package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

// addUser updates or creates an active user.User with the given roles
func (cli *commandLine) addUser(name, uname, email, pwd string, roles []string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	exists := err == nil
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return err
	}

	if name = core.CleanString(name); name != "" {
		usr.Name = name
	}
	if uname != "" {
		usr.Username = uname
	}
	if email != "" {
		usr.Email = email
	}
	usr.Roles = roles
	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()
	if !exists {
		usr.CreatedAt = usr.UpdatedAt
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	return err
}
