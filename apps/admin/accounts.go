package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/identity"
	"github.com/trezcool/companion/core/user"
)

var errNoPasswordManagement = errors.New("passwords are managed by the hosted identity service")

// passwordSetter is implemented by providers owning the credentials, i.e. identity.LocalProvider.
type passwordSetter interface {
	SetPassword(ctx context.Context, email, password string) error
}

// addAdmin creates the account of email when missing, then stores or promotes its profile to ADMIN.
// The password of an existing account is replaced when the provider allows it.
//
// This is the operator bootstrap: the first admin cannot go through a role request since
// nobody is there to approve it. An existing profile only has its role set, its name is kept.
func (cli *commandLine) addAdmin(name, email, pwd string) error {
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)

	id, err := cli.provider.SignUp(ctx, email, pwd)
	if err != nil {
		var aerr *identity.AuthError
		if !errors.As(err, &aerr) || aerr.Reason != identity.ReasonEmailExists {
			return errors.Wrap(err, "creating account")
		}
		if setter, ok := cli.provider.(passwordSetter); ok {
			if err = setter.SetPassword(ctx, email, pwd); err != nil {
				return errors.Wrap(err, "setting password")
			}
		}
		if id, err = cli.provider.SignIn(ctx, email, pwd); err != nil {
			return errors.Wrap(err, "signing in existing account")
		}
	}

	p, err := cli.profiles.GetProfile(ctx, id.ID)
	switch {
	case errors.Is(err, user.ErrNotFound):
		if _, err = cli.profiles.CreateProfile(ctx, id.ID, name, email, user.RoleAdmin); err != nil {
			return errors.Wrap(err, "creating profile")
		}
	case err != nil:
		return errors.Wrap(err, "getting profile")
	default:
		if err = cli.profiles.SetRole(ctx, p.ID, user.RoleAdmin); err != nil {
			return errors.Wrap(err, "promoting profile")
		}
		name = p.Name
	}
	fmt.Fprintf(cli.out, "%s <%s> is an admin\n", name, email)
	return nil
}

func (cli *commandLine) resetPassword(email, pwd string) error {
	setter, ok := cli.provider.(passwordSetter)
	if !ok {
		return errNoPasswordManagement
	}
	return setter.SetPassword(context.Background(), email, pwd)
}

// listProfiles prints the profiles holding roleName, or every profile when it is empty.
func (cli *commandLine) listProfiles(roleName string) error {
	var roles []user.Role
	if roleName != "" {
		role, err := user.ParseRole(roleName)
		if err != nil {
			return err
		}
		roles = append(roles, role)
	}

	profiles, err := cli.profiles.QueryAll(context.Background(), roles...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROLE\tNAME\tEMAIL\tCREATED AT")
	for _, p := range profiles {
		at := time.Unix(0, p.CreatedAt*int64(time.Millisecond)).UTC().Format(time.RFC3339)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Role, p.Name, p.Email, at)
	}
	return w.Flush()
}
