package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/companion/core/gate"
	"github.com/trezcool/companion/core/identity"
	"github.com/trezcool/companion/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	gate     *gate.Gate
	profiles *user.Service
	provider identity.Provider
	db       *sqlx.DB // nil unless the storage is postgres
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run database migrations (postgres storage only)")
	fmt.Fprintln(cli.out, "  addadmin -email EMAIL -name NAME - create or promote an admin account")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset an account's password")
	fmt.Fprintln(cli.out, "  profiles [-role student|teacher|admin] - list profiles")
	fmt.Fprintln(cli.out, "  requests -role teacher|admin [-pending] - list role requests")
	fmt.Fprintln(cli.out, "  decide -role teacher|admin -id ID -approve|-reject - decide a pending role request")
	fmt.Fprintln(cli.out, "  reconcile - grant the roles of approved requests whose profile missed the update")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addAdminCmd := flag.NewFlagSet("addadmin", flag.ExitOnError)
	addAdminEmail := addAdminCmd.String("email", "", "The admin's email. The password will be prompted next.")
	addAdminName := addAdminCmd.String("name", "", "The admin's display name.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The account's email. The password will be prompted next.")

	profilesCmd := flag.NewFlagSet("profiles", flag.ExitOnError)
	profilesRole := profilesCmd.String("role", "", "Only list the profiles holding this role.")

	requestsCmd := flag.NewFlagSet("requests", flag.ExitOnError)
	requestsRole := requestsCmd.String("role", "", "The requested role: teacher or admin.")
	requestsPending := requestsCmd.Bool("pending", false, "Only list the requests waiting for a decision.")

	decideCmd := flag.NewFlagSet("decide", flag.ExitOnError)
	decideRole := decideCmd.String("role", "", "The requested role: teacher or admin.")
	decideID := decideCmd.String("id", "", "The request id.")
	decideApprove := decideCmd.Bool("approve", false, "Approve the request and grant the role.")
	decideReject := decideCmd.Bool("reject", false, "Reject the request.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addadmin":
		if err := addAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addAdminEmail == "" || *addAdminName == "" {
			addAdminCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addAdminCmd.Usage()
			return errHelp
		}
		return cli.addAdmin(*addAdminName, *addAdminEmail, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "profiles":
		if err := profilesCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.listProfiles(*profilesRole)

	case "requests":
		if err := requestsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *requestsRole == "" {
			requestsCmd.Usage()
			return errHelp
		}
		return cli.listRequests(*requestsRole, *requestsPending)

	case "decide":
		if err := decideCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *decideRole == "" || *decideID == "" || *decideApprove == *decideReject {
			decideCmd.Usage()
			return errHelp
		}
		return cli.decide(*decideRole, *decideID, *decideApprove)

	case "reconcile":
		return cli.reconcile()

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
