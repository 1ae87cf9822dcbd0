package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/rolerequest"
	"github.com/trezcool/companion/core/user"
)

func (cli *commandLine) listRequests(roleName string, pendingOnly bool) error {
	role, err := user.ParseRole(roleName)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var reqs []rolerequest.RoleRequest
	if pendingOnly {
		reqs, err = cli.gate.PendingRequests(ctx, role)
	} else {
		reqs, err = cli.gate.ListRequests(ctx, role)
	}
	if err != nil {
		return err
	}
	rolerequest.Sort(reqs, []core.Ordering{{Field: "timestamp", Ascending: true}})

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tNAME\tEMAIL\tREQUESTED AT\tDETAILS")
	for _, r := range reqs {
		at := time.Unix(0, r.Timestamp*int64(time.Millisecond)).UTC().Format(time.RFC3339)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Status, r.Name, r.Email, at, r.Details)
	}
	return w.Flush()
}

func (cli *commandLine) decide(roleName, id string, approve bool) error {
	role, err := user.ParseRole(roleName)
	if err != nil {
		return err
	}
	req, err := cli.gate.DecideRequest(context.Background(), id, role, approve)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "request %s of %s <%s> %s\n", req.ID, req.Name, req.Email, req.Status)
	return nil
}

func (cli *commandLine) reconcile() error {
	repaired, err := cli.gate.Reconcile(context.Background())
	fmt.Fprintf(cli.out, "%d profile(s) repaired\n", repaired)
	return errors.Wrap(err, "reconcile")
}
