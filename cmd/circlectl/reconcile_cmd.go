package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type reconcileOpts struct {
	*rootOpts
}

func newReconcile(parent *rootOpts) *reconcileOpts {
	return &reconcileOpts{rootOpts: parent}
}

func (opts *reconcileOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reconcile <namespace>",
		Short:   "Re-apply the routing for a circle group, from its active deployments.",
		Example: makeExample("circlectl reconcile shop"),
		RunE:    opts.RunE,
	}
	return cmd
}

func (opts *reconcileOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errorWantedOneArg("the namespace of the circle group")
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	if err := opts.API.ReconcileGroup(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Routing for %s reconciled\n", args[0])
	return nil
}
