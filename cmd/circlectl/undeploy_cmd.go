package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxcd/circles/pkg/circle"
)

type undeployOpts struct {
	*rootOpts
}

func newUndeploy(parent *rootOpts) *undeployOpts {
	return &undeployOpts{rootOpts: parent}
}

func (opts *undeployOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "undeploy <deployment-id>",
		Short:   "Take a circle's current deployment out of routing and remove its workloads.",
		Example: makeExample("circlectl undeploy 7f1c3a2e-0b3d-4f0e-9a7e-2b8c4d5e6f70"),
		RunE:    opts.RunE,
	}
	return cmd
}

func (opts *undeployOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errorWantedOneArg("the id of the deployment to undeploy")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	ex, err := opts.API.UndeployDeployment(ctx, circle.DeploymentID(args[0]))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Undeployment of %s accepted; execution %s is %s\n", args[0], ex.ID, ex.Status)
	return nil
}
