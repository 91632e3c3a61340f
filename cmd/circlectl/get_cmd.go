package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fluxcd/circles/pkg/circle"
)

type getDeploymentOpts struct {
	*rootOpts
	outputFormat string
}

func newGetDeployment(parent *rootOpts) *getDeploymentOpts {
	return &getDeploymentOpts{rootOpts: parent}
}

func (opts *getDeploymentOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get-deployment <deployment-id>",
		Short: "Show a deployment and its components.",
		RunE:  opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.outputFormat, "output", "o", outputYAML, "output format (json or yaml)")
	return cmd
}

func (opts *getDeploymentOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errorWantedOneArg("the id of the deployment")
	}
	if opts.outputFormat != outputJSON && opts.outputFormat != outputYAML {
		return newUsageError("output format must be json or yaml")
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	d, err := opts.API.GetDeployment(ctx, circle.DeploymentID(args[0]))
	if err != nil {
		return err
	}
	return printStructured(cmd.OutOrStdout(), opts.outputFormat, d)
}

type getExecutionOpts struct {
	*rootOpts
	outputFormat string
}

func newGetExecution(parent *rootOpts) *getExecutionOpts {
	return &getExecutionOpts{rootOpts: parent}
}

func (opts *getExecutionOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get-execution <execution-id>",
		Short: "Show an execution, with the deployment it belongs to.",
		RunE:  opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.outputFormat, "output", "o", outputYAML, "output format (json or yaml)")
	return cmd
}

func (opts *getExecutionOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errorWantedOneArg("the id of the execution")
	}
	if opts.outputFormat != outputJSON && opts.outputFormat != outputYAML {
		return newUsageError("output format must be json or yaml")
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	ex, err := opts.API.GetExecution(ctx, circle.ExecutionID(args[0]))
	if err != nil {
		return err
	}
	return printStructured(cmd.OutOrStdout(), opts.outputFormat, ex)
}
