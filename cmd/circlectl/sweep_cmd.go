package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type sweepOpts struct {
	*rootOpts
}

func newSweep(parent *rootOpts) *sweepOpts {
	return &sweepOpts{rootOpts: parent}
}

func (opts *sweepOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Time out executions that have run past their deadline, without waiting for the next scheduled sweep.",
		RunE:  opts.RunE,
	}
	return cmd
}

func (opts *sweepOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	res, err := opts.API.Sweep(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(res.TimedOut) == 0 {
		fmt.Fprintln(out, "No executions timed out")
		return nil
	}
	fmt.Fprintf(out, "Timed out %d execution(s):\n", len(res.TimedOut))
	for _, id := range res.TimedOut {
		fmt.Fprintf(out, "  %s\n", id)
	}
	return nil
}
