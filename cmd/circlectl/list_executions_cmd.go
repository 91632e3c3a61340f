package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	v1 "github.com/fluxcd/circles/pkg/api/v1"
	"github.com/fluxcd/circles/pkg/circle"
)

type listExecutionsOpts struct {
	*rootOpts
	current      bool
	notCurrent   bool
	page         int
	size         int
	outputFormat string
}

func newListExecutions(parent *rootOpts) *listExecutionsOpts {
	return &listExecutionsOpts{rootOpts: parent}
}

func (opts *listExecutionsOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list-executions",
		Aliases: []string{"executions"},
		Short:   "List deployment and undeployment executions, newest first.",
		Example: makeExample(
			"circlectl list-executions",
			"circlectl list-executions --current --size=50",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().BoolVar(&opts.current, "current", false, "only executions of deployments that are current in their circle")
	cmd.Flags().BoolVar(&opts.notCurrent, "not-current", false, "only executions of deployments that have been superseded")
	cmd.Flags().IntVar(&opts.page, "page", 0, "page of results to show, starting at 0")
	cmd.Flags().IntVar(&opts.size, "size", circle.DefaultPageSize, "number of results per page")
	cmd.Flags().StringVarP(&opts.outputFormat, "output", "o", outputTable, "output format (tab, json or yaml)")
	return cmd
}

func (opts *listExecutionsOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if opts.current && opts.notCurrent {
		return newUsageError("--current and --not-current are mutually exclusive")
	}
	if !outputFormatIsValid(opts.outputFormat) {
		return newUsageError("unknown output format " + opts.outputFormat)
	}

	listOpts := v1.ListExecutionsOptions{
		PageRequest: circle.PageRequest{Page: opts.page, Size: opts.size},
	}
	switch {
	case opts.current:
		listOpts.Current = boolPtr(true)
	case opts.notCurrent:
		listOpts.Current = boolPtr(false)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	page, err := opts.API.ListExecutions(ctx, listOpts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.outputFormat != outputTable {
		return printStructured(out, opts.outputFormat, page)
	}

	now := time.Now()
	w := newTabwriter(out)
	fmt.Fprintf(w, "EXECUTION\tTYPE\tDEPLOYMENT\tCIRCLE\tSTATUS\tNOTIFICATION\tAGE\n")
	for _, ex := range page.Content {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ex.ID, ex.Type, ex.DeploymentID, orDash(string(ex.IncomingCircleID)),
			ex.Status, ex.NotificationStatus, since(ex.CreatedAt, now))
	}
	w.Flush()
	pageFooter(out, page.Page)
	return nil
}

func boolPtr(b bool) *bool {
	return &b
}
