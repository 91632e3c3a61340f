package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	v1 "github.com/fluxcd/circles/pkg/api/v1"
	"github.com/fluxcd/circles/pkg/circle"
)

type listCirclesOpts struct {
	*rootOpts
	name         string
	workspace    string
	active       bool
	inactive     bool
	page         int
	size         int
	outputFormat string
}

func newListCircles(parent *rootOpts) *listCirclesOpts {
	return &listCirclesOpts{rootOpts: parent}
}

func (opts *listCirclesOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list-circles",
		Aliases: []string{"circles"},
		Short:   "List circles, and whether they are receiving traffic.",
		Example: makeExample(
			"circlectl list-circles --active",
			"circlectl list-circles --name=beta --workspace=ws-1",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "only circles with this name")
	cmd.Flags().StringVar(&opts.workspace, "workspace", "", "only circles in this workspace")
	cmd.Flags().BoolVar(&opts.active, "active", false, "only circles with an active deployment")
	cmd.Flags().BoolVar(&opts.inactive, "inactive", false, "only circles without an active deployment")
	cmd.Flags().IntVar(&opts.page, "page", 0, "page of results to show, starting at 0")
	cmd.Flags().IntVar(&opts.size, "size", circle.DefaultPageSize, "number of results per page")
	cmd.Flags().StringVarP(&opts.outputFormat, "output", "o", outputTable, "output format (tab, json or yaml)")
	return cmd
}

func (opts *listCirclesOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if opts.active && opts.inactive {
		return newUsageError("--active and --inactive are mutually exclusive")
	}
	if !outputFormatIsValid(opts.outputFormat) {
		return newUsageError("unknown output format " + opts.outputFormat)
	}

	listOpts := v1.ListCirclesOptions{
		PageRequest: circle.PageRequest{Page: opts.page, Size: opts.size},
		Name:        opts.name,
		WorkspaceID: opts.workspace,
	}
	switch {
	case opts.active:
		listOpts.Active = boolPtr(true)
	case opts.inactive:
		listOpts.Active = boolPtr(false)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	page, err := opts.API.ListCircles(ctx, listOpts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.outputFormat != outputTable {
		return printStructured(out, opts.outputFormat, page)
	}

	w := newTabwriter(out)
	fmt.Fprintf(w, "CIRCLE\tNAME\tWORKSPACE\tDEFAULT\tACTIVE\n")
	for _, c := range page.Content {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.ID, orDash(c.Name), orDash(c.WorkspaceID), strconv.FormatBool(c.Default), strconv.FormatBool(c.Active))
	}
	w.Flush()
	pageFooter(out, page.Page)
	return nil
}
