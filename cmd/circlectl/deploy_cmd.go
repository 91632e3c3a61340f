package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	v1 "github.com/fluxcd/circles/pkg/api/v1"
)

type deployOpts struct {
	*rootOpts
	file         string
	outputFormat string
}

func newDeploy(parent *rootOpts) *deployOpts {
	return &deployOpts{rootOpts: parent}
}

func (opts *deployOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy components to a circle.",
		Example: makeExample(
			"circlectl deploy -f request.json",
			"circlectl deploy -f request.yaml -o yaml",
			"cat request.json | circlectl deploy -f -",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "file containing the deployment request, as JSON or YAML; - for stdin")
	cmd.Flags().StringVarP(&opts.outputFormat, "output", "o", outputTable, "output format (tab, json or yaml)")
	return cmd
}

func (opts *deployOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if opts.file == "" {
		return newUsageError("-f, --file is required")
	}
	if !outputFormatIsValid(opts.outputFormat) {
		return newUsageError("unknown output format " + opts.outputFormat)
	}

	req, err := readRequest(cmd, opts.file)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	resp, err := opts.API.CreateDeployment(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.outputFormat != outputTable {
		return printStructured(out, opts.outputFormat, resp)
	}
	fmt.Fprintf(out, "Deployment %s to circle %s accepted; execution %s is %s\n",
		resp.Deployment.ID, resp.Deployment.CircleID, resp.Execution.ID, resp.Execution.Status)
	return nil
}

// readRequest reads a deployment request from a file, or stdin if the
// path is "-". YAML is accepted as well as JSON.
func readRequest(cmd *cobra.Command, path string) (v1.CreateDeploymentRequest, error) {
	var req v1.CreateDeploymentRequest
	var b []byte
	var err error
	if path == "-" {
		b, err = io.ReadAll(cmd.InOrStdin())
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return req, errors.Wrap(err, "reading deployment request")
	}
	jsonBytes, err := yaml.YAMLToJSON(b)
	if err != nil {
		return req, errors.Wrap(err, "parsing deployment request")
	}
	if err := v1.ValidateCreateDeployment(jsonBytes); err != nil {
		return req, err
	}
	if err := yaml.Unmarshal(b, &req); err != nil {
		return req, errors.Wrap(err, "parsing deployment request")
	}
	return req, nil
}
