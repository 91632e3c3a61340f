package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluxcd/circles/pkg/api"
	transport "github.com/fluxcd/circles/pkg/http"
	"github.com/fluxcd/circles/pkg/http/client"
)

const (
	EnvVariableURL     = "CIRCLES_URL"
	EnvVariableTimeout = "CIRCLES_TIMEOUT"
)

type rootOpts struct {
	URL     string
	Timeout time.Duration
	API     api.Server
}

func newRoot() *rootOpts {
	return &rootOpts{}
}

var rootLongHelp = strings.TrimSpace(`
circlectl talks to circled, which deploys components to circles and
routes each circle's traffic to them.

Workflow:
  circlectl deploy -f request.json         # Deploy components to a circle
  circlectl list-executions --current      # How are the current deployments doing?
  circlectl list-circles --active          # Which circles are receiving traffic?
  circlectl undeploy <deployment-id>       # Take a circle's deployment out of routing
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "circlectl",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     false,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVarP(&opts.URL, "url", "u", "http://localhost:3030",
		fmt.Sprintf("base URL of the circled API server; you can also set the environment variable %s", EnvVariableURL))
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 60*time.Second,
		fmt.Sprintf("global command timeout; you can also set the environment variable %s", EnvVariableTimeout))

	cmd.AddCommand(
		newVersionCommand(),
		newDeploy(opts).Command(),
		newUndeploy(opts).Command(),
		newGetDeployment(opts).Command(),
		newGetExecution(opts).Command(),
		newListExecutions(opts).Command(),
		newListCircles(opts).Command(),
		newReconcile(opts).Command(),
		newSweep(opts).Command(),
	)

	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	// skip initialisation if we're running only the version command
	if cmd.Name() == "version" {
		return nil
	}

	opts.URL = getFromEnvIfNotSet(cmd.Flags(), "url", EnvVariableURL, opts.URL)
	if env := os.Getenv(EnvVariableTimeout); env != "" && !cmd.Flags().Changed("timeout") {
		d, err := time.ParseDuration(env)
		if err != nil {
			return newUsageError(fmt.Sprintf("%s must be a duration: %s", EnvVariableTimeout, err))
		}
		opts.Timeout = d
	}
	if opts.URL == "" {
		return newUsageError("no URL given for circled; use --url or " + EnvVariableURL)
	}

	opts.API = client.New(&http.Client{Timeout: opts.Timeout}, transport.NewAPIRouter(), opts.URL)
	return nil
}
