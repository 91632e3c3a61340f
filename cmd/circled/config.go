package main

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fluxcd/circles/pkg/config"
	"github.com/fluxcd/circles/pkg/daemon"
	"github.com/fluxcd/circles/pkg/notify"
	"github.com/fluxcd/circles/pkg/orchestrator"
	"github.com/fluxcd/circles/pkg/store/sqlstore"
)

// configKey returns the key viper knows a config.Config field by: the
// name from its mapstructure tag, or the field name if the tag has
// none. Fields tagged "-" cannot be configured.
func configKey(fieldName string) (string, error) {
	field, ok := reflect.TypeOf(config.Config{}).FieldByName(fieldName)
	if !ok {
		return "", fmt.Errorf("no field %q in config.Config", fieldName)
	}
	name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
	switch name {
	case "":
		return field.Name, nil
	case "-":
		return "", fmt.Errorf("config.Config field %q is not configurable", field.Name)
	}
	return name, nil
}

// defineConfigFlags defines a flag for each config.Config field that
// can be given on the command line, and binds it to the field's key,
// so a flag given overrides the config file.
func defineConfigFlags(fs *pflag.FlagSet, v *viper.Viper, bail func(error)) {
	bind := func(fieldName, flagName string) {
		key, err := configKey(fieldName)
		if err == nil {
			err = v.BindPFlag(key, fs.Lookup(flagName))
		}
		if err != nil {
			bail(err)
		}
	}

	defineString := func(fieldName, flagName, def, desc string) {
		fs.String(flagName, def, desc)
		bind(fieldName, flagName)
	}
	defineStringP := func(fieldName, flagName, short, def, desc string) {
		fs.StringP(flagName, short, def, desc)
		bind(fieldName, flagName)
	}
	defineStringSlice := func(fieldName, flagName string, def []string, desc string) {
		fs.StringSlice(flagName, def, desc)
		bind(fieldName, flagName)
	}
	defineStringToString := func(fieldName, flagName string, def map[string]string, desc string) {
		fs.StringToString(flagName, def, desc)
		bind(fieldName, flagName)
	}
	defineDuration := func(fieldName, flagName string, def time.Duration, desc string) {
		fs.Duration(flagName, def, desc)
		bind(fieldName, flagName)
	}
	defineInt := func(fieldName, flagName string, def int, desc string) {
		fs.Int(flagName, def, desc)
		bind(fieldName, flagName)
	}
	defineFloat64 := func(fieldName, flagName string, def float64, desc string) {
		fs.Float64(flagName, def, desc)
		bind(fieldName, flagName)
	}

	defineString("LogFormat", "log-format", "fmt", "change the log format; one of fmt, json")
	defineStringP("Listen", "listen", "l", ":3030", "listen address where the API (and /metrics, unless --listen-metrics is given) will be served")
	defineString("ListenMetrics", "listen-metrics", "", "listen address for /metrics endpoint")

	// persistence
	defineString("DatabaseDriver", "database-driver", sqlstore.DriverPostgres, fmt.Sprintf("database driver; one of %s, %s", sqlstore.DriverPostgres, sqlstore.DriverSQLite))
	defineString("DatabaseDSN", "database-dsn", "", "database connection string, e.g., postgres://circles@localhost/circles?sslmode=disable")

	// pipeline
	defineDuration("SweepInterval", "sweep-interval", daemon.DefaultSweepInterval, "time out overdue executions at least this often")
	defineDuration("DeploymentTimeout", "deployment-timeout", orchestrator.DefaultTimeout, "time a deployment has to become healthy and routed, when the request does not give one")
	defineDuration("HealthPollInterval", "health-poll-interval", orchestrator.DefaultPollInterval, "period at which to check whether a deployment's workloads have rolled out")
	defineDuration("NotificationTimeout", "notification-timeout", notify.DefaultTimeout, "duration after which callback requests time out")
	defineInt("Workers", "workers", daemon.DefaultWorkers, "number of deployments and undeployments that may run at once")
	defineInt("WorkloadReplicas", "workload-replicas", 1, "replicas of each component's workload")
	defineInt("WorkloadContainerPort", "workload-container-port", 8080, "port each component's container serves HTTP on")

	// routing
	defineStringSlice("RoutingGateways", "routing-gateway", []string{}, "gateways to add to every virtual service, in addition to those named by components")
	defineStringToString("ObjectLabels", "object-label", map[string]string{}, "labels to add to every object applied to the cluster, as key=value")

	// cluster
	defineString("Kubeconfig", "kubeconfig", "", "path to a kubeconfig; if not given, in-cluster configuration is used")
	defineStringSlice("K8sAllowNamespace", "k8s-allow-namespace", []string{}, "restrict deployments to namespaces matching these glob patterns")
	defineStringSlice("K8sDenyNamespace", "k8s-deny-namespace", []string{"kube-*"}, "never deploy to namespaces matching these glob patterns")
	defineFloat64("K8sQPS", "k8s-qps", 20, "maximum Kubernetes API requests per second")
	defineInt("K8sBurst", "k8s-burst", 40, "maximum burst of Kubernetes API requests")
	defineInt("K8sVerbosity", "k8s-verbosity", 0, "klog verbosity level")
}
