// config is the package containing configuration for circled, shared
// so it can be used by circled itself as well as other programs.
package config

import (
	"fmt"
	"time"
)

const (
	ConfigPath           = "/etc/circled/conf"
	ConfigName           = "circles-config.yaml"
	ConfigType           = "yaml"
	CirclesConfigVersion = "v1"
	EnvPrefix            = "CIRCLES"
)

type Config struct {
	// This is expected to be present in a config file (and will not
	// correspond to a flag). The value determines how the config file
	// is interpreted: for now, if it is not equal to
	// CirclesConfigVersion above, it is considered an invalid
	// configuration.
	ConfigVersion string `mapstructure:"circlesConfigVersion"`

	LogFormat     string `mapstructure:"logFormat"`
	Listen        string `mapstructure:"listen"`
	ListenMetrics string `mapstructure:"listenMetrics"`

	DatabaseDriver string `mapstructure:"databaseDriver"`
	DatabaseDSN    string `mapstructure:"databaseDsn"`

	SweepInterval         time.Duration `mapstructure:"sweepInterval"`
	DeploymentTimeout     time.Duration `mapstructure:"deploymentTimeout"`
	HealthPollInterval    time.Duration `mapstructure:"healthPollInterval"`
	NotificationTimeout   time.Duration `mapstructure:"notificationTimeout"`
	Workers               int           `mapstructure:"workers"`
	WorkloadReplicas      int           `mapstructure:"workloadReplicas"`
	WorkloadContainerPort int           `mapstructure:"workloadContainerPort"`

	RoutingGateways []string          `mapstructure:"routingGateways"`
	ObjectLabels    map[string]string `mapstructure:"objectLabels"`

	Kubeconfig        string   `mapstructure:"kubeconfig"`
	K8sAllowNamespace []string `mapstructure:"k8sAllowNamespace"`
	K8sDenyNamespace  []string `mapstructure:"k8sDenyNamespace"`
	K8sQPS            float64  `mapstructure:"k8sQps"`
	K8sBurst          int      `mapstructure:"k8sBurst"`
	K8sVerbosity      int      `mapstructure:"k8sVerbosity"`
}

func (c Config) IsValid() error {
	if c.ConfigVersion != CirclesConfigVersion {
		return fmt.Errorf("config file is expected to include `circlesConfigVersion: %s` to mark it as a circles config", CirclesConfigVersion)
	}
	switch c.LogFormat {
	case "fmt", "json":
	default:
		return fmt.Errorf("unknown log format %q; use fmt or json", c.LogFormat)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("a database DSN is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval)
	}
	if c.K8sQPS <= 0 || c.K8sBurst <= 0 {
		return fmt.Errorf("k8s QPS and burst must be positive")
	}
	return nil
}
