package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func valid() Config {
	return Config{
		ConfigVersion: CirclesConfigVersion,
		LogFormat:     "fmt",
		DatabaseDSN:   ":memory:",
		Workers:       4,
		SweepInterval: time.Minute,
		K8sQPS:        20,
		K8sBurst:      40,
	}
}

func TestIsValid(t *testing.T) {
	assert.NoError(t, valid().IsValid())

	for name, mutate := range map[string]func(*Config){
		"version":    func(c *Config) { c.ConfigVersion = "v0" },
		"log format": func(c *Config) { c.LogFormat = "xml" },
		"dsn":        func(c *Config) { c.DatabaseDSN = "" },
		"workers":    func(c *Config) { c.Workers = 0 },
		"sweep":      func(c *Config) { c.SweepInterval = 0 },
		"qps":        func(c *Config) { c.K8sQPS = 0 },
	} {
		c := valid()
		mutate(&c)
		assert.Error(t, c.IsValid(), name)
	}
}
