package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/circles/pkg/config"
)

func TestDefineEverything(t *testing.T) {
	flags := pflag.NewFlagSet("testflags", pflag.ContinueOnError)
	defineConfigFlags(flags, viper.New(), func(err error) {
		t.Error(err)
	})
}

func TestLoadConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "circles.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
circlesConfigVersion: v1
databaseDriver: sqlite
databaseDsn: ":memory:"
sweepInterval: 1m
k8sAllowNamespace: [shop, "team-*"]
`), 0600))

	flags := pflag.NewFlagSet("testflags", pflag.ContinueOnError)
	v := viper.New()
	defineConfigFlags(flags, v, func(err error) { t.Error(err) })
	require.NoError(t, flags.Parse([]string{"--workers=8", "--object-label=team=checkout"}))

	cfg, err := loadConfig(v, file)
	require.NoError(t, err)
	assert.Equal(t, config.CirclesConfigVersion, cfg.ConfigVersion)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, []string{"shop", "team-*"}, cfg.K8sAllowNamespace)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, map[string]string{"team": "checkout"}, cfg.ObjectLabels)
	// untouched flags give their defaults
	assert.Equal(t, ":3030", cfg.Listen)
	assert.Equal(t, []string{"kube-*"}, cfg.K8sDenyNamespace)
	assert.NoError(t, cfg.IsValid())
}

func TestLoadConfigWrongVersion(t *testing.T) {
	file := filepath.Join(t.TempDir(), "circles.yaml")
	require.NoError(t, os.WriteFile(file, []byte("circlesConfigVersion: v0\ndatabaseDsn: x\n"), 0600))
	flags := pflag.NewFlagSet("testflags", pflag.ContinueOnError)
	v := viper.New()
	defineConfigFlags(flags, v, func(err error) { t.Error(err) })

	_, err := loadConfig(v, file)
	assert.Error(t, err)
}

func TestConfigKey(t *testing.T) {
	key, err := configKey("DatabaseDSN")
	require.NoError(t, err)
	assert.Equal(t, "databaseDsn", key)

	_, err = configKey("NoSuchField")
	assert.Error(t, err)
}
