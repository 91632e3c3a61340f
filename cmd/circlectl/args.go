package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

func getFromEnvIfNotSet(flags *pflag.FlagSet, flagName, envName, value string) string {
	if flags.Changed(flagName) {
		return value
	}
	if env := os.Getenv(envName); env != "" {
		return env
	}
	return value
}

func makeExample(examples ...string) string {
	var buf strings.Builder
	for _, ex := range examples {
		fmt.Fprintf(&buf, "  %s\n", ex)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
