package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ghodss/yaml"

	"github.com/fluxcd/circles/pkg/circle"
)

const (
	outputTable = "tab"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func newTabwriter(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
}

func outputFormatIsValid(format string) bool {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return true
	}
	return false
}

// printStructured writes v as JSON or YAML, according to format.
func printStructured(out io.Writer, format string, v interface{}) error {
	var b []byte
	var err error
	switch format {
	case outputJSON:
		b, err = json.MarshalIndent(v, "", "  ")
		b = append(b, '\n')
	default:
		b, err = yaml.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = out.Write(b)
	return err
}

func since(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return now.Sub(t).Round(time.Second).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func pageFooter(out io.Writer, p circle.Page) {
	if !p.Last {
		fmt.Fprintf(out, "(%d results in total; use --page=%d for more)\n", p.Total, p.Page+1)
	}
}
