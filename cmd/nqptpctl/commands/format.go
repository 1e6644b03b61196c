// Package commands implements the nqptpctl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	appversion "github.com/klemensn/nqptp/internal/version"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
	valueNA    = "N/A"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// row is one label/value line of text output.
type row struct {
	label string
	value string
}

// texter is implemented by views with a text rendering.
type texter interface {
	rows() []row
}

// render writes v to w in the requested format.
func render(w io.Writer, v texter, format string) error {
	out, err := renderString(v, format)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func renderString(v texter, format string) (string, error) {
	switch format {
	case formatText:
		return formatRows(v.rows())
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal to JSON: %w", err)
		}
		return string(data) + "\n", nil
	case formatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal to YAML: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Text formatter ---

func formatRows(rows []row) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	for _, r := range rows {
		value := r.value
		if value == "" {
			value = valueNA
		}
		fmt.Fprintf(w, "%s:\t%s\n", r.label, value)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

// --- View types for clean JSON/YAML output ---

type identityView struct {
	Interface     string `json:"interface,omitempty"      yaml:"interface,omitempty"`
	Index         int    `json:"index,omitempty"          yaml:"index,omitempty"`
	HardwareAddr  string `json:"hardware_address"         yaml:"hardware_address"`
	ClockIdentity string `json:"clock_identity"           yaml:"clock_identity"`
	Hex           string `json:"clock_identity_hex"       yaml:"clock_identity_hex"`
}

func (v identityView) rows() []row {
	var out []row
	if v.Interface != "" {
		out = append(out,
			row{"Interface", v.Interface},
			row{"Index", fmt.Sprint(v.Index)},
		)
	}
	return append(out,
		row{"Hardware Address", v.HardwareAddr},
		row{"Clock Identity", v.ClockIdentity},
		row{"Clock Identity (hex)", v.Hex},
	)
}

type dumpView struct {
	Type  string `json:"type"      yaml:"type"`
	Level string `json:"log_level" yaml:"log_level"`
	Bytes int    `json:"bytes"     yaml:"bytes"`
	Hex   string `json:"hex"       yaml:"hex"`
}

func (v dumpView) rows() []row {
	return []row{
		{"Type", v.Type},
		{"Log Level", v.Level},
		{"Bytes", fmt.Sprint(v.Bytes)},
		{"Hex", v.Hex},
	}
}

// versionView wraps the build information for rendering.
type versionView struct {
	appversion.Info `yaml:",inline"`
}

func (v versionView) rows() []row {
	return []row{
		{"Version", v.Version},
		{"Commit", v.GitCommit},
		{"Built", v.BuildDate},
		{"Go", v.GoVersion},
	}
}
