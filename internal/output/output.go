package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"huawei-solar/internal/inverter"
)

type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty_print"
)

// Stdout is the destination name that writes to standard output.
const Stdout = "-"

// ParseFormat reports whether s names a known format.
func ParseFormat(s string) (Format, bool) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatPretty:
		return f, true
	default:
		return "", false
	}
}

func Render(f Format, res inverter.Result) ([]byte, error) {
	switch f {
	case FormatJSON:
		return JSON(res)
	case FormatPretty:
		return []byte(Pretty(res)), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", f)
	}
}

// JSON encodes res as a single object with sorted keys.
func JSON(res inverter.Result) ([]byte, error) {
	if res == nil {
		res = inverter.Result{}
	}
	out, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return out, nil
}

// Write sends data to dest: stdout for "-", otherwise a file that is created
// or truncated.
func Write(dest string, data []byte, stdout io.Writer) error {
	if dest == Stdout {
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write to stdout: %w", err)
		}
		if len(data) == 0 || data[len(data)-1] != '\n' {
			if _, err := io.WriteString(stdout, "\n"); err != nil {
				return fmt.Errorf("failed to write to stdout: %w", err)
			}
		}
		return nil
	}

	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}
