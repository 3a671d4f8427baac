package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ratewatch/ratewatch/internal/output"
)

// outputTarget is where and how a command writes its result, resolved
// from --output-format, --out and --out-dir.
type outputTarget struct {
	format output.Format
	path   string
	dir    string
}

type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

// addOutputFlags registers --output-format, --out and --out-dir.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "Write output to a directory, one file per run")
}

// resolveOutput validates the output flags before any work is done.
func resolveOutput(cmd *cobra.Command) (outputTarget, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return outputTarget{}, err
	}
	format, err := output.ParseFormat(value)
	if err != nil {
		return outputTarget{}, err
	}

	path, err := cmd.Flags().GetString("out")
	if err != nil {
		return outputTarget{}, err
	}
	dir, err := cmd.Flags().GetString("out-dir")
	if err != nil {
		return outputTarget{}, err
	}
	path, dir = strings.TrimSpace(path), strings.TrimSpace(dir)
	if path != "" && dir != "" {
		return outputTarget{}, fmt.Errorf("--out and --out-dir are mutually exclusive")
	}
	return outputTarget{format: format, path: path, dir: dir}, nil
}

// open returns the sink for this run. With --out-dir the file is named
// after name and the format; otherwise --out or the command's stdout.
func (t outputTarget) open(cmd *cobra.Command, name string) (*outputSink, error) {
	path := t.path
	if t.dir != "" {
		if err := os.MkdirAll(t.dir, 0755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
		path = filepath.Join(t.dir, sanitizeFilename(name)+"."+outputExtension(t.format))
	}

	if path == "" || path == "-" {
		return &outputSink{writer: cmd.OutOrStdout(), close: func() error { return nil }, path: "-"}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: path}, nil
}

// write renders through fn and writes the result to the sink named name.
func (t outputTarget) write(cmd *cobra.Command, name string, fn func(output.Formatter) (string, error)) error {
	rendered, err := fn(output.NewFormatter(t.format))
	if err != nil {
		return err
	}
	sink, err := t.open(cmd, name)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(sink.writer, rendered); err != nil {
		_ = sink.close()
		return err
	}
	return sink.close()
}

func outputExtension(format output.Format) string {
	switch format {
	case output.FormatJSON:
		return "json"
	case output.FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

func sanitizeFilename(value string) string {
	clean := strings.ToLower(strings.TrimSpace(value))
	clean = nonFilename.ReplaceAllString(clean, "-")
	clean = strings.Trim(clean, "-.")
	if clean == "" {
		return "output"
	}
	return clean
}
