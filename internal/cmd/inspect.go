package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ratewatch/ratewatch/internal/core"
	"github.com/ratewatch/ratewatch/internal/core/classify"
	"github.com/ratewatch/ratewatch/internal/intercept"
	"github.com/ratewatch/ratewatch/internal/output"
)

var (
	inspectURL      string
	inspectHeaders  []string
	inspectBody     string
	inspectBodyFile string
	inspectReport   bool
)

// inspectResult is what inspect prints.
type inspectResult struct {
	Event      core.DetectionEvent `json:"event"`
	Completion bool                `json:"isCompletionEndpoint"`
	Source     string              `json:"resetSource"`
	Remaining  string              `json:"remaining"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Run detection on a captured 429 response",
	Long: `Classify a request URL and extract the reset time from a captured
429 response, exactly as the interception layer would.

Examples:
  ratewatch inspect --url https://claude.ai/api/organizations/o1/completion \
    --body '{"error":{"resets_at":1700000000}}'
  ratewatch inspect --url https://api.example.com/v1/chat/completions \
    --header 'Retry-After: 30' --report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(inspectURL) == "" {
			return errors.New("--url is required")
		}

		header, err := parseHeaderFlags(inspectHeaders)
		if err != nil {
			return err
		}
		body, err := readInspectBody(cmd.InOrStdin())
		if err != nil {
			return err
		}

		now := time.Now()
		ev, source := intercept.Detect(inspectURL, header, body, now)
		ev.Source = intercept.SourceClient

		result := inspectResult{
			Event:      ev,
			Completion: classify.IsCompletionEndpoint(inspectURL),
			Source:     string(source),
			Remaining:  "unknown",
		}
		if ev.ResetAt != nil {
			result.Remaining = output.FormatRemaining(*ev.ResetAt*1000 - now.UnixMilli())
		}

		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(payload)); err != nil {
			return err
		}

		if !inspectReport {
			return nil
		}
		api, err := newAPIClient(cmd.Context())
		if err != nil {
			return err
		}
		accepted, err := api.Report(cmd.Context(), ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Reported %s for %s\n", accepted.ID, accepted.Domain)
		return err
	},
}

// parseHeaderFlags turns "Name: value" pairs into a header.
func parseHeaderFlags(values []string) (http.Header, error) {
	header := http.Header{}
	for _, raw := range values {
		name, value, ok := strings.Cut(raw, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q (want \"Name: value\")", raw)
		}
		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return header, nil
}

func readInspectBody(stdin io.Reader) ([]byte, error) {
	switch {
	case inspectBody != "" && inspectBodyFile != "":
		return nil, errors.New("--body and --body-file are mutually exclusive")
	case inspectBodyFile == "-":
		return io.ReadAll(io.LimitReader(stdin, intercept.DefaultMaxBodyBytes))
	case inspectBodyFile != "":
		return os.ReadFile(inspectBodyFile)
	default:
		return []byte(inspectBody), nil
	}
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectURL, "url", "", "Request URL of the 429 response")
	inspectCmd.Flags().StringArrayVarP(&inspectHeaders, "header", "H", nil, "Response header as \"Name: value\" (repeatable)")
	inspectCmd.Flags().StringVar(&inspectBody, "body", "", "Response body")
	inspectCmd.Flags().StringVar(&inspectBodyFile, "body-file", "", "Read the response body from a file (- for stdin)")
	inspectCmd.Flags().BoolVar(&inspectReport, "report", false, "Also submit the detection to a running server")
}
