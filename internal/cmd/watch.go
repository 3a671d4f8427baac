package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/ratewatch/ratewatch/internal/client"
	"github.com/ratewatch/ratewatch/internal/notify"
	"github.com/ratewatch/ratewatch/internal/observability"
	"github.com/ratewatch/ratewatch/internal/surface"
	"github.com/ratewatch/ratewatch/internal/tracker"
)

var (
	watchDomain string
	watchOrigin string
	watchGrace  time.Duration
	watchNoAck  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow rate limits with a live countdown",
	Long: `Follow a running server's event stream and show a countdown to the
next reset. When a limit resets the countdown shows "Limit Reset!" and,
after a short grace period, clears the domain on the server.

The stream is reopened with exponential backoff if the server goes away.

Examples:
  ratewatch watch
  ratewatch watch --domain claude.ai --origin https://claude.ai`,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient(cmd.Context())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		renderer := newLineRenderer(out, isTerminal(out))

		var clear surface.ClearFunc
		if !watchNoAck {
			clear = func(ctx context.Context, domain string) error {
				_, err := api.Clear(ctx, domain)
				return err
			}
		}

		opts := []surface.Option{surface.WithGrace(watchGrace)}
		if watchDomain != "" {
			opts = append(opts, surface.WithDomain(tracker.NormalizeDomain(watchDomain)))
		}
		countdown := surface.NewCountdown(renderer.Render, clear, opts...)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return followEvents(gctx, api, watchOrigin, countdown.Apply)
		})
		g.Go(func() error {
			<-gctx.Done()
			countdown.Stop()
			return nil
		})

		err = g.Wait()
		renderer.Close()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// followEvents keeps an event stream open until ctx is done. Connection
// failures are retried with exponential backoff; an origin rejection is final.
func followEvents(ctx context.Context, api *client.Client, origin string, apply func(notify.Message)) error {
	logger := observability.Component("watch")

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	operation := func() error {
		err := api.Events(ctx, origin, func(msg notify.Message) error {
			policy.Reset()
			apply(msg)
			return nil
		})
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	notifyRetry := func(err error, wait time.Duration) {
		logger.Warn("Event stream interrupted, reconnecting",
			zap.String("server", api.BaseURL()),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	return backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notifyRetry)
}

// lineRenderer prints countdown frames. On a terminal the line is redrawn
// in place; otherwise a line is written only when the text changes.
type lineRenderer struct {
	mu      sync.Mutex
	w       io.Writer
	inPlace bool
	last    string
	drawn   bool
}

func newLineRenderer(w io.Writer, inPlace bool) *lineRenderer {
	return &lineRenderer{w: w, inPlace: inPlace}
}

func (r *lineRenderer) Render(f surface.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := ""
	if f.State != surface.StateHidden {
		line = fmt.Sprintf("%s | %s", f.Text, f.Detail)
	}

	if r.inPlace {
		_, _ = fmt.Fprintf(r.w, "\r\033[K%s", line)
		r.drawn = line != ""
		return
	}

	if line == r.last {
		return
	}
	r.last = line
	if line == "" {
		line = "(no active rate limit)"
	}
	_, _ = fmt.Fprintln(r.w, line)
}

// Close ends an in-place line.
func (r *lineRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inPlace && r.drawn {
		_, _ = fmt.Fprintln(r.w)
		r.drawn = false
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchDomain, "domain", "", "Only follow this domain")
	watchCmd.Flags().StringVar(&watchOrigin, "origin", "", "Origin presented to the server allow-list")
	watchCmd.Flags().DurationVar(&watchGrace, "grace", surface.DefaultGrace, "How long \"Limit Reset!\" stays up before clearing")
	watchCmd.Flags().BoolVar(&watchNoAck, "no-clear", false, "Do not clear the domain on the server after a reset")
}
