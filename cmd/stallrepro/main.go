// Command stallrepro reproduces live-listener delivery stalls under
// throttled network conditions.
//
// It seeds a known set of keys, subscribes a buffered listener to a Redis
// Pub/Sub channel, keeps publishing probe documents, and waits for the
// persisted probes to arrive, logging wall-clock and elapsed timestamps
// around every phase. Throttle or drop the connection to the Redis host
// while it runs and correlate the stall with the logged timeline.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xlog/adapter/zerolog"

	"github.com/trickstertwo/xwait"
	"github.com/trickstertwo/xwait/adapter/redissub"
)

// Options holds all flags for the repro run.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int

	Channel  string
	SeedDocs int
	Rounds   int
	Interval time.Duration
	Timeout  time.Duration
	Probe    time.Duration
	Verbose  bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "stallrepro",
		Short: "Reproduce live-listener delivery stalls",
		Long: "stallrepro seeds a keyspace, attaches a buffered pull listener to a\n" +
			"Redis Pub/Sub channel and waits for persisted probe events, logging\n" +
			"timestamps throughout so stalls caused by manually imposed network\n" +
			"conditions show up in the timeline.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:6379", "redis address host:port")
	cmd.Flags().StringVar(&opts.Username, "username", "", "redis username")
	cmd.Flags().StringVar(&opts.Password, "password", "", "redis password")
	cmd.Flags().IntVar(&opts.DB, "db", 0, "redis database")
	cmd.Flags().StringVar(&opts.Channel, "channel", "stallrepro", "pub/sub channel to listen on")
	cmd.Flags().IntVar(&opts.SeedDocs, "seed", 5, "number of keys to seed before listening")
	cmd.Flags().IntVar(&opts.Rounds, "rounds", 10, "number of persisted probes to wait for")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 2*time.Second, "probe publish interval")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "overall deadline, 0 waits forever")
	cmd.Flags().DurationVar(&opts.Probe, "health-probe", 0, "connection health probe interval, 0 disables")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log every raw delivery")

	return cmd
}

// probeDoc is the payload of one probe write. A probe is published once with
// Persisted=false before the backing write and once with Persisted=true
// after it, mirroring a pending-then-committed snapshot pair.
type probeDoc struct {
	Run       string `json:"run"`
	Seq       int    `json:"seq"`
	Persisted bool   `json:"persisted"`
	WrittenAt int64  `json:"written_at_ns"`
}

func run(ctx context.Context, opts *Options) error {
	minLevel := xlog.LevelInfo
	if opts.Verbose {
		minLevel = xlog.LevelDebug
	}
	logger := zerolog.Use(zerolog.Config{
		MinLevel: minLevel,
		Console:  true,
	}).With(xlog.Str("app", "stallrepro"))

	clock := xclock.Default()
	runID := uuid.NewString()
	started := clock.Now()

	logger.Info().
		Str("run", runID).
		Str("addr", opts.Addr).
		Str("channel", opts.Channel).
		Msg("starting")

	src := xwait.NewSource()
	defer src.Cancel()

	// Every redis operation aborts once the run is cancelled.
	ctx, cancelCtx := context.WithCancel(ctx)
	defer cancelCtx()
	src.Token().OnCancel(cancelCtx)

	// Ctrl+C and an optional overall deadline both cancel through the one
	// source; the listener's pending wait fails with ErrCancelled.
	go func() {
		sigC := make(chan os.Signal, 1)
		signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigC:
			logger.Warn().Dur("elapsed", clock.Since(started)).Msg("signal received, cancelling")
			src.Cancel()
		case <-src.Token().Done():
		}
	}()
	if opts.Timeout > 0 {
		defer src.CancelAfter(opts.Timeout)()
	}

	source, err := redissub.NewSource(redissub.Config{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		PingTimeout:  2 * time.Second,
		PingInterval: opts.Probe,
	}, redissub.WithLogger(logger), redissub.WithClock(clock))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = source.Close() }()

	if err := seed(ctx, source, opts, runID, logger, clock); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	listener := xwait.NewListener[redissub.Event](src.Token())
	var obs xwait.Observer[redissub.Event] = listener
	if opts.Verbose {
		obs = xwait.LoggedObserver[redissub.Event]{Inner: listener, Logger: logger, Name: opts.Channel}
	}

	unsub, err := source.Subscribe(ctx, obs, opts.Channel)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer unsub()
	src.Token().OnCancel(unsub)

	logger.Info().Dur("elapsed", clock.Since(started)).Msg("listener attached")

	go publishProbes(ctx, source, opts, runID, logger, clock, src.Token())

	match := func(e redissub.Event) bool {
		return gjson.GetBytes(e.Payload, "run").String() == runID &&
			gjson.GetBytes(e.Payload, "persisted").Bool()
	}

	for round := 1; round <= opts.Rounds; round++ {
		waitStart := clock.Now()
		logger.Info().Int("round", round).Msg("waiting for persisted probe")

		evt, err := listener.WaitFor(match)
		if err != nil {
			waited := clock.Since(waitStart)
			switch {
			case errors.Is(err, xwait.ErrCancelled):
				logger.Warn().Int("round", round).Dur("waited", waited).Msg("wait cancelled")
			case errors.Is(err, xwait.ErrCompleted):
				logger.Warn().Int("round", round).Dur("waited", waited).Msg("source completed before probe arrived")
			default:
				logger.Error().Int("round", round).Dur("waited", waited).Err(err).Msg("upstream error")
			}
			return err
		}

		seq := int(gjson.GetBytes(evt.Payload, "seq").Int())
		writtenAt := time.Unix(0, gjson.GetBytes(evt.Payload, "written_at_ns").Int())
		logger.Info().
			Int("round", round).
			Int("seq", seq).
			Dur("waited", clock.Since(waitStart)).
			Dur("write_to_receive", evt.ReceivedAt.Sub(writtenAt)).
			Msg("persisted probe received")
	}

	logger.Info().Dur("elapsed", clock.Since(started)).Int("rounds", opts.Rounds).Msg("all probes received")
	return nil
}

// seed writes the known key set, retrying each write so a briefly flaky
// connection does not abort the run before the interesting part.
func seed(ctx context.Context, source *redissub.Source, opts *Options, runID string, logger *xlog.Logger, clock xclock.Clock) error {
	client := source.Client()
	start := clock.Now()

	for i := 0; i < opts.SeedDocs; i++ {
		key := fmt.Sprintf("stallrepro:%s:doc-%d", runID, i)
		err := retry.Do(
			func() error {
				return client.Set(ctx, key, time.Now().UnixNano(), time.Hour).Err()
			},
			retry.Attempts(5),
			retry.Delay(200*time.Millisecond),
			retry.Context(ctx),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			return err
		}
	}

	logger.Info().Int("docs", opts.SeedDocs).Dur("took", clock.Since(start)).Msg("seed complete")
	return nil
}

// publishProbes emits one pending and one persisted probe per interval until
// the run is cancelled. The persisted probe follows a real write so the
// payload timeline matches what a live-query client would observe.
func publishProbes(ctx context.Context, source *redissub.Source, opts *Options, runID string, logger *xlog.Logger, clock xclock.Clock, token *xwait.Token) {
	client := source.Client()
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	publish := func(doc probeDoc) {
		payload, err := json.Marshal(doc)
		if err != nil {
			logger.Error().Err(err).Msg("encode probe")
			return
		}
		if err := client.Publish(ctx, opts.Channel, payload).Err(); err != nil && ctx.Err() == nil {
			logger.Warn().Int("seq", doc.Seq).Err(err).Msg("publish probe failed")
		}
	}

	for seq := 0; ; seq++ {
		select {
		case <-token.Done():
			return
		case <-ticker.C:
		}

		now := clock.Now()
		publish(probeDoc{Run: runID, Seq: seq, Persisted: false, WrittenAt: now.UnixNano()})

		key := fmt.Sprintf("stallrepro:%s:probe-%d", runID, seq)
		if err := client.Set(ctx, key, now.UnixNano(), time.Hour).Err(); err != nil {
			if ctx.Err() == nil {
				logger.Warn().Int("seq", seq).Err(err).Msg("probe write failed")
			}
			continue
		}
		publish(probeDoc{Run: runID, Seq: seq, Persisted: true, WrittenAt: now.UnixNano()})
	}
}
