package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfgpkg "github.com/openland/openland-server-sub006/internal/config"
	"github.com/openland/openland-server-sub006/internal/feeds"
	"github.com/openland/openland-server-sub006/internal/kv"
	"github.com/openland/openland-server-sub006/internal/kv/tuple"
	"github.com/openland/openland-server-sub006/internal/mediator"
	"github.com/openland/openland-server-sub006/internal/runtime"
	pebblestore "github.com/openland/openland-server-sub006/internal/storage/pebble"
	"github.com/openland/openland-server-sub006/pkg/id"
	logpkg "github.com/openland/openland-server-sub006/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	// Respect FEEDD_LOG_LEVEL for all CLI output
	level := os.Getenv("FEEDD_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "feedd",
		Short: "Feedd event-feed CLI",
		Long:  "Feedd is an embedded ordered event-feed engine. This CLI manages feeds, subscribers and deliveries against a local data directory.",
	}
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	rootCmd.PersistentFlags().String("config", "", "Path to JSON config file")
	rootCmd.PersistentFlags().String("fsync", "always", "Fsync mode: always|interval|never")
	rootCmd.PersistentFlags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms (default 5)")

	// init
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			fmt.Println("initialized")
			return nil
		},
	}
	rootCmd.AddCommand(initCmd)

	rootCmd.AddCommand(newFeedCommand(logger))
	rootCmd.AddCommand(newSubscriberCommand(logger))
	rootCmd.AddCommand(newPostCommand(logger))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openRuntime(cmd *cobra.Command, logger logpkg.Logger) (*runtime.Runtime, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	cfgPath, _ := cmd.Flags().GetString("config")
	fsyncMode, _ := cmd.Flags().GetString("fsync")
	fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")

	mode := pebblestore.FsyncModeAlways
	switch fsyncMode {
	case "never":
		mode = pebblestore.FsyncModeNever
	case "interval":
		mode = pebblestore.FsyncModeInterval
	case "always":
		mode = pebblestore.FsyncModeAlways
	default:
		return nil, fmt.Errorf("invalid --fsync; use always|interval|never")
	}

	cfg := cfgpkg.Default()
	if cfgPath != "" {
		loaded, err := cfgpkg.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfgpkg.FromEnv(&cfg)

	if dataDir == "" {
		dataDir = cfgpkg.DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	return runtime.Open(runtime.Options{
		DataDir:       dataDir,
		Fsync:         mode,
		FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
		Config:        cfg,
		Logger:        logger,
	})
}

func parseID(s, what string) (id.ID, error) {
	v, err := id.Parse(s)
	if err != nil {
		return id.ID{}, fmt.Errorf("invalid %s id %q: %w", what, s, err)
	}
	return v, nil
}

func parseState(s string) (tuple.Versionstamp, error) {
	if s == "" {
		return tuple.Versionstamp{}, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return tuple.Versionstamp{}, fmt.Errorf("invalid state cursor: %w", err)
	}
	return tuple.VersionstampFromBytes(raw)
}

func printEvent(e feeds.Event) {
	fmt.Printf("feed=%s seq=%d id=%s kind=%s body=%q\n",
		e.Feed, e.Seq, hex.EncodeToString(e.ID.Bytes()), e.Kind, string(e.Body))
}

func newFeedCommand(logger logpkg.Logger) *cobra.Command {
	feedCmd := &cobra.Command{Use: "feed", Short: "Feed operations"}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			feed, err := rt.Mediator().CreateFeed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(feed)
			return nil
		},
	}
	feedCmd.AddCommand(createCmd)

	upgradeCmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Force a feed into jumbo mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			feedStr, _ := cmd.Flags().GetString("feed")
			feed, err := parseID(feedStr, "feed")
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.Mediator().UpgradeFeed(cmd.Context(), feed); err != nil {
				return err
			}
			fmt.Println("upgraded")
			return nil
		},
	}
	upgradeCmd.Flags().String("feed", "", "Feed id (hex)")
	feedCmd.AddCommand(upgradeCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show feed counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			feedStr, _ := cmd.Flags().GetString("feed")
			feed, err := parseID(feedStr, "feed")
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			stats, err := rt.Mediator().FeedStats(cmd.Context(), feed)
			if err != nil {
				return err
			}
			fmt.Printf("seq=%d subscribers=%d jumbo=%v\n", stats.Seq, stats.Subscribers, stats.Jumbo)
			return nil
		},
	}
	statsCmd.Flags().String("feed", "", "Feed id (hex)")
	feedCmd.AddCommand(statsCmd)

	updatesCmd := &cobra.Command{
		Use:   "updates",
		Short: "Read one page of a feed's stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			feedStr, _ := cmd.Flags().GetString("feed")
			afterSeq, _ := cmd.Flags().GetInt32("after-seq")
			limit, _ := cmd.Flags().GetInt("limit")
			onlyLatest, _ := cmd.Flags().GetBool("latest")
			filterExpr, _ := cmd.Flags().GetString("filter")

			feed, err := parseID(feedStr, "feed")
			if err != nil {
				return err
			}
			filter, err := feeds.CompileFilter(filterExpr)
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			opts := feeds.UpdatesOptions{AfterSeq: afterSeq, Limit: limit, Filter: filter}
			if onlyLatest {
				opts.Mode = feeds.UpdatesOnlyLatest
			}
			res, err := rt.Mediator().GetFeedUpdates(cmd.Context(), feed, opts)
			if err != nil {
				return err
			}
			for _, e := range res.Events {
				printEvent(e)
			}
			if res.HasMore {
				fmt.Println("(more)")
			}
			return nil
		},
	}
	updatesCmd.Flags().String("feed", "", "Feed id (hex)")
	updatesCmd.Flags().Int32("after-seq", 0, "Return events after this seq")
	updatesCmd.Flags().Int("limit", 0, "Max events per page (default 20)")
	updatesCmd.Flags().Bool("latest", false, "Read the newest page instead of the oldest")
	updatesCmd.Flags().String("filter", "", "CEL filter expression, e.g. 'seq > 5 && size < 1024'")
	feedCmd.AddCommand(updatesCmd)

	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow a feed's stream until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			feedStr, _ := cmd.Flags().GetString("feed")
			afterSeq, _ := cmd.Flags().GetInt32("after-seq")
			feed, err := parseID(feedStr, "feed")
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return tailFeed(ctx, rt, feed, afterSeq)
		},
	}
	tailCmd.Flags().String("feed", "", "Feed id (hex)")
	tailCmd.Flags().Int32("after-seq", 0, "Start after this seq (default: current head)")
	feedCmd.AddCommand(tailCmd)

	return feedCmd
}

// tailFeed drains pages after the cursor, then blocks on a head-pointer watch
// until new events land or the context is canceled.
func tailFeed(ctx context.Context, rt *runtime.Runtime, feed id.ID, afterSeq int32) error {
	var cursor tuple.Versionstamp
	if afterSeq == 0 {
		stats, err := rt.Mediator().FeedStats(ctx, feed)
		if err != nil {
			return err
		}
		if stats.Latest != nil {
			cursor = stats.Latest.Stamp
		}
	}
	for {
		for {
			res, err := rt.Mediator().GetFeedUpdates(ctx, feed, feeds.UpdatesOptions{
				After:    cursor,
				AfterSeq: afterSeq,
			})
			if err != nil {
				return err
			}
			for _, e := range res.Events {
				printEvent(e)
				cursor = e.ID
				afterSeq = 0
			}
			if !res.HasMore {
				break
			}
		}
		ch, cancel := rt.Store().Watch(feeds.LatestKey(feed))
		select {
		case <-ctx.Done():
			cancel()
			return nil
		case <-ch:
		}
	}
}

func newSubscriberCommand(logger logpkg.Logger) *cobra.Command {
	subCmd := &cobra.Command{Use: "subscriber", Short: "Subscriber operations"}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a subscriber",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			subscriber, err := rt.Mediator().CreateSubscriber(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(subscriber)
			return nil
		},
	}
	subCmd.AddCommand(createCmd)

	subscribeCmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Subscribe to a feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			subStr, _ := cmd.Flags().GetString("subscriber")
			feedStr, _ := cmd.Flags().GetString("feed")
			modeStr, _ := cmd.Flags().GetString("mode")

			subscriber, err := parseID(subStr, "subscriber")
			if err != nil {
				return err
			}
			feed, err := parseID(feedStr, "feed")
			if err != nil {
				return err
			}
			var mode feeds.SubscriptionMode
			switch modeStr {
			case "direct", "":
				mode = feeds.ModeDirect
			case "direct-strict":
				mode = feeds.ModeDirectStrict
			case "async":
				mode = feeds.ModeAsync
			default:
				return fmt.Errorf("invalid --mode; use direct|direct-strict|async")
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.Mediator().Subscribe(cmd.Context(), subscriber, feed, mode); err != nil {
				return err
			}
			fmt.Println("subscribed")
			return nil
		},
	}
	subscribeCmd.Flags().String("subscriber", "", "Subscriber id (hex)")
	subscribeCmd.Flags().String("feed", "", "Feed id (hex)")
	subscribeCmd.Flags().String("mode", "direct", "Delivery mode: direct|direct-strict|async")
	subCmd.AddCommand(subscribeCmd)

	unsubscribeCmd := &cobra.Command{
		Use:   "unsubscribe",
		Short: "Unsubscribe from a feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			subStr, _ := cmd.Flags().GetString("subscriber")
			feedStr, _ := cmd.Flags().GetString("feed")
			subscriber, err := parseID(subStr, "subscriber")
			if err != nil {
				return err
			}
			feed, err := parseID(feedStr, "feed")
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.Mediator().Unsubscribe(cmd.Context(), subscriber, feed); err != nil {
				return err
			}
			fmt.Println("unsubscribed")
			return nil
		},
	}
	unsubscribeCmd.Flags().String("subscriber", "", "Subscriber id (hex)")
	unsubscribeCmd.Flags().String("feed", "", "Feed id (hex)")
	subCmd.AddCommand(unsubscribeCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			subStr, _ := cmd.Flags().GetString("subscriber")
			subscriber, err := parseID(subStr, "subscriber")
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			var subs []feeds.Subscription
			err = rt.Store().RunTransaction(cmd.Context(), func(tx *kv.Tx) error {
				var err error
				subs, err = rt.Repo().ListSubscriptions(tx, subscriber)
				return err
			})
			if err != nil {
				return err
			}
			for _, s := range subs {
				fmt.Printf("feed=%s mode=%s jumbo=%v joined_at=%s\n",
					s.Feed, s.Mode, s.Jumbo, s.JoinedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	listCmd.Flags().String("subscriber", "", "Subscriber id (hex)")
	subCmd.AddCommand(listCmd)

	diffCmd := &cobra.Command{
		Use:   "diff",
		Short: "Run a catch-up read across all subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			subStr, _ := cmd.Flags().GetString("subscriber")
			stateStr, _ := cmd.Flags().GetString("state")
			batch, _ := cmd.Flags().GetInt("batch")
			limit, _ := cmd.Flags().GetInt("limit")

			subscriber, err := parseID(subStr, "subscriber")
			if err != nil {
				return err
			}
			state, err := parseState(stateStr)
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			diff, next, err := rt.Mediator().GetDifference(cmd.Context(), subscriber, state, feeds.DifferenceOptions{
				BatchSize: batch,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			for _, e := range diff.Events {
				printEvent(e)
			}
			for _, f := range diff.Partial {
				fmt.Printf("partial feed=%s\n", f)
			}
			fmt.Printf("completed=%v next_state=%s\n", diff.Completed, hex.EncodeToString(next.Bytes()))
			return nil
		},
	}
	diffCmd.Flags().String("subscriber", "", "Subscriber id (hex)")
	diffCmd.Flags().String("state", "", "Resume cursor from a previous diff (hex)")
	diffCmd.Flags().Int("batch", 0, "Per-feed batch size (default 20)")
	diffCmd.Flags().Int("limit", 0, "Merged result limit (default 100)")
	subCmd.AddCommand(diffCmd)

	keepaliveCmd := &cobra.Command{
		Use:   "keepalive",
		Short: "Mark the subscriber online for the presence TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			subStr, _ := cmd.Flags().GetString("subscriber")
			subscriber, err := parseID(subStr, "subscriber")
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.Mediator().KeepAlive(cmd.Context(), subscriber); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	keepaliveCmd.Flags().String("subscriber", "", "Subscriber id (hex)")
	subCmd.AddCommand(keepaliveCmd)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether updates are pending for a state cursor",
		RunE: func(cmd *cobra.Command, args []string) error {
			subStr, _ := cmd.Flags().GetString("subscriber")
			stateStr, _ := cmd.Flags().GetString("state")
			subscriber, err := parseID(subStr, "subscriber")
			if err != nil {
				return err
			}
			state, err := parseState(stateStr)
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			avail, err := rt.Mediator().IsUpdateAvailable(cmd.Context(), subscriber, state)
			if err != nil {
				return err
			}
			fmt.Println(avail)
			return nil
		},
	}
	checkCmd.Flags().String("subscriber", "", "Subscriber id (hex)")
	checkCmd.Flags().String("state", "", "State cursor (hex)")
	subCmd.AddCommand(checkCmd)

	return subCmd
}

func newPostCommand(logger logpkg.Logger) *cobra.Command {
	postCmd := &cobra.Command{
		Use:   "post",
		Short: "Append an event to a feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			feedStr, _ := cmd.Flags().GetString("feed")
			body, _ := cmd.Flags().GetString("body")
			repeatKey, _ := cmd.Flags().GetString("repeat-key")

			feed, err := parseID(feedStr, "feed")
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			receipt, err := rt.Mediator().Post(cmd.Context(), feed, []byte(body), mediator.PostOptions{RepeatKey: repeatKey})
			if err != nil {
				return err
			}
			fmt.Printf("seq=%d id=%s\n", receipt.Seq, hex.EncodeToString(receipt.Stamp.Bytes()))
			return nil
		},
	}
	postCmd.Flags().String("feed", "", "Feed id (hex)")
	postCmd.Flags().String("body", "", "Event payload")
	postCmd.Flags().String("repeat-key", "", "Collapse key; a later post with the same key replaces this one")
	return postCmd
}
