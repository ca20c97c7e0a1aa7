// cmd/events.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/shiftclock/internal/availability"
	"github.com/aceteam-ai/shiftclock/internal/events"
)

var eventsRedis string

var eventsCmd = &cobra.Command{
	Use:   "events [job-id]",
	Short: "Follow session start, pause, resume and stop events",
	Long: `Prints lifecycle events as the service confirms them. Events are read from
the service's /v1/events websocket, or directly from Redis with --redis.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		zone, err := cfg.Location()
		if err != nil {
			return err
		}
		jobID := ""
		if len(args) == 1 {
			jobID = args[0]
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		bus := events.NewBus()
		bus.Subscribe(func(e events.Event) {
			at := e.At
			if at.IsZero() {
				at = e.Log.StartTime
			}
			line := fmt.Sprintf("%s  %-8s %s  log=%s  %s", at.In(zone).Format("15:04:05"), e.Type, e.JobID, e.Log.ID, availability.FormatClock(e.Log.TotalSeconds))
			switch e.Type {
			case events.Started, events.Resumed:
				goodColor.Println(line)
			case events.Paused:
				warnColor.Println(line)
			default:
				fmt.Println(line)
			}
		})

		if redisURL := eventsRedis; redisURL != "" {
			sub, err := events.NewRedisSubscriber(events.RedisSubscriberConfig{
				RedisURL: redisURL,
				JobID:    jobID,
				LogFn:    logFn,
			})
			if err != nil {
				return err
			}
			defer sub.Close()
			fmt.Printf("Following %s on %s (Ctrl+C to stop)\n", sub.Pattern(), redactDSN(redisURL))
			err = sub.Start(ctx, bus)
			return ignoreCanceled(err)
		}

		follower, err := events.NewWebsocketFollower(events.WebsocketFollowerConfig{
			BaseURL:   cfg.Server,
			APIKey:    cfg.APIKey,
			JobID:     jobID,
			Reconnect: true,
			DebugFunc: Debug,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Following %s (Ctrl+C to stop)\n", follower.URL())
		return ignoreCanceled(follower.Start(ctx, bus))
	},
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	eventsCmd.Flags().StringVar(&eventsRedis, "redis", "", "read events from this Redis URL instead of the service")
	rootCmd.AddCommand(eventsCmd)
}
