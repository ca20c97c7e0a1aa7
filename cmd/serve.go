// cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/shiftclock/internal/config"
	"github.com/aceteam-ai/shiftclock/internal/events"
	"github.com/aceteam-ai/shiftclock/internal/ledger"
	"github.com/aceteam-ai/shiftclock/internal/server"
)

var (
	serveAddr    string
	serveDB      string
	serveRedis   string
	serveCatalog string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference time log service",
	Long: `Serves the time log API backed by a SQLite file or PostgreSQL database.

Jobs and shifts are read from a YAML catalog. When a Redis URL is configured,
every transition is published to timelog:events:{job} and completed sessions
are appended to the timelog:completed:stream stream.`,
	Example: `  # SQLite under ~/.shiftclock
  shiftclock serve

  # PostgreSQL with Redis fan-out
  shiftclock serve --db postgres://user:pass@db/shiftclock --redis redis://localhost:6379`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sc := cfg.Serve
		if serveAddr != "" {
			sc.Addr = serveAddr
		}
		if serveDB != "" {
			sc.DatabaseURL = serveDB
		}
		if serveRedis != "" {
			sc.RedisURL = serveRedis
		}
		if serveCatalog != "" {
			sc.Catalog = serveCatalog
		}

		fmt.Println("--- Starting shiftclock service ---")

		catalog, err := config.LoadCatalog(sc.Catalog)
		if err != nil {
			return err
		}
		fmt.Printf("   - Catalog: %s (%d jobs)\n", sc.Catalog, len(catalog.Jobs))

		if !strings.Contains(sc.DatabaseURL, "://") {
			if err := os.MkdirAll(filepath.Dir(sc.DatabaseURL), 0700); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		store, err := ledger.OpenStore(sc.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Printf("   - Database: %s\n", redactDSN(sc.DatabaseURL))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		bus := events.NewBus()
		hub := server.NewHub(Debug)
		bus.Subscribe(func(e events.Event) {
			Debug("event: %s job=%s log=%s total=%ds", e.Type, e.JobID, e.Log.ID, e.Log.TotalSeconds)
			hub.Publish(ctx, e)
		})
		publishers := events.Multi{bus}

		var redisPub *events.RedisPublisher
		if sc.RedisURL != "" {
			redisPub, err = events.NewRedisPublisher(events.RedisPublisherConfig{
				RedisURL:  sc.RedisURL,
				DebugFunc: Debug,
			})
			if err != nil {
				return err
			}
			defer redisPub.Close()
			if err := redisPub.Ping(ctx); err != nil {
				return err
			}
			publishers = append(publishers, redisPub)
			fmt.Printf("   - Redis: %s (stream %s)\n", redactDSN(sc.RedisURL), redisPub.StreamName())
		}

		led, err := ledger.New(ledger.Config{
			Store:     store,
			Jobs:      catalog,
			Publisher: publishers,
			LogFn:     logFn,
		})
		if err != nil {
			return err
		}

		var syncer *ledger.Syncer
		if redisPub != nil {
			syncer = ledger.NewSyncer(ledger.SyncerConfig{
				Store:     store,
				PublishFn: redisPub.AppendCompleted,
				Interval:  sc.SyncInterval,
				LogFn:     logFn,
			})
			go syncer.Start(ctx)
			fmt.Printf("   - Completed-log sync every %s\n", sc.SyncInterval)
		}

		srvCfg := server.Config{
			Addr:           sc.Addr,
			Version:        Version,
			Logs:           led,
			Jobs:           catalog,
			Hub:            hub,
			APIKeys:        sc.APIKeys,
			RateLimitRPS:   sc.RateLimitRPS,
			RateLimitBurst: sc.RateLimitBurst,
			LogFn:          logFn,
		}
		if syncer != nil {
			srvCfg.Sync = syncer
		}
		srv, err := server.New(srvCfg)
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			srv.Close()
			return err
		}

		if len(sc.APIKeys) == 0 {
			warnColor.Println("   - Authentication disabled (no serve.api_keys configured)")
		}
		goodColor.Printf("   - ✅ Listening on %s\n", srv.Addr())
		fmt.Println()
		fmt.Println("Press Ctrl+C to stop the service")

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs

		fmt.Println("\n--- Shutting down ---")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "   - Warning: shutdown error: %v\n", err)
		}
		if syncer != nil {
			h := syncer.Health()
			fmt.Printf("   - Delivered %d completed sessions downstream\n", h.Delivered)
			if h.LastError != "" {
				warnColor.Printf("   - Last sync error: %s\n", h.LastError)
			}
		}
		fmt.Println("   - ✅ Service stopped")
		return nil
	},
}

// redactDSN hides credentials in connection URLs
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return dsn
	}
	return scheme + "://***@" + rest[at+1:]
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default :8787)")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "SQLite path or postgres:// URL (default ~/.shiftclock/ledger.db)")
	serveCmd.Flags().StringVar(&serveRedis, "redis", "", "Redis URL for event fan-out (optional)")
	serveCmd.Flags().StringVar(&serveCatalog, "catalog", "", "job catalog YAML (default ~/.shiftclock/jobs.yaml)")
}
