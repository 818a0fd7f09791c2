package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"taskboard/internal/auth"
	"taskboard/internal/server"
	"taskboard/internal/store"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string
	var redisURL string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the task collection REST service",
		Long: strings.TrimSpace(`
Run the task collection service over the SQLite store (--db).

Session tokens are HS256 JWTs signed with TASKBOARD_JWT_SECRET, or with a key generated
once into <config-dir>/secret.key. Logout revokes tokens in Redis when --redis-url (or
TASKBOARD_REDIS_URL) is set, otherwise in memory.
`),
		Example: strings.TrimSpace(`
taskboard serve --addr :3000
taskboard serve --addr :3000 --redis-url redis://localhost:6379/0
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := app.serviceLogger(cmd)

			db, err := store.OpenCollection(ctx, app.settings.DBPath)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer db.Close()

			secret := []byte(envOr("TASKBOARD_JWT_SECRET", ""))
			if len(secret) == 0 {
				if secret, err = auth.LoadOrInitSecret(app.settings.Store.SecretPath()); err != nil {
					return writeErr(cmd, err)
				}
			}

			revoker, closeRevoker, err := openRevoker(ctx, firstNonEmpty(redisURL, os.Getenv("TASKBOARD_REDIS_URL")))
			if err != nil {
				return writeErr(cmd, err)
			}
			defer closeRevoker()

			srv, err := server.New(server.Options{
				DB:      db,
				Tokens:  auth.NewTokens(secret, auth.DefaultTokenTTL),
				Revoker: revoker,
				Logger:  logger,
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			logger.WithField("db", app.settings.DBPath).WithField("addr", addr).Info("collection service starting")
			if err := srv.Run(ctx, addr); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":3000", "Bind address (host:port or :port)")
	cmd.Flags().StringVar(&redisURL, "redis-url", "", "Redis URL for the token revocation list (env TASKBOARD_REDIS_URL)")
	return cmd
}

func openRevoker(ctx context.Context, url string) (auth.Revoker, func(), error) {
	if url == "" {
		return auth.NewMemoryRevoker(), func() {}, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("redis url: %w", err)
	}
	rc := redis.NewClient(opts)
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return auth.NewRedisRevoker(rc), func() { _ = rc.Close() }, nil
}
