package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"

	redisadapter "github.com/target/mmk-portal/internal/adapters/redis"
	"github.com/target/mmk-portal/internal/bootstrap"
	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	"github.com/target/mmk-portal/internal/service/callback"
)

const (
	commandTimeout = 2 * time.Minute
	scanBatch      = 100
)

var errConfirmationRequired = errors.New("refusing to delete without -yes (use -dry-run to preview)")

type listSessionsOptions struct {
	Limit int
}

type revokeSessionOptions struct {
	SessionID string
	Yes       bool
}

type clearGuardOptions struct {
	IncludeThrottle bool
	DryRun          bool
	Yes             bool
}

func parseListSessionsFlags(args []string) (listSessionsOptions, error) {
	var opts listSessionsOptions
	fs := flag.NewFlagSet("list-sessions", flag.ContinueOnError)
	fs.IntVar(&opts.Limit, "limit", 50, "maximum number of sessions to print (0 for all)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.Limit < 0 {
		return opts, errors.New("-limit must be >= 0")
	}
	return opts, nil
}

func parseRevokeSessionFlags(args []string) (revokeSessionOptions, error) {
	var opts revokeSessionOptions
	fs := flag.NewFlagSet("revoke-session", flag.ContinueOnError)
	fs.StringVar(&opts.SessionID, "id", "", "session id (value of the session cookie)")
	fs.BoolVar(&opts.Yes, "yes", false, "confirm deletion")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.SessionID = strings.TrimSpace(opts.SessionID)
	if opts.SessionID == "" {
		return opts, errors.New("-id is required")
	}
	return opts, nil
}

func parseClearGuardFlags(args []string) (clearGuardOptions, error) {
	var opts clearGuardOptions
	fs := flag.NewFlagSet("clear-guard-keys", flag.ContinueOnError)
	fs.BoolVar(&opts.IncludeThrottle, "throttle", false, "also clear incident throttle keys")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "print the keys without deleting them")
	fs.BoolVar(&opts.Yes, "yes", false, "confirm deletion")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

// withRedis runs fn with a connected client and closes it afterwards.
func withRedis(cmdCtx *commandContext, fn func(ctx context.Context, client redis.UniversalClient) error) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, commandTimeout)
	defer cancel()

	client, err := cmdCtx.Redis(ctx)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()
	return fn(ctx, client)
}

func runListSessions(cmdCtx *commandContext, args []string) error {
	opts, err := parseListSessionsFlags(args)
	if err != nil {
		return err
	}
	prefix := cmdCtx.Config.Session.KeyPrefix
	return withRedis(cmdCtx, func(ctx context.Context, client redis.UniversalClient) error {
		tw := tabwriter.NewWriter(cmdCtx.Out, 0, 4, 2, ' ', 0)
		if err := writeln(tw, "SESSION\tUSER\tROLE\tTTL"); err != nil {
			return err
		}
		total := 0
		scanErr := scanKeys(ctx, client, prefix+"*", func(key string) (bool, error) {
			total++
			row, rowErr := describeSession(ctx, client, key, prefix)
			if rowErr != nil {
				return false, rowErr
			}
			if err := writeln(tw, row); err != nil {
				return false, err
			}
			return opts.Limit == 0 || total < opts.Limit, nil
		})
		if scanErr != nil {
			return scanErr
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		return writef(cmdCtx.Out, "\nSessions shown: %d\n", total)
	})
}

func describeSession(ctx context.Context, client redis.UniversalClient, key, prefix string) (string, error) {
	sessionID := strings.TrimPrefix(key, prefix)
	ttl, err := client.TTL(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("ttl %s: %w", key, err)
	}

	user, role := "-", "-"
	raw, err := client.HGet(ctx, key, callback.StorageKeyUser).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return "", fmt.Errorf("hget %s: %w", key, err)
	default:
		var identity domainauth.Identity
		if json.Unmarshal([]byte(raw), &identity) == nil {
			user = fallback(identity.Email, identity.ID)
			role = string(identity.Role)
		}
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s", sessionID, user, role, formatTTL(ttl)), nil
}

func runRevokeSession(cmdCtx *commandContext, args []string) error {
	opts, err := parseRevokeSessionFlags(args)
	if err != nil {
		return err
	}
	if !opts.Yes {
		return errConfirmationRequired
	}
	return withRedis(cmdCtx, func(ctx context.Context, client redis.UniversalClient) error {
		store := redisadapter.NewSessionStoreWithPrefix(client, cmdCtx.Config.Session.KeyPrefix, cmdCtx.Config.Session.TTL)
		if err := store.Destroy(ctx, opts.SessionID); err != nil {
			return err
		}
		cmdCtx.Logger.Info("session revoked", "session_id", opts.SessionID)
		return writef(cmdCtx.Out, "revoked session %s\n", opts.SessionID)
	})
}

func guardPatterns(includeThrottle bool) []string {
	patterns := []string{redisadapter.GuardKeyPrefix + "*"}
	if includeThrottle {
		patterns = append(patterns, bootstrap.IncidentThrottlePrefix+"*")
	}
	return patterns
}

func runListGuardKeys(cmdCtx *commandContext, _ []string) error {
	return withRedis(cmdCtx, func(ctx context.Context, client redis.UniversalClient) error {
		total := 0
		for _, pattern := range guardPatterns(true) {
			if err := writef(cmdCtx.Out, "\n%s\n", pattern); err != nil {
				return err
			}
			err := scanKeys(ctx, client, pattern, func(key string) (bool, error) {
				total++
				ttl, ttlErr := client.TTL(ctx, key).Result()
				if ttlErr != nil {
					cmdCtx.Logger.ErrorContext(ctx, "failed to fetch TTL", "key", key, "error", ttlErr)
					return true, writef(cmdCtx.Out, "  %s (TTL: error: %v)\n", key, ttlErr)
				}
				return true, writef(cmdCtx.Out, "  %s (TTL: %s)\n", key, formatTTL(ttl))
			})
			if err != nil {
				return err
			}
		}
		if total == 0 {
			return writeln(cmdCtx.Out, "(no keys found)")
		}
		return writef(cmdCtx.Out, "\nTotal keys: %d\n", total)
	})
}

func runClearGuardKeys(cmdCtx *commandContext, args []string) error {
	opts, err := parseClearGuardFlags(args)
	if err != nil {
		return err
	}
	if !opts.DryRun && !opts.Yes {
		return errConfirmationRequired
	}
	return withRedis(cmdCtx, func(ctx context.Context, client redis.UniversalClient) error {
		deleted, err := clearKeys(ctx, clearKeysRequest{
			Client:   client,
			Patterns: guardPatterns(opts.IncludeThrottle),
			DryRun:   opts.DryRun,
			Out:      cmdCtx.Out,
		})
		if err != nil {
			return err
		}
		cmdCtx.Logger.Info("clear guard keys complete", "keys", deleted, "dry_run", opts.DryRun)
		return nil
	})
}

type clearKeysRequest struct {
	Client   redis.UniversalClient
	Patterns []string
	DryRun   bool
	Out      io.Writer
}

func clearKeys(ctx context.Context, req clearKeysRequest) (int, error) {
	var keys []string
	for _, pattern := range req.Patterns {
		err := scanKeys(ctx, req.Client, pattern, func(key string) (bool, error) {
			keys = append(keys, key)
			return true, nil
		})
		if err != nil {
			return 0, err
		}
	}
	verb := "deleted"
	if req.DryRun {
		verb = "would delete"
	}
	for _, key := range keys {
		if !req.DryRun {
			if err := req.Client.Del(ctx, key).Err(); err != nil {
				return 0, fmt.Errorf("redis del %s: %w", key, err)
			}
		}
		if err := writef(req.Out, "%s %s\n", verb, key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// scanKeys calls fn for each key matching pattern until fn returns false.
func scanKeys(ctx context.Context, client redis.UniversalClient, pattern string, fn func(key string) (bool, error)) error {
	iter := client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		more, err := fn(iter.Val())
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

func formatTTL(ttl time.Duration) string {
	switch {
	case ttl == -1:
		return "no expiry"
	case ttl < 0:
		return "expired"
	default:
		return ttl.Round(time.Second).String()
	}
}

func fallback(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "-"
}
