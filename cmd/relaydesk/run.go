package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relaydesk/relaydesk/internal/adminui"
	"github.com/relaydesk/relaydesk/internal/db"
	"github.com/relaydesk/relaydesk/internal/dispatch"
	"github.com/relaydesk/relaydesk/internal/gate"
	"github.com/relaydesk/relaydesk/internal/relay"
	"github.com/relaydesk/relaydesk/internal/settings"
	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/telegram"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the Telegram Bot API and relay messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(flagOrViperString(cmd, "bot-token", "telegram.bot_token"))
			if token == "" {
				return fmt.Errorf("missing telegram.bot_token (set via --bot-token or RELAYDESK_TELEGRAM_BOT_TOKEN)")
			}
			groupID := flagOrViperInt64(cmd, "group-id", "telegram.group_id")
			if groupID == 0 {
				return fmt.Errorf("missing telegram.group_id (the support forum group)")
			}

			var adminIDs []int64
			for _, s := range flagOrViperStringArray(cmd, "admin-id", "telegram.admin_ids") {
				s = strings.TrimSpace(s)
				if s == "" {
					continue
				}
				id, err := strconv.ParseInt(s, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid telegram.admin_ids entry %q: %w", s, err)
				}
				adminIDs = append(adminIDs, id)
			}
			if len(adminIDs) == 0 {
				return fmt.Errorf("missing telegram.admin_ids")
			}

			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			dbCfg := db.DefaultConfig()
			dbCfg.Driver = viper.GetString("db.driver")
			dbCfg.DSN = viper.GetString("db.dsn")
			dbCfg.SQLite.BusyTimeoutMs = viper.GetInt("db.sqlite.busy_timeout_ms")
			dbCfg.SQLite.WAL = viper.GetBool("db.sqlite.wal")
			dbCfg.SQLite.ForeignKeys = viper.GetBool("db.sqlite.foreign_keys")

			gdb, err := db.Open(dbCfg)
			if err != nil {
				return err
			}

			st := store.New(gdb)
			if viper.GetBool("db.auto_migrate") {
				if err := st.Ensure(context.Background()); err != nil {
					return err
				}
			}

			cfg := settings.NewResolver(st)
			rules := settings.NewRules(st)

			if seedPath := strings.TrimSpace(viper.GetString("rules.seed_file")); seedPath != "" {
				seed, err := settings.LoadSeed(seedPath)
				if err != nil {
					return err
				}
				n, err := rules.Apply(context.Background(), seed)
				if err != nil {
					return err
				}
				if n > 0 {
					logger.Info("rules_seeded", "path", seedPath, "count", n)
				}
			}

			baseURL := flagOrViperString(cmd, "base-url", "telegram.base_url")
			httpClient := &http.Client{Timeout: 60 * time.Second}
			api := telegram.NewClient(httpClient, baseURL, token)

			me, err := api.GetMe(context.Background())
			if err != nil {
				return err
			}

			pollTimeout := flagOrViperDuration(cmd, "poll-timeout", "telegram.poll_timeout")
			eventTimeout := viper.GetDuration("telegram.event_timeout")

			pipeline := gate.NewPipeline(st, cfg, rules, logger)
			engine := relay.NewEngine(api, st, groupID, logger)
			admin := adminui.NewManager(api, cfg, rules, adminui.NewSessions(), logger)
			d := dispatch.New(api, st, pipeline, engine, admin, dispatch.Options{
				GroupID:      groupID,
				AdminIDs:     adminIDs,
				EventTimeout: eventTimeout,
			}, logger)

			logger.Info("relaydesk_start",
				"bot_username", me.Username,
				"bot_id", me.ID,
				"group_id", groupID,
				"admins", len(adminIDs),
				"poll_timeout", pollTimeout.String(),
			)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var offset int64
			for {
				updates, nextOffset, err := api.GetUpdates(ctx, offset, pollTimeout)
				if err != nil {
					if ctx.Err() != nil {
						logger.Info("relaydesk_stop")
						return nil
					}
					logger.Warn("telegram_get_updates_error", "error", err.Error())
					time.Sleep(1 * time.Second)
					continue
				}
				offset = nextOffset

				for _, u := range updates {
					d.Dispatch(u)
				}
			}
		},
	}

	cmd.Flags().String("bot-token", "", "Telegram bot token.")
	cmd.Flags().String("base-url", "https://api.telegram.org", "Telegram API base URL.")
	cmd.Flags().Int64("group-id", 0, "Chat id of the support forum group.")
	cmd.Flags().StringArray("admin-id", nil, "Admin user id(s).")
	cmd.Flags().Duration("poll-timeout", 30*time.Second, "Long polling timeout for getUpdates.")

	return cmd
}
