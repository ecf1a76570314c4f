package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mtahub/portal_backend/discordbot"
	"mtahub/portal_backend/inquiry"
	"mtahub/portal_backend/slacknotify"
	ss "mtahub/portal_backend/storage_service"
)

// ServeCmd runs the portal: HTTP API plus the Discord bot session. Role and
// channel ids default to the production guild's but are plain flags, so any
// environment can rewire them.
type ServeCmd struct {
	Addr string `help:"Address to listen on." default:":5000" env:"ADDR"`

	BotToken     string `help:"Discord bot token. Without it the bot stays offline and verification fails closed." env:"DISCORD_BOT_TOKEN"`
	GuildID      string `help:"Discord guild id to verify members against." env:"DISCORD_GUILD_ID"`
	ChannelID    string `help:"Channel applications are mirrored to." env:"DISCORD_CHANNEL_ID" default:"1336659124884209755"`
	ReviewerRole string `help:"Role allowed to accept/reject applications." env:"DISCORD_REVIEWER_ROLE" default:"1274038853102997565"`
	AdminRole    string `help:"Role granted on accepted admin applications." env:"DISCORD_ADMIN_ROLE" default:"1336657149765484654"`
	ScriptRole   string `help:"Role granted on accepted script applications." env:"DISCORD_SCRIPT_ROLE" default:"1336684394412507186"`
	HacksRole    string `help:"Role granted on accepted hacks applications." env:"DISCORD_HACKS_ROLE" default:"1321142625847345285"`
	RejectRole   string `help:"Role granted on rejected admin applications." env:"DISCORD_REJECT_ROLE" default:"1332389782541697099"`
	WebhookBase  string `help:"Portal base URL the bot reports decisions to." env:"WEBHOOK_BASE" default:"http://localhost:5000"`

	AllowUnverifiedFallback bool `help:"Let verification auto-succeed while the bot is offline. Testing only." env:"ALLOW_UNVERIFIED_FALLBACK"`

	AdminUsername       string        `help:"Admin panel username." env:"ADMIN_USERNAME" default:"admin"`
	AdminPassword       string        `help:"Admin panel password." env:"ADMIN_PASSWORD" default:"admin"`
	SessionTTL          time.Duration `help:"Admin session lifetime." default:"24h"`
	RequireAdminSession bool          `help:"Require a session cookie on admin endpoints." env:"REQUIRE_ADMIN_SESSION"`

	GeminiKey   string `help:"Gemini API key for inquiry analysis." env:"GEMINI_API_KEY"`
	GeminiModel string `help:"Gemini model for inquiry analysis." env:"GEMINI_MODEL" default:"gemini-2.5-flash"`

	SlackToken   string `help:"Slack bot token for relaying inquiry responses." env:"SLACK_BOT_TOKEN"`
	SlackChannel string `help:"Default Slack channel id." env:"SLACK_CHANNEL_ID"`
}

func (c *ServeCmd) Run(cctx *Context) error {
	log := cctx.Log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := ss.New()

	bot, err := discordbot.New(discordbot.Config{
		Token:          c.BotToken,
		GuildID:        c.GuildID,
		ChannelID:      c.ChannelID,
		ReviewerRoleID: c.ReviewerRole,
		RoleForType: map[ss.ApplicationType]string{
			ss.TypeAdmin:  c.AdminRole,
			ss.TypeScript: c.ScriptRole,
			ss.TypeHacks:  c.HacksRole,
		},
		RejectRoleID:            c.RejectRole,
		WebhookBase:             c.WebhookBase,
		AllowUnverifiedFallback: c.AllowUnverifiedFallback,
	}, log)
	if err != nil {
		return err
	}
	if c.BotToken == "" {
		log.Warn("no DISCORD_BOT_TOKEN, bot stays offline")
	} else if err := bot.Open(); err != nil {
		// The portal keeps serving without the bot, like it always has:
		// verification fails closed and notifications are skipped.
		log.Error("failed to open discord session", zap.Error(err))
	} else {
		defer bot.Close()
	}

	srv := &server{
		log:      log,
		store:    store,
		verifier: bot,
		notifier: bot,
		roleForType: map[ss.ApplicationType]string{
			ss.TypeAdmin:  c.AdminRole,
			ss.TypeScript: c.ScriptRole,
			ss.TypeHacks:  c.HacksRole,
		},
		rejectRoleID:   c.RejectRole,
		adminUsername:  c.AdminUsername,
		adminPassword:  c.AdminPassword,
		sessionTTL:     c.SessionTTL,
		requireSession: c.RequireAdminSession,
	}

	if c.GeminiKey != "" {
		analyzer, err := inquiry.NewAnalyzer(ctx, c.GeminiKey, c.GeminiModel, log)
		if err != nil {
			return err
		}
		srv.analyzer = analyzer
	}
	if c.SlackToken != "" && c.SlackChannel != "" {
		srv.relay = slacknotify.New(c.SlackToken, c.SlackChannel, log)
	}

	// Expired admin sessions are swept hourly for the process lifetime.
	go func() {
		t := time.NewTicker(time.Hour)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := store.SweepExpiredSessions(); n > 0 {
					log.Info("swept expired admin sessions", zap.Int("count", n))
				}
			}
		}
	}()

	httpSrv := &http.Server{Addr: c.Addr, Handler: srv.routes()}
	errc := make(chan error, 1)
	go func() {
		log.Info("portal listening", zap.String("addr", c.Addr))
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
