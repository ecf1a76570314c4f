// Package discordbot wraps the portal's long-lived Discord gateway session:
// guild membership verification, role grants, and mirroring submitted
// applications into the review channel.
package discordbot

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	ss "mtahub/portal_backend/storage_service"
)

var (
	// ErrNotReady means the gateway handshake has not completed yet.
	ErrNotReady = errors.New("discord session is not ready")
	// ErrNoGuild means no guild id was configured.
	ErrNoGuild = errors.New("no guild configured")
	// ErrMemberNotFound means the handle matched nobody in the guild.
	ErrMemberNotFound = errors.New("member not found in guild")
)

// Config carries everything the bot needs. Role and channel ids live here
// rather than in code so deployments can rewire them per environment.
type Config struct {
	Token          string
	GuildID        string
	ChannelID      string
	ReviewerRoleID string
	RoleForType    map[ss.ApplicationType]string
	RejectRoleID   string

	// WebhookBase is the portal base URL the bot reports decisions to.
	WebhookBase string

	// AllowUnverifiedFallback lets verification auto-succeed with a
	// placeholder identity while the session is not ready. Off by
	// default: production fails closed.
	AllowUnverifiedFallback bool
}

// Verification is a resolved guild member identity.
type Verification struct {
	UserID   string
	Username string
}

// Service owns the gateway session. Construct with New, then Open.
type Service struct {
	cfg     Config
	log     *zap.Logger
	session *discordgo.Session
	ready   atomic.Bool
}

// New creates the session and registers the gateway handlers. The session is
// not connected until Open is called.
func New(cfg Config, log *zap.Logger) (*Service, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	s := &Service{cfg: cfg, log: log, session: session}
	session.AddHandler(s.onReady)
	session.AddHandler(s.onInteraction)
	return s, nil
}

// Open connects to the gateway.
func (s *Service) Open() error {
	return s.session.Open()
}

// Close tears down the gateway connection.
func (s *Service) Close() error {
	return s.session.Close()
}

func (s *Service) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	s.ready.Store(true)
	s.log.Info("discord session established",
		zap.String("user", r.User.Username))
}

// VerifyUser resolves a human-entered handle to a guild member. The handle
// can be the bare username, the old tag form ("name#1234"), or the member's
// guild nickname; the first member matching any of those wins.
func (s *Service) VerifyUser(ctx context.Context, handle string) (Verification, error) {
	if !s.ready.Load() {
		if s.cfg.AllowUnverifiedFallback {
			s.log.Warn("discord session not ready, allowing verification by fallback",
				zap.String("handle", handle))
			return Verification{UserID: "test-user-id", Username: handle}, nil
		}
		return Verification{}, ErrNotReady
	}
	if s.cfg.GuildID == "" {
		return Verification{}, ErrNoGuild
	}

	// Discord caps the member list page size; paginate.
	var after string
	for {
		select {
		case <-ctx.Done():
			return Verification{}, ctx.Err()
		default:
		}

		members, err := s.session.GuildMembers(s.cfg.GuildID, after, 1000, discordgo.WithContext(ctx))
		if err != nil {
			return Verification{}, fmt.Errorf("fetch guild members: %w", err)
		}
		if len(members) == 0 {
			break
		}
		for _, m := range members {
			if matchMember(m, handle) {
				return Verification{UserID: m.User.ID, Username: m.User.Username}, nil
			}
			after = m.User.ID
		}
		if len(members) < 1000 {
			break
		}
	}
	return Verification{}, ErrMemberNotFound
}

// matchMember checks handle against username, tag and nickname, in that
// order. Matching is case-sensitive: Discord usernames are.
func matchMember(m *discordgo.Member, handle string) bool {
	if m == nil || m.User == nil || handle == "" {
		return false
	}
	if m.User.Username == handle {
		return true
	}
	if m.User.Discriminator != "" && m.User.Discriminator != "0" &&
		m.User.Username+"#"+m.User.Discriminator == handle {
		return true
	}
	return m.Nick != "" && m.Nick == handle
}

// AssignRole grants a role to a guild member. Single attempt; the caller
// decides whether failure is fatal.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) error {
	if !s.ready.Load() {
		return ErrNotReady
	}
	if s.cfg.GuildID == "" {
		return ErrNoGuild
	}
	if err := s.session.GuildMemberRoleAdd(s.cfg.GuildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("assign role %s to %s: %w", roleID, userID, err)
	}
	return nil
}
