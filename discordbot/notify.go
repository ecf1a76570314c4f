package discordbot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/carlmjohnson/requests"
	"go.uber.org/zap"

	ss "mtahub/portal_backend/storage_service"
)

// embedFieldLimit is Discord's per-field value cap.
const embedFieldLimit = 1024

const (
	colorAccepted = 0x57F287
	colorRejected = 0xED4245
)

var typeTitles = map[ss.ApplicationType]string{
	ss.TypeAdmin:  "الإدارة",
	ss.TypeScript: "نشر السكربتات",
	ss.TypeHacks:  "نشر الهاكات",
}

var typeColors = map[ss.ApplicationType]int{
	ss.TypeAdmin:  0x5865F2,
	ss.TypeScript: 0x57F287,
	ss.TypeHacks:  0xED4245,
}

// fieldLabels maps form field names to their Arabic display labels.
var fieldLabels = map[string]string{
	"name":           "الاسم",
	"age":            "العمر",
	"country":        "الدولة",
	"benefit":        "كيف ستفيد السيرفر",
	"experience":     "الخبرة في Discord",
	"responsibility": "تحمل المسؤولية",
	"oath":           "القسم",

	"languages": "لغات البرمجة",
	"maps":      "الخرائط",
	"frequency": "تكرار النشر",

	"serverLogo":      "شعار السيرفر",
	"previousServers": "سيرفرات سابقة",
	"hackTypes":       "أنواع الهاكات",
	"activeHours":     "ساعات النشاط",
}

// fieldOrder fixes the rendering order of known form fields; Go map
// iteration would shuffle the embed otherwise.
var fieldOrder = []string{
	"name", "age", "country", "benefit", "experience", "responsibility", "oath",
	"languages", "maps", "frequency",
	"serverLogo", "previousServers", "hackTypes", "activeHours",
}

func typeTitle(t ss.ApplicationType) string {
	if title, ok := typeTitles[t]; ok {
		return title
	}
	return string(t)
}

func typeColor(t ss.ApplicationType) int {
	if c, ok := typeColors[t]; ok {
		return c
	}
	return 0x99AAB5
}

// Notify mirrors a submitted application into the review channel as an embed
// with accept/reject buttons. When the session is not ready or no channel is
// configured it logs and returns nil: notification is best-effort and must
// never fail the submission.
func (s *Service) Notify(ctx context.Context, app ss.Application) error {
	if !s.ready.Load() {
		s.log.Warn("discord session not ready, skipping channel notification",
			zap.String("application_id", app.ID))
		return nil
	}
	if s.cfg.ChannelID == "" {
		s.log.Warn("no channel configured, skipping channel notification",
			zap.String("application_id", app.ID))
		return nil
	}

	_, err := s.session.ChannelMessageSendComplex(s.cfg.ChannelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{applicationEmbed(app)},
		Components: []discordgo.MessageComponent{applicationButtons(app.Type, app.ID)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send application %s to channel: %w", app.ID, err)
	}
	s.log.Info("application sent to review channel",
		zap.String("application_id", app.ID),
		zap.String("type", string(app.Type)))
	return nil
}

// applicationEmbed renders one submission as a rich message.
func applicationEmbed(app ss.Application) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:     "طلب " + typeTitle(app.Type),
		Color:     typeColor(app.Type),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "اسم المستخدم في Discord", Value: app.DiscordUsername, Inline: true},
			{Name: "نوع التقديم", Value: typeTitle(app.Type), Inline: true},
			{Name: "ID التقديم", Value: app.ID, Inline: true},
		},
	}

	for _, key := range formDataKeys(app.FormData) {
		value := displayValue(key, app.FormData[key])
		if value == "" {
			continue
		}
		label, ok := fieldLabels[key]
		if !ok {
			label = key
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  label,
			Value: truncate(value, embedFieldLimit),
		})
	}
	return embed
}

// formDataKeys returns the form keys in fixed order: the known fields first,
// unknown extras after them, sorted.
func formDataKeys(formData map[string]any) []string {
	keys := make([]string, 0, len(formData))
	seen := make(map[string]bool, len(formData))
	for _, key := range fieldOrder {
		if _, ok := formData[key]; ok {
			keys = append(keys, key)
			seen[key] = true
		}
	}
	var extra []string
	for key := range formData {
		if !seen[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// displayValue renders a form value for the embed. Booleans (and the
// checkbox field, which some clients submit as the string "true") become
// نعم/لا; everything else is printed as-is. Empty values render nothing.
func displayValue(key string, value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "نعم"
		}
		return "لا"
	case string:
		if key == "responsibility" {
			if v == "true" {
				return "نعم"
			}
			return "لا"
		}
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// applicationButtons builds the accept/reject row. The custom id encodes
// action, type and application id, underscore-separated.
func applicationButtons(typ ss.ApplicationType, applicationID string) discordgo.ActionsRow {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "قبول",
				Style:    discordgo.SuccessButton,
				CustomID: fmt.Sprintf("accept_%s_%s", typ, applicationID),
				Emoji:    discordgo.ComponentEmoji{Name: "✅"},
			},
			discordgo.Button{
				Label:    "رفض",
				Style:    discordgo.DangerButton,
				CustomID: fmt.Sprintf("reject_%s_%s", typ, applicationID),
				Emoji:    discordgo.ComponentEmoji{Name: "❌"},
			},
		},
	}
}

// parseCustomID splits an "action_type_id" button id.
func parseCustomID(id string) (action string, typ ss.ApplicationType, applicationID string, ok bool) {
	parts := strings.SplitN(id, "_", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	if parts[0] != "accept" && parts[0] != "reject" {
		return "", "", "", false
	}
	return parts[0], ss.ApplicationType(parts[1]), parts[2], true
}

// onInteraction handles the accept/reject button presses on application
// embeds: checks the presser's reviewer role, edits the message to show the
// decision, and reports the decision to the portal webhook.
func (s *Service) onInteraction(sess *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	action, typ, applicationID, ok := parseCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}
	if i.Member == nil || i.Member.User == nil {
		return
	}

	if !hasRole(i.Member, s.cfg.ReviewerRoleID) {
		err := sess.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "ليس لديك صلاحية للتعامل مع التقديمات.",
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
		if err != nil {
			s.log.Error("reply to unauthorised reviewer", zap.Error(err))
		}
		return
	}

	reviewer := i.Member.User
	if len(i.Message.Embeds) == 0 {
		return
	}
	updated := decisionEmbed(i.Message.Embeds[0], action, reviewer.ID)

	// Strip the buttons so the decision reads as final in the channel.
	// Nothing here prevents a stale press racing the edit; the store's
	// one-way status transition is the backstop.
	err := sess.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{updated},
			Components: []discordgo.MessageComponent{},
		},
	})
	if err != nil {
		s.log.Error("update application message",
			zap.String("application_id", applicationID),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.reportDecision(ctx, applicationID, action, reviewer.Username); err != nil {
		// Best-effort: the channel already shows the decision.
		s.log.Error("report decision to portal",
			zap.String("application_id", applicationID),
			zap.String("action", action),
			zap.String("type", string(typ)),
			zap.Error(err))
	}
}

func hasRole(m *discordgo.Member, roleID string) bool {
	if roleID == "" {
		return false
	}
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// decisionEmbed rebuilds the original embed with the decision appended and
// the status colour applied.
func decisionEmbed(orig *discordgo.MessageEmbed, action, reviewerID string) *discordgo.MessageEmbed {
	actionText := "قُبِل"
	color := colorAccepted
	if action != "accept" {
		actionText = "رُفِض"
		color = colorRejected
	}

	fields := make([]*discordgo.MessageEmbedField, 0, len(orig.Fields)+2)
	fields = append(fields, orig.Fields...)
	fields = append(fields,
		&discordgo.MessageEmbedField{
			Name:  "📋 حالة التقديم",
			Value: fmt.Sprintf("**%s** بواسطة <@%s>", actionText, reviewerID),
		},
		&discordgo.MessageEmbedField{
			Name:  "⏰ تاريخ المراجعة",
			Value: fmt.Sprintf("<t:%d:F>", time.Now().Unix()),
		},
	)
	return &discordgo.MessageEmbed{
		Title:     orig.Title,
		Color:     color,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Fields:    fields,
	}
}

// reportDecision posts the decision to the portal's respond webhook. The
// portal resolves the applicant's user id from the stored record.
func (s *Service) reportDecision(ctx context.Context, applicationID, action, reviewer string) error {
	if s.cfg.WebhookBase == "" {
		return errors.New("no webhook base configured")
	}
	body := struct {
		Action     string `json:"action"`
		UserID     string `json:"userId,omitempty"`
		ReviewedBy string `json:"reviewedBy,omitempty"`
	}{Action: action, ReviewedBy: reviewer}

	return requests.URL(s.cfg.WebhookBase).
		Pathf("/api/applications/%s/respond", applicationID).
		BodyJSON(&body).
		Fetch(ctx)
}
