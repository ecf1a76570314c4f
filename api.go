package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"mtahub/portal_backend/discordbot"
	"mtahub/portal_backend/inquiry"
	"mtahub/portal_backend/internal/httpx"
	ss "mtahub/portal_backend/storage_service"
)

const sessionCookie = "admin_session"

// GuildVerifier resolves portal handles against the Discord guild.
type GuildVerifier interface {
	VerifyUser(ctx context.Context, handle string) (discordbot.Verification, error)
	AssignRole(ctx context.Context, userID, roleID string) error
}

// ApplicationNotifier mirrors submissions into the review channel.
type ApplicationNotifier interface {
	Notify(ctx context.Context, app ss.Application) error
}

// InquiryAnalyzer categorises support inquiries.
type InquiryAnalyzer interface {
	Analyze(ctx context.Context, content string) inquiry.Analysis
}

// InquiryRelay forwards an auto-resolved answer to the source platform.
type InquiryRelay interface {
	Send(ctx context.Context, channel, text, threadTS string) (string, error)
}

type server struct {
	log      *zap.Logger
	store    *ss.Store
	verifier GuildVerifier
	notifier ApplicationNotifier
	analyzer InquiryAnalyzer // nil when no model is configured
	relay    InquiryRelay    // nil when slack is not configured

	roleForType  map[ss.ApplicationType]string
	rejectRoleID string

	adminUsername  string
	adminPassword  string
	sessionTTL     time.Duration
	requireSession bool
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Route("/api", func(r chi.Router) {
		r.Post("/verify-discord", s.handle(s.verifyDiscord))
		r.Post("/applications", s.handle(s.submitApplication))
		r.Post("/applications/{id}/respond", s.handle(s.respond))
		r.Post("/admin/login", s.handle(s.adminLogin))
		r.Post("/admin/logout", s.handle(s.adminLogout))
		r.Get("/application-settings", s.handle(s.getSettings))
		r.Post("/inquiries", s.handle(s.analyzeInquiry))

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/applications", s.handle(s.listApplications))
			r.Put("/application-settings/{type}", s.handle(s.putSettings))
		})
	})
	return r
}

func (s *server) handle(fn func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return httpx.Handler(s.log, fn)
}

// cors allows the portal frontend to call from any origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin gates admin endpoints behind a session cookie when enabled.
// It defaults off, matching the portal's historical permissive gate.
func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.requireSession {
			next.ServeHTTP(w, r)
			return
		}
		if c, err := r.Cookie(sessionCookie); err == nil {
			if _, ok := s.store.Session(c.Value); ok {
				next.ServeHTTP(w, r)
				return
			}
		}
		httpx.JSON(w, http.StatusUnauthorized, map[string]any{"message": "غير مصرح"})
	})
}

func (s *server) verifyDiscord(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Username string `json:"username"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Username) == "" {
		return httpx.Error(http.StatusBadRequest, "اسم المستخدم مطلوب")
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	v, err := s.verifier.VerifyUser(ctx, req.Username)
	switch {
	case err == nil:
	case errors.Is(err, discordbot.ErrMemberNotFound):
		return httpx.Error(http.StatusNotFound, "المستخدم غير موجود في السيرفر")
	case errors.Is(err, discordbot.ErrNoGuild), errors.Is(err, discordbot.ErrNotReady):
		return httpx.Wrap(http.StatusInternalServerError, "لم يتم تكوين السيرفر بشكل صحيح. يرجى المحاولة لاحقاً", err)
	default:
		return httpx.Wrap(http.StatusInternalServerError, "خطأ في التحقق من العضوية", err)
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"verified": true, "userId": v.UserID})
	return nil
}

func (s *server) submitApplication(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Type            ss.ApplicationType `json:"type"`
		DiscordUsername string             `json:"discordUsername"`
		DiscordUserID   string             `json:"discordUserId"`
		FormData        map[string]any     `json:"formData"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		return err
	}

	fields := map[string]string{}
	if !req.Type.Valid() {
		fields["type"] = "نوع تقديم غير صحيح"
	}
	if strings.TrimSpace(req.DiscordUsername) == "" {
		fields["discordUsername"] = "اسم المستخدم مطلوب"
	}
	if len(fields) == 0 {
		fields = validateFormData(req.Type, req.FormData)
	}
	if len(fields) > 0 {
		return &httpx.ValidationError{Message: "بيانات غير صحيحة", Fields: fields}
	}

	// check-then-create on the gate is unguarded; toggling is rare
	// administrative state, not a correctness-critical section
	if !s.store.IsOpen(req.Type) {
		return httpx.Error(http.StatusForbidden, "التقديم مغلق حالياً")
	}

	app := s.store.CreateApplication(req.Type, req.DiscordUsername, req.DiscordUserID, req.FormData)

	// The create has committed; notification is a best-effort side effect
	// on its own goroutine and never unwinds the submission.
	go s.notifyApplication(app)

	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "applicationId": app.ID})
	return nil
}

func (s *server) notifyApplication(app ss.Application) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.notifier.Notify(ctx, app); err != nil {
		s.log.Error("failed to send application to discord",
			zap.String("application_id", app.ID),
			zap.Error(err))
	}
}

func (s *server) adminLogin(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		return err
	}
	if req.Username != s.adminUsername || req.Password != s.adminPassword {
		return httpx.Error(http.StatusUnauthorized, "بيانات تسجيل الدخول غير صحيحة")
	}

	sess := s.store.CreateSession(s.sessionTTL)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.SessionID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
	return nil
}

func (s *server) adminLogout(w http.ResponseWriter, r *http.Request) error {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.store.DeleteSession(c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
	return nil
}

func (s *server) getSettings(w http.ResponseWriter, r *http.Request) error {
	out := make(map[string]bool, len(ss.Types))
	for _, typ := range ss.Types {
		out[string(typ)] = s.store.IsOpen(typ)
	}
	httpx.JSON(w, http.StatusOK, out)
	return nil
}

func (s *server) putSettings(w http.ResponseWriter, r *http.Request) error {
	typ := ss.ApplicationType(chi.URLParam(r, "type"))
	if !typ.Valid() {
		return httpx.Error(http.StatusBadRequest, "نوع تقديم غير صحيح")
	}
	var req struct {
		IsOpen *bool `json:"isOpen"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		return err
	}
	if req.IsOpen == nil {
		return httpx.Error(http.StatusBadRequest, "قيمة isOpen يجب أن تكون boolean")
	}

	httpx.JSON(w, http.StatusOK, s.store.SetSettings(typ, *req.IsOpen))
	return nil
}

func (s *server) listApplications(w http.ResponseWriter, r *http.Request) error {
	httpx.JSON(w, http.StatusOK, s.store.Applications())
	return nil
}

func (s *server) respond(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	var req struct {
		Action     string `json:"action"`
		UserID     string `json:"userId"`
		ReviewedBy string `json:"reviewedBy"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		return err
	}

	status := ss.StatusRejected
	if req.Action == "accept" {
		status = ss.StatusAccepted
	}
	reviewer := req.ReviewedBy
	if reviewer == "" {
		reviewer = "Discord Bot"
	}

	app, err := s.store.UpdateApplicationStatus(id, status, reviewer)
	switch {
	case errors.Is(err, ss.ErrNotFound):
		return httpx.Error(http.StatusNotFound, "التقديم غير موجود")
	case errors.Is(err, ss.ErrAlreadyReviewed):
		return httpx.Error(http.StatusConflict, "تمت مراجعة هذا التقديم مسبقاً")
	case err != nil:
		return err
	}

	// Role grants are best-effort: the decision is already recorded and
	// the caller gets success either way.
	target := req.UserID
	if target == "" {
		target = app.DiscordUserID
	}
	if target != "" {
		if status == ss.StatusAccepted {
			s.assignRole(r.Context(), target, s.roleForType[app.Type], app.ID)
		} else if app.Type == ss.TypeAdmin {
			s.assignRole(r.Context(), target, s.rejectRoleID, app.ID)
		}
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
	return nil
}

func (s *server) assignRole(ctx context.Context, userID, roleID, applicationID string) {
	if roleID == "" || s.verifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.verifier.AssignRole(ctx, userID, roleID); err != nil {
		s.log.Error("failed to assign role",
			zap.String("application_id", applicationID),
			zap.String("user_id", userID),
			zap.String("role_id", roleID),
			zap.Error(err))
	}
}

func (s *server) analyzeInquiry(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Content   string `json:"content"`
		ChannelID string `json:"channelId"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Content) == "" {
		return httpx.Error(http.StatusBadRequest, "content is required")
	}
	if s.analyzer == nil {
		return httpx.Error(http.StatusServiceUnavailable, "inquiry analysis is not configured")
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	analysis := s.analyzer.Analyze(ctx, req.Content)

	relayed := false
	if s.relay != nil && !analysis.RequiresHuman && analysis.Confidence >= 0.7 && analysis.SuggestedResponse != "" {
		if _, err := s.relay.Send(ctx, req.ChannelID, analysis.SuggestedResponse, ""); err != nil {
			s.log.Error("failed to relay inquiry response", zap.Error(err))
		} else {
			relayed = true
		}
	}

	httpx.JSON(w, http.StatusOK, struct {
		inquiry.Analysis
		Relayed bool `json:"relayed"`
	}{analysis, relayed})
	return nil
}
