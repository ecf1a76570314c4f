package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mtahub/portal_backend/arabic"
	"mtahub/portal_backend/discordbot"
	ss "mtahub/portal_backend/storage_service"
)

type fakeVerifier struct {
	mu        sync.Mutex
	result    discordbot.Verification
	verifyErr error
	assigned  map[string]string // userID -> roleID
	assignErr error
}

func (f *fakeVerifier) VerifyUser(ctx context.Context, handle string) (discordbot.Verification, error) {
	if f.verifyErr != nil {
		return discordbot.Verification{}, f.verifyErr
	}
	return f.result, nil
}

func (f *fakeVerifier) AssignRole(ctx context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assigned == nil {
		f.assigned = map[string]string{}
	}
	f.assigned[userID] = roleID
	return f.assignErr
}

func (f *fakeVerifier) assignedRole(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assigned[userID]
}

type fakeNotifier struct {
	notified chan ss.Application
	err      error
}

func (f *fakeNotifier) Notify(ctx context.Context, app ss.Application) error {
	if f.notified != nil {
		f.notified <- app
	}
	return f.err
}

func newTestServer(t *testing.T) (*server, *fakeVerifier, *fakeNotifier) {
	t.Helper()
	verifier := &fakeVerifier{result: discordbot.Verification{UserID: "U100", Username: "someone"}}
	notifier := &fakeNotifier{}
	srv := &server{
		log:      zap.NewNop(),
		store:    ss.New(),
		verifier: verifier,
		notifier: notifier,
		roleForType: map[ss.ApplicationType]string{
			ss.TypeAdmin:  "role-admin",
			ss.TypeScript: "role-script",
			ss.TypeHacks:  "role-hacks",
		},
		rejectRoleID:  "role-reject",
		adminUsername: "admin",
		adminPassword: "admin",
		sessionTTL:    time.Hour,
	}
	return srv, verifier, notifier
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func scriptFormData() map[string]any {
	return map[string]any{
		"name": "A", "age": "20", "languages": "JS",
		"experience": "none", "maps": "none", "frequency": "يومي",
	}
}

func adminFormData() map[string]any {
	return map[string]any{
		"name": "A", "age": "25", "country": "MA", "benefit": "b",
		"experience": "e", "responsibility": true, "oath": arabic.RequiredOath,
	}
}

func TestSubmitThenListApplication(t *testing.T) {
	req := require.New(t)
	srv, _, notifier := newTestServer(t)
	notifier.notified = make(chan ss.Application, 1)
	h := srv.routes()

	rec := do(t, h, "POST", "/api/applications", map[string]any{
		"type":            "script",
		"discordUsername": "x",
		"formData":        scriptFormData(),
	})
	req.Equal(http.StatusOK, rec.Code)
	out := decode[struct {
		Success       bool   `json:"success"`
		ApplicationID string `json:"applicationId"`
	}](t, rec)
	req.True(out.Success)
	_, err := uuid.Parse(out.ApplicationID)
	req.NoError(err)

	select {
	case app := <-notifier.notified:
		req.Equal(out.ApplicationID, app.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was never called")
	}

	rec = do(t, h, "GET", "/api/applications", nil)
	req.Equal(http.StatusOK, rec.Code)
	apps := decode[[]ss.Application](t, rec)
	req.Len(apps, 1)
	req.Equal(out.ApplicationID, apps[0].ID)
	req.Equal(ss.StatusPending, apps[0].Status)
}

func TestSubmitClosedType(t *testing.T) {
	req := require.New(t)
	srv, _, _ := newTestServer(t)
	h := srv.routes()

	rec := do(t, h, "PUT", "/api/application-settings/admin", map[string]any{"isOpen": false})
	req.Equal(http.StatusOK, rec.Code)

	rec = do(t, h, "POST", "/api/applications", map[string]any{
		"type":            "admin",
		"discordUsername": "x",
		"formData":        adminFormData(),
	})
	req.Equal(http.StatusForbidden, rec.Code)
	req.Equal("التقديم مغلق حالياً", decode[map[string]string](t, rec)["message"])

	// nothing was stored
	req.Empty(srv.store.Applications())
}

func TestSubmitNotificationFailureStillSucceeds(t *testing.T) {
	req := require.New(t)
	srv, _, notifier := newTestServer(t)
	notifier.err = fmt.Errorf("discord is down")
	notifier.notified = make(chan ss.Application, 1)
	h := srv.routes()

	rec := do(t, h, "POST", "/api/applications", map[string]any{
		"type":            "script",
		"discordUsername": "x",
		"formData":        scriptFormData(),
	})
	req.Equal(http.StatusOK, rec.Code)
	<-notifier.notified
	req.Len(srv.store.Applications(), 1)
}

func TestSubmitValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.routes()

	tc := []struct {
		name       string
		body       map[string]any
		wantFields []string
	}{
		{
			"unknown type",
			map[string]any{"type": "other", "discordUsername": "x", "formData": map[string]any{}},
			[]string{"type"},
		},
		{
			"missing username",
			map[string]any{"type": "script", "formData": scriptFormData()},
			[]string{"discordUsername"},
		},
		{
			"missing script fields",
			map[string]any{"type": "script", "discordUsername": "x", "formData": map[string]any{"name": "A"}},
			[]string{"age", "languages", "experience", "maps", "frequency"},
		},
		{
			"bad oath",
			func() map[string]any {
				fd := adminFormData()
				fd["oath"] = "اقسم فقط"
				return map[string]any{"type": "admin", "discordUsername": "x", "formData": fd}
			}(),
			[]string{"oath"},
		},
	}
	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			rec := do(t, h, "POST", "/api/applications", tt.body)
			req.Equal(http.StatusBadRequest, rec.Code)
			out := decode[struct {
				Message string            `json:"message"`
				Errors  map[string]string `json:"errors"`
			}](t, rec)
			req.Equal("بيانات غير صحيحة", out.Message)
			for _, f := range tt.wantFields {
				req.Contains(out.Errors, f)
			}
			req.Empty(srv.store.Applications())
		})
	}
}

func TestSubmitAdminWithValidOath(t *testing.T) {
	req := require.New(t)
	srv, _, _ := newTestServer(t)
	h := srv.routes()

	rec := do(t, h, "POST", "/api/applications", map[string]any{
		"type":            "admin",
		"discordUsername": "x",
		"formData":        adminFormData(),
	})
	req.Equal(http.StatusOK, rec.Code)
}

func TestVerifyDiscord(t *testing.T) {
	req := require.New(t)
	srv, verifier, _ := newTestServer(t)
	h := srv.routes()

	rec := do(t, h, "POST", "/api/verify-discord", map[string]any{"username": ""})
	req.Equal(http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", "/api/verify-discord", map[string]any{"username": "someone"})
	req.Equal(http.StatusOK, rec.Code)
	out := decode[struct {
		Verified bool   `json:"verified"`
		UserID   string `json:"userId"`
	}](t, rec)
	req.True(out.Verified)
	req.Equal("U100", out.UserID)

	verifier.verifyErr = discordbot.ErrMemberNotFound
	rec = do(t, h, "POST", "/api/verify-discord", map[string]any{"username": "ghost"})
	req.Equal(http.StatusNotFound, rec.Code)

	verifier.verifyErr = discordbot.ErrNotReady
	rec = do(t, h, "POST", "/api/verify-discord", map[string]any{"username": "someone"})
	req.Equal(http.StatusInternalServerError, rec.Code)
}

func TestApplicationSettings(t *testing.T) {
	req := require.New(t)
	srv, _, _ := newTestServer(t)
	h := srv.routes()

	rec := do(t, h, "GET", "/api/application-settings", nil)
	req.Equal(http.StatusOK, rec.Code)
	req.Equal(map[string]bool{"admin": true, "script": true, "hacks": true},
		decode[map[string]bool](t, rec))

	rec = do(t, h, "PUT", "/api/application-settings/script", map[string]any{"isOpen": false})
	req.Equal(http.StatusOK, rec.Code)
	set := decode[ss.ApplicationSettings](t, rec)
	req.Equal(ss.TypeScript, set.Type)
	req.False(set.IsOpen)

	rec = do(t, h, "GET", "/api/application-settings", nil)
	req.Equal(map[string]bool{"admin": true, "script": false, "hacks": true},
		decode[map[string]bool](t, rec))

	rec = do(t, h, "PUT", "/api/application-settings/other", map[string]any{"isOpen": true})
	req.Equal(http.StatusBadRequest, rec.Code)

	rec = do(t, h, "PUT", "/api/application-settings/admin", map[string]any{})
	req.Equal(http.StatusBadRequest, rec.Code)
	req.Equal("قيمة isOpen يجب أن تكون boolean", decode[map[string]string](t, rec)["message"])
}

func TestRespondAccept(t *testing.T) {
	req := require.New(t)
	srv, verifier, _ := newTestServer(t)
	h := srv.routes()

	app := srv.store.CreateApplication(ss.TypeAdmin, "x", "", adminFormData())

	rec := do(t, h, "POST", "/api/applications/"+app.ID+"/respond",
		map[string]any{"action": "accept", "userId": "U1"})
	req.Equal(http.StatusOK, rec.Code)
	req.True(decode[map[string]bool](t, rec)["success"])

	stored, err := srv.store.ApplicationByID(app.ID)
	req.NoError(err)
	req.Equal(ss.StatusAccepted, stored.Status)
	req.Equal("Discord Bot", stored.ReviewedBy)
	req.Equal("role-admin", verifier.assignedRole("U1"))

	// second decision conflicts
	rec = do(t, h, "POST", "/api/applications/"+app.ID+"/respond",
		map[string]any{"action": "reject", "userId": "U1"})
	req.Equal(http.StatusConflict, rec.Code)
}

func TestRespondRejectAdminAssignsRejectRole(t *testing.T) {
	req := require.New(t)
	srv, verifier, _ := newTestServer(t)
	h := srv.routes()

	app := srv.store.CreateApplication(ss.TypeAdmin, "x", "U2", adminFormData())

	// no userId in the body: the stored applicant id is used
	rec := do(t, h, "POST", "/api/applications/"+app.ID+"/respond",
		map[string]any{"action": "reject", "reviewedBy": "mod"})
	req.Equal(http.StatusOK, rec.Code)

	stored, err := srv.store.ApplicationByID(app.ID)
	req.NoError(err)
	req.Equal(ss.StatusRejected, stored.Status)
	req.Equal("mod", stored.ReviewedBy)
	req.Equal("role-reject", verifier.assignedRole("U2"))
}

func TestRespondRoleFailureStillSucceeds(t *testing.T) {
	req := require.New(t)
	srv, verifier, _ := newTestServer(t)
	verifier.assignErr = fmt.Errorf("missing permissions")
	h := srv.routes()

	app := srv.store.CreateApplication(ss.TypeScript, "x", "U3", scriptFormData())
	rec := do(t, h, "POST", "/api/applications/"+app.ID+"/respond",
		map[string]any{"action": "accept", "userId": "U3"})
	req.Equal(http.StatusOK, rec.Code)
}

func TestRespondUnknownApplication(t *testing.T) {
	req := require.New(t)
	srv, _, _ := newTestServer(t)
	h := srv.routes()

	rec := do(t, h, "POST", "/api/applications/nope/respond",
		map[string]any{"action": "accept"})
	req.Equal(http.StatusNotFound, rec.Code)
	req.Equal("التقديم غير موجود", decode[map[string]string](t, rec)["message"])
}

func TestAdminLoginLogout(t *testing.T) {
	req := require.New(t)
	srv, _, _ := newTestServer(t)
	h := srv.routes()

	rec := do(t, h, "POST", "/api/admin/login", map[string]any{"username": "admin", "password": "wrong"})
	req.Equal(http.StatusUnauthorized, rec.Code)

	rec = do(t, h, "POST", "/api/admin/login", map[string]any{"username": "admin", "password": "admin"})
	req.Equal(http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	req.Len(cookies, 1)
	req.Equal(sessionCookie, cookies[0].Name)
	_, ok := srv.store.Session(cookies[0].Value)
	req.True(ok)

	r := httptest.NewRequest("POST", "/api/admin/logout", bytes.NewReader([]byte("{}")))
	r.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	req.Equal(http.StatusOK, rec.Code)
	_, ok = srv.store.Session(cookies[0].Value)
	req.False(ok)
}

func TestAdminGate(t *testing.T) {
	req := require.New(t)
	srv, _, _ := newTestServer(t)
	srv.requireSession = true
	h := srv.routes()

	rec := do(t, h, "GET", "/api/applications", nil)
	req.Equal(http.StatusUnauthorized, rec.Code)

	sess := srv.store.CreateSession(time.Hour)
	r := httptest.NewRequest("GET", "/api/applications", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookie, Value: sess.SessionID})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	req.Equal(http.StatusOK, rec.Code)
}
