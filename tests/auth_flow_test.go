package tests

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaydaVis04/jLedger/tests/suite"
)

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type loginResponse struct {
	AccessToken string   `json:"accessToken"`
	User        userView `json:"user"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func credentials() (string, string) {
	return gofakeit.Email(), gofakeit.Password(true, true, true, true, false, 12)
}

func register(s *suite.Suite, email, password string) userView {
	s.Helper()
	resp := s.PostJSON("/auth/register", map[string]string{"email": email, "password": password})
	require.Equal(s.T, http.StatusCreated, resp.StatusCode)
	var user userView
	s.DecodeJSON(resp, &user)
	return user
}

func login(s *suite.Suite, email, password string) (loginResponse, *http.Cookie) {
	s.Helper()
	resp := s.PostJSON("/auth/login", map[string]string{"email": email, "password": password})
	require.Equal(s.T, http.StatusOK, resp.StatusCode)
	cookie, ok := suite.RefreshCookieValue(resp)
	require.True(s.T, ok, "login must set the refresh cookie")
	var body loginResponse
	s.DecodeJSON(resp, &body)
	return body, cookie
}

func TestRegister(t *testing.T) {
	s := suite.New(t)

	email, password := credentials()

	resp := s.PostJSON("/auth/register", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var user userView
	s.DecodeJSON(resp, &user)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, email, user.Email)
	assert.Equal(t, "USER", user.Role)
	assert.WithinDuration(t, time.Now(), user.CreatedAt, time.Minute)
}

func TestRegisterNeverEchoesPassword(t *testing.T) {
	s := suite.New(t)

	email, password := credentials()

	resp := s.PostJSON("/auth/register", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var raw map[string]any
	s.DecodeJSON(resp, &raw)
	for key := range raw {
		lower := strings.ToLower(key)
		assert.NotContains(t, lower, "password")
		assert.NotContains(t, lower, "hash")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s := suite.New(t)

	email, password := credentials()
	register(s, email, password)

	resp := s.PostJSON("/auth/register", map[string]string{"email": email, "password": password})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestRegisterValidation(t *testing.T) {
	s := suite.New(t)

	cases := []struct {
		name string
		body map[string]string
	}{
		{"missing email", map[string]string{"password": "password123"}},
		{"bad email", map[string]string{"email": "not-an-email", "password": "password123"}},
		{"short password", map[string]string{"email": gofakeit.Email(), "password": "short"}},
		{"missing password", map[string]string{"email": gofakeit.Email()}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := s.PostJSON("/auth/register", tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			resp.Body.Close()
		})
	}
}

func TestLogin(t *testing.T) {
	s := suite.New(t)

	email, password := credentials()
	registered := register(s, email, password)

	body, cookie := login(s, email, password)

	assert.NotEmpty(t, body.AccessToken)
	assert.Equal(t, registered.ID, body.User.ID)
	assert.Equal(t, email, body.User.Email)

	assert.True(t, cookie.HttpOnly, "refresh cookie must be HTTP-only")
	assert.True(t, cookie.Secure, "refresh cookie must be Secure outside local dev")
	assert.Equal(t, "/auth", cookie.Path)
	assert.InDelta(t, int(suite.RefreshTokenTTL.Seconds()), cookie.MaxAge, 5,
		"cookie lifetime must match the refresh token expiry")
	assert.NotEmpty(t, cookie.Value)
	assert.NotEqual(t, body.AccessToken, cookie.Value)

	total, active := s.TokenCounts(registered.ID)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, active)
}

func TestLoginFailuresLookIdentical(t *testing.T) {
	s := suite.New(t)

	email, password := credentials()
	register(s, email, password)

	wrongPass := s.PostJSON("/auth/login", map[string]string{"email": email, "password": "wrong-password"})
	unknownUser := s.PostJSON("/auth/login", map[string]string{"email": gofakeit.Email(), "password": password})

	require.Equal(t, http.StatusUnauthorized, wrongPass.StatusCode)
	require.Equal(t, http.StatusUnauthorized, unknownUser.StatusCode)

	var bodyA, bodyB errorResponse
	s.DecodeJSON(wrongPass, &bodyA)
	s.DecodeJSON(unknownUser, &bodyB)
	assert.Equal(t, bodyA, bodyB, "failure responses must not reveal which part was wrong")
}

func TestRefreshRotation(t *testing.T) {
	s := suite.New(t)

	email, password := credentials()
	registered := register(s, email, password)
	body, cookie1 := login(s, email, password)

	resp := s.PostJSON("/auth/refresh", nil, suite.WithRefreshCookie(cookie1.Value))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookie2, ok := suite.RefreshCookieValue(resp)
	require.True(t, ok, "refresh must set a new cookie")
	assert.NotEqual(t, cookie1.Value, cookie2.Value)

	var refreshed refreshResponse
	s.DecodeJSON(resp, &refreshed)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, body.AccessToken, refreshed.AccessToken)

	total, active := s.TokenCounts(registered.ID)
	assert.Equal(t, 2, total, "rotation adds one link")
	assert.Equal(t, 1, active, "old link is revoked, not deleted")
}

func TestRefreshReplayRejected(t *testing.T) {
	s := suite.New(t)

	email, password := credentials()
	registered := register(s, email, password)
	_, cookie1 := login(s, email, password)

	resp := s.PostJSON("/auth/refresh", nil, suite.WithRefreshCookie(cookie1.Value))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// the original secret has been consumed
	replay := s.PostJSON("/auth/refresh", nil, suite.WithRefreshCookie(cookie1.Value))
	assert.Equal(t, http.StatusUnauthorized, replay.StatusCode)
	replay.Body.Close()

	// reuse triggered the chain revocation policy
	_, active := s.TokenCounts(registered.ID)
	assert.Equal(t, 0, active)
}

func TestRefreshChainLength(t *testing.T) {
	s := suite.New(t)

	email, password := credentials()
	registered := register(s, email, password)
	_, cookie := login(s, email, password)

	const n = 4
	current := cookie.Value
	for i := 0; i < n; i++ {
		resp := s.PostJSON("/auth/refresh", nil, suite.WithRefreshCookie(current))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		next, ok := suite.RefreshCookieValue(resp)
		require.True(t, ok)
		resp.Body.Close()
		current = next.Value
	}

	total, active := s.TokenCounts(registered.ID)
	assert.Equal(t, n+1, total)
	assert.Equal(t, 1, active)
}

func TestRefreshWithoutCookie(t *testing.T) {
	s := suite.New(t)

	resp := s.PostJSON("/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestRefreshWithUnknownSecret(t *testing.T) {
	s := suite.New(t)

	resp := s.PostJSON("/auth/refresh", nil, suite.WithRefreshCookie("never-issued-secret"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestMe(t *testing.T) {
	s := suite.New(t)

	email, password := credentials()
	registered := register(s, email, password)
	body, _ := login(s, email, password)

	resp := s.Get("/auth/me", suite.WithBearer(body.AccessToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var me userView
	s.DecodeJSON(resp, &me)
	assert.Equal(t, registered.ID, me.ID)
	assert.Equal(t, email, me.Email)
	assert.Equal(t, "USER", me.Role)
}

func TestMeUnauthenticated(t *testing.T) {
	s := suite.New(t)

	noHeader := s.Get("/auth/me")
	assert.Equal(t, http.StatusUnauthorized, noHeader.StatusCode)
	noHeader.Body.Close()

	badScheme := s.Get("/auth/me", func(req *http.Request) {
		req.Header.Set("Authorization", "Basic abc123")
	})
	assert.Equal(t, http.StatusUnauthorized, badScheme.StatusCode)
	badScheme.Body.Close()

	badToken := s.Get("/auth/me", suite.WithBearer("not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, badToken.StatusCode)
	badToken.Body.Close()
}

func TestLogout(t *testing.T) {
	s := suite.New(t)

	email, password := credentials()
	registered := register(s, email, password)
	_, cookie := login(s, email, password)

	resp := s.PostJSON("/auth/logout", nil, suite.WithRefreshCookie(cookie.Value))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	_, active := s.TokenCounts(registered.ID)
	assert.Equal(t, 0, active)

	// the revoked secret is gone for good
	replay := s.PostJSON("/auth/refresh", nil, suite.WithRefreshCookie(cookie.Value))
	assert.Equal(t, http.StatusUnauthorized, replay.StatusCode)
	replay.Body.Close()

	// idempotent, with or without a cookie
	again := s.PostJSON("/auth/logout", nil, suite.WithRefreshCookie(cookie.Value))
	assert.Equal(t, http.StatusNoContent, again.StatusCode)
	again.Body.Close()

	bare := s.PostJSON("/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, bare.StatusCode)
	bare.Body.Close()
}

func TestAdminRevokeSessions(t *testing.T) {
	s := suite.New(t)

	adminEmail, adminPassword := credentials()
	register(s, adminEmail, adminPassword)
	s.PromoteToAdmin(adminEmail)
	adminBody, _ := login(s, adminEmail, adminPassword)

	userEmail, userPassword := credentials()
	target := register(s, userEmail, userPassword)
	_, userCookie := login(s, userEmail, userPassword)

	resp := s.PostJSON("/admin/sessions/revoke",
		map[string]string{"user_id": target.ID},
		suite.WithBearer(adminBody.AccessToken))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	_, active := s.TokenCounts(target.ID)
	assert.Equal(t, 0, active)

	replay := s.PostJSON("/auth/refresh", nil, suite.WithRefreshCookie(userCookie.Value))
	assert.Equal(t, http.StatusUnauthorized, replay.StatusCode)
	replay.Body.Close()
}

func TestAdminRoutesForbiddenForUsers(t *testing.T) {
	s := suite.New(t)

	email, password := credentials()
	register(s, email, password)
	body, _ := login(s, email, password)

	asUser := s.PostJSON("/admin/sessions/revoke",
		map[string]string{"user_id": body.User.ID},
		suite.WithBearer(body.AccessToken))
	assert.Equal(t, http.StatusForbidden, asUser.StatusCode)
	asUser.Body.Close()

	anonymous := s.PostJSON("/admin/sessions/revoke", map[string]string{"user_id": body.User.ID})
	assert.Equal(t, http.StatusUnauthorized, anonymous.StatusCode)
	anonymous.Body.Close()
}

func TestHealth(t *testing.T) {
	s := suite.New(t)

	resp := s.Get("/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
