package suite

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	httpapp "github.com/jaydaVis04/jLedger/internal/app/http"
	"github.com/jaydaVis04/jLedger/internal/lib/secret"
	authservice "github.com/jaydaVis04/jLedger/internal/services/auth"
	"github.com/jaydaVis04/jLedger/internal/storage/sqlite"
)

const (
	JWTSecret       = "functional-test-secret"
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
	RefreshCookie   = "refresh_token"
)

// Suite runs the whole service in-process against a throwaway sqlite
// database, behind an httptest server.
type Suite struct {
	*testing.T
	Server *httptest.Server
	DB     *sql.DB
}

func New(t *testing.T) *Suite {
	t.Helper()
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	m, err := migrate.New("file://../migrations", "sqlite3://"+dbPath)
	if err != nil {
		t.Fatalf("failed to init migrator: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
		t.Fatalf("failed to close migrator: %v %v", srcErr, dbErr)
	}

	store, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hasher := secret.NewHasher(bcrypt.MinCost, "test-pepper")

	authService := authservice.New(
		logger, store, store, store, hasher,
		[]byte(JWTSecret), AccessTokenTTL, RefreshTokenTTL, true,
	)

	router := httpapp.NewRouter("prod", authService, store, []byte(JWTSecret), RefreshTokenTTL)
	server := httptest.NewServer(router)

	// second handle on the same file for fixture tweaks and assertions
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("failed to open assertion db: %v", err)
	}

	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
		_ = store.Close()
	})

	return &Suite{T: t, Server: server, DB: db}
}

// PostJSON sends a JSON body, optionally with a refresh cookie and
// bearer token, and returns the response.
func (s *Suite) PostJSON(path string, body any, opts ...ReqOption) *http.Response {
	s.T.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.T.Fatalf("failed to encode body: %v", err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, s.Server.URL+path, &buf)
	if err != nil {
		s.T.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, opts)
}

// Get sends a GET request with the given options.
func (s *Suite) Get(path string, opts ...ReqOption) *http.Response {
	s.T.Helper()

	req, err := http.NewRequest(http.MethodGet, s.Server.URL+path, nil)
	if err != nil {
		s.T.Fatalf("failed to build request: %v", err)
	}
	return s.do(req, opts)
}

func (s *Suite) do(req *http.Request, opts []ReqOption) *http.Response {
	s.T.Helper()
	for _, opt := range opts {
		opt(req)
	}
	resp, err := s.Server.Client().Do(req)
	if err != nil {
		s.T.Fatalf("request failed: %v", err)
	}
	return resp
}

type ReqOption func(*http.Request)

func WithRefreshCookie(raw string) ReqOption {
	return func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: raw})
	}
}

func WithBearer(token string) ReqOption {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// DecodeJSON reads and closes the response body into out.
func (s *Suite) DecodeJSON(resp *http.Response, out any) {
	s.T.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		s.T.Fatalf("failed to decode response: %v", err)
	}
}

// RefreshCookieValue extracts the refresh cookie set by a response;
// returns the cookie and true when present.
func RefreshCookieValue(resp *http.Response) (*http.Cookie, bool) {
	for _, c := range resp.Cookies() {
		if c.Name == RefreshCookie {
			return c, true
		}
	}
	return nil, false
}

// PromoteToAdmin flips a user's role directly in the database.
func (s *Suite) PromoteToAdmin(email string) {
	s.T.Helper()
	if _, err := s.DB.Exec("UPDATE users SET role = 'ADMIN' WHERE email = ?", email); err != nil {
		s.T.Fatalf("failed to promote user: %v", err)
	}
}

// TokenCounts returns the total and active refresh record counts for a user.
func (s *Suite) TokenCounts(userID string) (total, active int) {
	s.T.Helper()
	err := s.DB.QueryRow(
		"SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ?", userID).Scan(&total)
	if err != nil {
		s.T.Fatalf("failed to count tokens: %v", err)
	}
	err = s.DB.QueryRow(
		"SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?",
		userID, time.Now().UTC()).Scan(&active)
	if err != nil {
		s.T.Fatalf("failed to count active tokens: %v", err)
	}
	return total, active
}
