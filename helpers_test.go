package guardian_test

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-guardian"
	"github.com/stretchr/testify/require"
)

var testArgon2Params = guardian.Argon2Params{Time: 1, Memory: 1024, Threads: 1}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const (
	testSalt     = "test-salt-value"
	testPassword = "Sup3r$ecret!"
)

type testConfig struct {
	signingKey     string
	issuer         string
	ttlHours       int
	tokenLookup    string
	authScheme     string
	cookieName     string
	cookiePath     string
	cookieDomain   string
	cookieSecure   bool
	cookieSameSite string
	cookieMaxAge   int
	responseHeader string
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey:     "test-signing-key-0123456789",
		issuer:         "guardian-test",
		ttlHours:       1,
		cookieName:     "guardian-id",
		cookiePath:     "/",
		cookieSameSite: "lax",
		cookieMaxAge:   3600,
	}
}

func (c *testConfig) GetSigningKey() string     { return c.signingKey }
func (c *testConfig) GetTokenIssuer() string    { return c.issuer }
func (c *testConfig) GetTokenExpiration() int   { return c.ttlHours }
func (c *testConfig) GetTokenLookup() string    { return c.tokenLookup }
func (c *testConfig) GetAuthScheme() string     { return c.authScheme }
func (c *testConfig) GetCookieName() string     { return c.cookieName }
func (c *testConfig) GetCookiePath() string     { return c.cookiePath }
func (c *testConfig) GetCookieDomain() string   { return c.cookieDomain }
func (c *testConfig) GetCookieSecure() bool     { return c.cookieSecure }
func (c *testConfig) GetCookieSameSite() string { return c.cookieSameSite }
func (c *testConfig) GetCookieMaxAge() int      { return c.cookieMaxAge }
func (c *testConfig) GetResponseHeader() string { return c.responseHeader }

// testClock is a settable clock shared by the components under test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: fixedNow}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestHasher() guardian.PasswordHasher {
	return guardian.NewArgon2Hasher(testSalt, testArgon2Params)
}

// countingHasher counts digests computed by the wrapped hasher
type countingHasher struct {
	guardian.PasswordHasher
	calls atomic.Int64
}

func (h *countingHasher) Hash(plaintext string) string {
	h.calls.Add(1)
	return h.PasswordHasher.Hash(plaintext)
}

// newSQLiteStore returns a migrated store on a temporary sqlite file
func newSQLiteStore(t *testing.T, clock func() time.Time) *guardian.BunAccountStore {
	t.Helper()

	db, err := guardian.OpenDatabase(guardian.DriverSQLite, filepath.Join(t.TempDir(), "guardian.db"))
	require.NoError(t, err)

	repo := guardian.NewRepositoryManager(db, guardian.DriverSQLite, guardian.WithBunStoreClock(clock))
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.Migrate(context.Background()))
	store, ok := repo.Accounts().(*guardian.BunAccountStore)
	require.True(t, ok)
	return store
}

// fakeTransport records what the pipeline writes to the response
type fakeTransport struct {
	cookies    map[string]string
	headers    map[string]string
	setCookies []*http.Cookie
	setHeaders map[string]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		cookies:    map[string]string{},
		headers:    map[string]string{},
		setHeaders: map[string]string{},
	}
}

func (f *fakeTransport) Cookie(name string) string    { return f.cookies[name] }
func (f *fakeTransport) Header(name string) string    { return f.headers[name] }
func (f *fakeTransport) SetCookie(cookie *http.Cookie) { f.setCookies = append(f.setCookies, cookie) }
func (f *fakeTransport) SetHeader(name, value string)  { f.setHeaders[name] = value }

// recordingSink keeps every activity event
type recordingSink struct {
	mu     sync.Mutex
	events []guardian.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event guardian.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) Types() []guardian.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]guardian.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// memoryCodes is an in-process OneTimeCodes with a fixed code
type memoryCodes struct {
	mu    sync.Mutex
	code  string
	codes map[string]string
}

func newMemoryCodes(code string) *memoryCodes {
	return &memoryCodes{code: code, codes: map[string]string{}}
}

func (m *memoryCodes) Issue(_ context.Context, purpose, accountID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[purpose+":"+accountID] = m.code
	return m.code, nil
}

func (m *memoryCodes) Verify(_ context.Context, purpose, accountID, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := purpose + ":" + accountID
	if stored, ok := m.codes[key]; ok && stored == code {
		delete(m.codes, key)
		return true, nil
	}
	return false, nil
}

// notifications captures codes delivered by the account service
type notifications struct {
	mu   sync.Mutex
	sent []string
}

func (n *notifications) Notify(_ context.Context, account *guardian.Account, purpose, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, purpose+":"+account.ID+":"+code)
	return nil
}

func (n *notifications) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}
