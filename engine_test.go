package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/zengzjie/food-delivery-sass/auth/password"
	"github.com/zengzjie/food-delivery-sass/auth/session"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memUserStore struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]*User{}}
}

func (s *memUserStore) find(match func(*User) bool) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	return s.find(func(u *User) bool { return u.Email == email })
}

func (s *memUserStore) FindByID(_ context.Context, id string) (*User, error) {
	return s.find(func(u *User) bool { return u.ID == id })
}

func (s *memUserStore) FindByMobile(_ context.Context, mobile string) (*User, error) {
	return s.find(func(u *User) bool { return u.Mobile == mobile })
}

func (s *memUserStore) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return ErrAccountExists
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *memUserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *memUserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

type captureMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) last(t *testing.T) Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail sent")
	}
	return m.sent[len(m.sent)-1]
}

func testConfig(clock *testClock) Config {
	cfg := DefaultConfig()
	cfg.Tokens.AccessSecret = []byte("access-secret-0123456789")
	cfg.Tokens.RefreshSecret = []byte("refresh-secret-0123456789")
	cfg.Tokens.ActivationSecret = []byte("activation-secret-0123456789")
	cfg.Tokens.ResetSecret = []byte("reset-secret-0123456789")
	cfg.Tokens.AccessTTL = time.Minute
	cfg.Tokens.RefreshTTL = 10 * time.Minute
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Gate.OperationRoles["adminReport"] = []string{"admin"}
	cfg.Metrics.Enabled = true
	cfg.Now = clock.Now
	return cfg
}

type testEnv struct {
	engine *Engine
	users  *memUserStore
	mailer *captureMailer
	clock  *testClock
	mr     *miniredis.Miniredis
}

// newTestEngine builds an Engine over a memory registry. withRedis swaps in
// miniredis for the registry and both throttles.
func newTestEngine(t *testing.T, withRedis bool, mutate func(*Config)) *testEnv {
	t.Helper()
	env := &testEnv{
		users:  newMemUserStore(),
		mailer: &captureMailer{},
		clock:  newTestClock(),
	}
	cfg := testConfig(env.clock)
	if mutate != nil {
		mutate(&cfg)
	}

	b := New().WithConfig(cfg).WithCredentialStore(env.users).WithMailer(env.mailer)
	if withRedis {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("miniredis start: %v", err)
		}
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() {
			rdb.Close()
			mr.Close()
		})
		env.mr = mr
		b = b.WithRedis(rdb)
	} else {
		b = b.WithRegistry(session.NewMemoryStore().WithClock(env.clock.Now))
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) seedUser(t *testing.T, id, email, plain, role string) *User {
	t.Helper()
	h, err := password.NewHasher(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	hash, err := h.Hash(plain)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	u := &User{ID: id, Email: email, PasswordHash: hash, Name: "Alice", Role: role, Mobile: "555-" + id}
	if err := env.users.Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return u
}

func (env *testEnv) login(t *testing.T, email, plain string) *TokenPair {
	t.Helper()
	pair, err := env.engine.Login(context.Background(), email, plain)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return pair
}

func requireRejected(t *testing.T, out Outcome, want *Error) {
	t.Helper()
	if out.State != StateRejected || !errors.Is(out.Err, want) {
		t.Fatalf("expected rejection %s, got state=%s err=%v", want.Code, out.State, out.Err)
	}
}

func TestNthLoginSupersedesPreviousToken(t *testing.T) {
	for _, withRedis := range []bool{false, true} {
		env := newTestEngine(t, withRedis, nil)
		env.seedUser(t, "u-1", "alice@example.com", "secret-pw", "user")
		ctx := context.Background()

		var tokens []string
		for i := 0; i < 3; i++ {
			tokens = append(tokens, env.login(t, "alice@example.com", "secret-pw").AccessToken)
		}
		for i, tok := range tokens[:2] {
			out := env.engine.Authorize(ctx, Operation{Name: "getUserDetail", Token: tok})
			requireRejected(t, out, ErrSupersededSession)
			if out.Err.Message != "Your account has been logged in from another location, please log in again." {
				t.Fatalf("login %d: unexpected message %q", i, out.Err.Message)
			}
		}
		out := env.engine.Authorize(ctx, Operation{Name: "getUserDetail", Token: tokens[2]})
		if out.State != StateAuthorized || out.Identity.SubjectID != "u-1" || out.Identity.Role != "user" {
			t.Fatalf("redis=%v: latest token should authorize, got %+v", withRedis, out)
		}
	}
}

func TestTwoDeviceScenario(t *testing.T) {
	env := newTestEngine(t, false, nil)
	env.seedUser(t, "u-1", "alice@example.com", "secret-pw", "user")
	ctx := context.Background()

	device1 := env.login(t, "alice@example.com", "secret-pw")
	if out := env.engine.Authorize(ctx, Operation{Name: "getUserDetail", Token: device1.AccessToken}); !out.Allowed() {
		t.Fatalf("device1 should work before device2 logs in: %v", out.Err)
	}

	device2 := env.login(t, "alice@example.com", "secret-pw")
	requireRejected(t, env.engine.Authorize(ctx, Operation{Name: "getUserDetail", Token: device1.AccessToken}), ErrSupersededSession)
	if out := env.engine.Authorize(ctx, Operation{Name: "getUserDetail", Token: device2.AccessToken}); !out.Allowed() {
		t.Fatalf("device2 should be authorized: %v", out.Err)
	}

	// device1's refresh token is no longer paired with the record.
	_, err := env.engine.Refresh(ctx, device1.RefreshToken)
	if !errors.Is(err, ErrRefreshFailed) || !errors.Is(err, ErrSupersededSession) {
		t.Fatalf("device1 refresh should fail as superseded, got %v", err)
	}
	if out := env.engine.Authorize(ctx, Operation{Name: "getUserDetail", Token: device2.AccessToken}); !out.Allowed() {
		t.Fatal("failed device1 refresh must not disturb device2")
	}
}

func TestPublicOperationAsymmetry(t *testing.T) {
	env := newTestEngine(t, false, nil)
	env.seedUser(t, "u-1", "alice@example.com", "secret-pw", "user")
	ctx := context.Background()

	old := env.login(t, "alice@example.com", "secret-pw")
	current := env.login(t, "alice@example.com", "secret-pw")

	for _, tok := range []string{"", "garbage", old.AccessToken} {
		out := env.engine.Authorize(ctx, Operation{Name: "login", Token: tok})
		if out.State != StatePublicAllowed || out.Identity != nil || out.Err != nil {
			t.Fatalf("token %.10q: expected anonymous public, got %+v", tok, out)
		}
	}
	out := env.engine.Authorize(ctx, Operation{Name: "login", Token: current.AccessToken})
	if out.State != StatePublicAllowed || out.Identity == nil || out.Identity.SubjectID != "u-1" {
		t.Fatalf("current token should attach identity on public op, got %+v", out)
	}

	env.clock.Advance(2 * time.Minute)
	out = env.engine.Authorize(ctx, Operation{Name: "login", Token: current.AccessToken})
	if !out.Allowed() || out.Identity == nil {
		t.Fatalf("public op never verifies expiry, got %+v", out)
	}
}

func TestProtectedRejections(t *testing.T) {
	env := newTestEngine(t, false, nil)
	env.seedUser(t, "u-1", "alice@example.com", "secret-pw", "user")
	ctx := context.Background()

	requireRejected(t, env.engine.Authorize(ctx, Operation{Name: "getUserDetail"}), ErrUnauthenticated)
	requireRejected(t, env.engine.Authorize(ctx, Operation{Name: "getUserDetail", Token: "not-a-jwt"}), ErrUnauthenticated)

	pair := env.login(t, "alice@example.com", "secret-pw")
	requireRejected(t, env.engine.Authorize(ctx, Operation{Name: "adminReport", Token: pair.AccessToken}), ErrForbidden)

	// A mixed document is protected as a whole, and every field's role counts.
	requireRejected(t, env.engine.Authorize(ctx, Operation{Fields: []string{"login", "deleteUser"}}), ErrUnauthenticated)
	requireRejected(t, env.engine.Authorize(ctx, Operation{
		Name:   "getUserDetail",
		Fields: []string{"getUserDetail", "adminReport"},
		Token:  pair.AccessToken,
	}), ErrForbidden)
	if out := env.engine.Authorize(ctx, Operation{Fields: []string{"login", "register"}}); out.State != StatePublicAllowed {
		t.Fatalf("all-public document: %+v", out)
	}

	if err := env.engine.Logout(ctx, "u-1"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	requireRejected(t, env.engine.Authorize(ctx, Operation{Name: "getUserDetail", Token: pair.AccessToken}), ErrUnauthenticated)
	if err := env.engine.Logout(ctx, "u-1"); err != nil {
		t.Fatalf("second Logout should be idempotent: %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricGateForbidden] != 1 || snap.Counters[MetricGateUnauthenticated] != 3 {
		t.Fatalf("unexpected gate counters %+v", snap.Counters)
	}
}

func TestExpiryThenRefreshScenario(t *testing.T) {
	env := newTestEngine(t, false, nil)
	env.seedUser(t, "u-1", "alice@example.com", "secret-pw", "user")
	ctx := context.Background()

	pair := env.login(t, "alice@example.com", "secret-pw")
	env.clock.Advance(61 * time.Second)

	requireRejected(t, env.engine.Authorize(ctx, Operation{Name: "getUserDetail", Token: pair.AccessToken}), ErrTokenExpired)

	next, err := env.engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.AccessToken == pair.AccessToken || next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh must issue a new pair")
	}
	if out := env.engine.Authorize(ctx, Operation{Name: "getUserDetail", Token: next.AccessToken}); !out.Allowed() {
		t.Fatalf("replayed operation with new token should pass: %v", out.Err)
	}
	requireRejected(t, env.engine.Authorize(ctx, Operation{Name: "getUserDetail", Token: pair.AccessToken}), ErrSupersededSession)

	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("rotated refresh token must not work twice, got %v", err)
	}
}

func TestRefreshFailures(t *testing.T) {
	env := newTestEngine(t, false, nil)
	env.seedUser(t, "u-1", "alice@example.com", "secret-pw", "user")
	ctx := context.Background()
	pair := env.login(t, "alice@example.com", "secret-pw")

	cases := []struct {
		name  string
		token string
		cause *Error
	}{
		{"empty", "", ErrUnauthenticated},
		{"garbage", "x.y.z", ErrTokenMalformed},
		{"access token", pair.AccessToken, ErrWrongTokenPurpose},
	}
	for _, tc := range cases {
		_, err := env.engine.Refresh(ctx, tc.token)
		if !errors.Is(err, ErrRefreshFailed) || !errors.Is(err, tc.cause) {
			t.Fatalf("%s: expected REFRESH_FAILED wrapping %s, got %v", tc.name, tc.cause.Code, err)
		}
		if AsError(err).HTTPStatus() != 403 {
			t.Fatalf("%s: refresh failures map to 403", tc.name)
		}
	}

	env.clock.Advance(11 * time.Minute)
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expired refresh: got %v", err)
	}
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	env := newTestEngine(t, true, nil)
	env.seedUser(t, "u-1", "alice@example.com", "secret-pw", "user")
	pair := env.login(t, "alice@example.com", "secret-pw")

	const n = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.engine.Refresh(context.Background(), pair.RefreshToken); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one refresh to win, got %d", wins)
	}
}

func TestRefreshAfterAccountDeleted(t *testing.T) {
	env := newTestEngine(t, false, nil)
	env.seedUser(t, "u-1", "alice@example.com", "secret-pw", "user")
	ctx := context.Background()
	pair := env.login(t, "alice@example.com", "secret-pw")

	if err := env.engine.DeleteAccount(ctx, "u-1"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("refresh after delete: got %v", err)
	}
	if err := env.engine.DeleteAccount(ctx, "u-1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("second delete: got %v", err)
	}
	if _, err := env.engine.CurrentIdentity(ctx, "u-1"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("identity after delete: got %v", err)
	}
}

func TestLoginInvalidCredentialsAndThrottle(t *testing.T) {
	env := newTestEngine(t, true, func(cfg *Config) {
		cfg.Security.MaxLoginAttempts = 2
	})
	env.seedUser(t, "u-1", "alice@example.com", "secret-pw", "user")
	ctx := context.Background()

	if _, err := env.engine.Login(ctx, "alice@example.com", ""); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("empty password: got %v", err)
	}
	for i := 0; i < 2; i++ {
		_, err := env.engine.Login(ctx, "alice@example.com", "wrong-pw")
		if !errors.Is(err, ErrInvalidCredentials) || err.Error() != "Invalid credentials" {
			t.Fatalf("attempt %d: got %v", i, err)
		}
	}
	_, err := env.engine.Login(ctx, "ALICE@example.com", "secret-pw")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected throttle after budget, got %v", err)
	}
	if d, ok := RetryAfter(err); !ok || d != 15*time.Minute {
		t.Fatalf("expected the full 15m window, got %v %v", d, ok)
	}
	if msg := AsError(err).Message; msg != "Too many attempts, please try again in 15m0s." {
		t.Fatalf("unexpected message %q", msg)
	}

	env.mr.FastForward(16 * time.Minute)
	if _, err := env.engine.Login(ctx, "alice@example.com", "secret-pw"); err != nil {
		t.Fatalf("login after cooldown: %v", err)
	}
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	env := newTestEngine(t, false, nil)
	legacy, err := password.HashLegacy("secret-pw")
	if err != nil {
		t.Fatalf("HashLegacy: %v", err)
	}
	_ = env.users.Create(context.Background(), &User{ID: "u-1", Email: "old@example.com", PasswordHash: legacy})

	env.login(t, "old@example.com", "secret-pw")
	u, _ := env.users.FindByID(context.Background(), "u-1")
	if !strings.HasPrefix(u.PasswordHash, "$argon2id$") {
		t.Fatalf("legacy hash not upgraded: %q", u.PasswordHash)
	}
	env.login(t, "old@example.com", "secret-pw")
}

func TestRegisterAndActivate(t *testing.T) {
	env := newTestEngine(t, false, nil)
	ctx := context.Background()
	in := RegisterInput{
		Name: "Bob", Email: "Bob@Example.com", Password: "bob-secret",
		Mobile: "555-0100", Address: "1 Main St", Sex: "male",
	}

	token, err := env.engine.Register(ctx, in)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	msg := env.mailer.last(t)
	if msg.To != "bob@example.com" || msg.Template != "activation-mail" || msg.Data["name"] != "Bob" {
		t.Fatalf("unexpected activation mail %+v", msg)
	}
	code := msg.Data["activationCode"]
	if len(code) != 6 {
		t.Fatalf("expected 6 digit code, got %q", code)
	}

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	if _, err := env.engine.Activate(ctx, token, wrong); !errors.Is(err, ErrActivationInvalid) {
		t.Fatalf("wrong code: got %v", err)
	}

	user, err := env.engine.Activate(ctx, token, code)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if user.Role != "user" || user.AvatarURL != "https://github.com/shadcn.png" || user.Email != "bob@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}
	if _, err := env.engine.Activate(ctx, token, code); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("second activation: got %v", err)
	}

	env.login(t, "bob@example.com", "bob-secret")

	if _, err := env.engine.Register(ctx, in); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("duplicate email: got %v", err)
	}
	in.Email = "other@example.com"
	if _, err := env.engine.Register(ctx, in); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("duplicate mobile: got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEngine(t, false, func(cfg *Config) {
		cfg.Registration.AllowedEmailDomains = []string{"gmail.com"}
	})
	ctx := context.Background()
	base := RegisterInput{Name: "Bob", Email: "bob@gmail.com", Password: "bob-secret", Mobile: "1", Address: "a", Sex: "male"}

	missing := base
	missing.Address = ""
	if _, err := env.engine.Register(ctx, missing); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("missing field: got %v", err)
	}
	other := base
	other.Email = "bob@example.com"
	if _, err := env.engine.Register(ctx, other); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("disallowed domain: got %v", err)
	}
	short := base
	short.Password = "abc"
	if _, err := env.engine.Register(ctx, short); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("short password: got %v", err)
	}

	env.mailer.err = errors.New("smtp down")
	if _, err := env.engine.Register(ctx, base); !errors.Is(err, ErrInternal) {
		t.Fatalf("mail failure: got %v", err)
	}
}

func TestActivationExpires(t *testing.T) {
	env := newTestEngine(t, false, nil)
	ctx := context.Background()
	token, err := env.engine.Register(ctx, RegisterInput{
		Name: "Bob", Email: "bob@example.com", Password: "bob-secret", Mobile: "1", Address: "a", Sex: "male",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	code := env.mailer.last(t).Data["activationCode"]

	env.clock.Advance(6 * time.Minute)
	if _, err := env.engine.Activate(ctx, token, code); !errors.Is(err, ErrActivationInvalid) {
		t.Fatalf("expired activation: got %v", err)
	}
}
