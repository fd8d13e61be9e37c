package carebook

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type sentMail struct {
	To       string
	Template string
	Data     map[string]string
}

// fakeGateway records deliveries. Templates listed in fail return an error
// and are not recorded.
type fakeGateway struct {
	mu   sync.Mutex
	sent []sentMail
	fail map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{fail: map[string]bool{}}
}

func (g *fakeGateway) Send(_ context.Context, to, template string, data map[string]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fail[template] {
		return errors.New("smtp unavailable")
	}
	copied := make(map[string]string, len(data))
	for k, v := range data {
		copied[k] = v
	}
	g.sent = append(g.sent, sentMail{To: to, Template: template, Data: copied})
	return nil
}

func (g *fakeGateway) setFail(template string, fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[template] = fail
}

func (g *fakeGateway) count(template, to string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, m := range g.sent {
		if m.Template == template && m.To == to {
			n++
		}
	}
	return n
}

func (g *fakeGateway) last(t *testing.T, template, to string) sentMail {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := len(g.sent) - 1; i >= 0; i-- {
		if g.sent[i].Template == template && g.sent[i].To == to {
			return g.sent[i]
		}
	}
	t.Fatalf("no %s email sent to %s", template, to)
	return sentMail{}
}

func (g *fakeGateway) lastCode(t *testing.T, to string) string {
	t.Helper()
	return g.last(t, TemplateOTP, to).Data["code"]
}

func (g *fakeGateway) lastMagicToken(t *testing.T, to string) string {
	t.Helper()
	link := g.last(t, TemplateMagicLink, to).Data["link"]
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link %q: %v", link, err)
	}
	token := u.Query().Get("token")
	if token == "" {
		t.Fatalf("link %q has no token", link)
	}
	return token
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
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

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	mail   *fakeGateway
	clock  *testClock
}

// testConfig keeps argon2 cheap so password tests stay fast.
func testConfig() Config {
	cfg := validTestConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config), opts ...func(*Builder)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		mr:    mr,
		rdb:   rdb,
		mail:  newFakeGateway(),
		clock: &testClock{now: time.Now().Truncate(time.Millisecond)},
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithEmailGateway(env.mail).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// wrongCode returns a valid-format code different from code.
func wrongCode(code string) string {
	if code == "999999" {
		return "100000"
	}
	if code == "100000" {
		return "100001"
	}
	return "999999"
}

// wrongCodes returns n distinct valid-format codes, none equal to code.
func wrongCodes(code string, n int) []string {
	out := make([]string, 0, n)
	for _, c := range []string{"111111", "222222", "333333", "444444", "555555"} {
		if c != code && len(out) < n {
			out = append(out, c)
		}
	}
	return out
}

func isOneOf(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
