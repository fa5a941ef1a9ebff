package auth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-authcore"
)

const testSigningKey = "test-signing-key-0123456789abcdef"

// MockConfig implements auth.Config
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) GetSigningKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetPreviousSigningKeys() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockConfig) GetSigningMethod() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetContextKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetTokenTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockConfig) GetTokenLookup() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAuthScheme() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetIssuer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAudience() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockConfig) GetResetTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockConfig) GetResetLinkBaseURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetPasswordMinLength() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockConfig) GetPasswordMaxLength() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockConfig) GetStoreTimeout() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockConfig) GetNotifierTimeout() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func newMockConfig() *MockConfig {
	c := new(MockConfig)
	c.On("GetSigningKey").Return(testSigningKey).Maybe()
	c.On("GetPreviousSigningKeys").Return([]string{}).Maybe()
	c.On("GetSigningMethod").Return("HS256").Maybe()
	c.On("GetContextKey").Return("user").Maybe()
	c.On("GetTokenTTL").Return(time.Hour).Maybe()
	c.On("GetTokenLookup").Return("header:Authorization").Maybe()
	c.On("GetAuthScheme").Return("Bearer").Maybe()
	c.On("GetIssuer").Return("authcore-test").Maybe()
	c.On("GetAudience").Return([]string{"authcore-test"}).Maybe()
	c.On("GetResetTTL").Return(time.Hour).Maybe()
	c.On("GetResetLinkBaseURL").Return("https://example.com/reset-password").Maybe()
	c.On("GetPasswordMinLength").Return(6).Maybe()
	c.On("GetPasswordMaxLength").Return(72).Maybe()
	c.On("GetStoreTimeout").Return(time.Second).Maybe()
	c.On("GetNotifierTimeout").Return(time.Second).Maybe()
	return c
}

// MockCredentialStore implements auth.CredentialStore
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) FindByIdentifier(ctx context.Context, identifier string) (*auth.Account, error) {
	args := m.Called(ctx, identifier)
	if acc, ok := args.Get(0).(*auth.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCredentialStore) Create(ctx context.Context, identifier, secretHash string) (*auth.Account, error) {
	args := m.Called(ctx, identifier, secretHash)
	if acc, ok := args.Get(0).(*auth.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCredentialStore) UpdateSecret(ctx context.Context, identifier, secretHash string) error {
	args := m.Called(ctx, identifier, secretHash)
	return args.Error(0)
}

// MockLogger implements auth.Logger
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) { m.Called(format, args) }
func (m *MockLogger) Info(format string, args ...any)  { m.Called(format, args) }
func (m *MockLogger) Warn(format string, args ...any)  { m.Called(format, args) }
func (m *MockLogger) Error(format string, args ...any) { m.Called(format, args) }

// captureLogger keeps formatted messages for assertions
type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureLogger) add(level, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, level+" "+fmt.Sprintf(format, args...))
}

func (c *captureLogger) Debug(format string, args ...any) { c.add("DBG", format, args...) }
func (c *captureLogger) Info(format string, args ...any)  { c.add("INF", format, args...) }
func (c *captureLogger) Warn(format string, args ...any)  { c.add("WRN", format, args...) }
func (c *captureLogger) Error(format string, args ...any) { c.add("ERR", format, args...) }

func (c *captureLogger) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

// outbox is a notifier that remembers every reset link it was asked to send
type outbox struct {
	mu    sync.Mutex
	sent  map[string][]string
	fail  error
	calls int
}

func newOutbox() *outbox {
	return &outbox{sent: make(map[string][]string)}
}

func (o *outbox) SendResetLink(_ context.Context, identifier, rawToken string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.fail != nil {
		return o.fail
	}
	o.sent[identifier] = append(o.sent[identifier], rawToken)
	return nil
}

func (o *outbox) Last(identifier string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	tokens := o.sent[identifier]
	if len(tokens) == 0 {
		return ""
	}
	return tokens[len(tokens)-1]
}

func (o *outbox) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// eventLog is an ActivitySink that keeps events in memory
type eventLog struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (e *eventLog) Record(_ context.Context, event auth.ActivityEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *eventLog) Types() []auth.ActivityEventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.EventType)
	}
	return out
}

type harness struct {
	auther *auth.Auther
	store  *auth.MemoryStore
	tokens *auth.TokenServiceImpl
	outbox *outbox
	events *eventLog
	cfg    *MockConfig
}

func newHarness(t *testing.T, opts ...auth.TokenServiceOption) *harness {
	t.Helper()

	cfg := newMockConfig()
	tokens, err := auth.NewTokenServiceFromConfig(cfg, opts...)
	require.NoError(t, err)

	store := auth.NewMemoryStore()
	box := newOutbox()
	events := &eventLog{}

	auther := auth.NewAuthenticator(store, store, tokens, cfg).
		WithLogger(&captureLogger{}).
		WithHasher(auth.NewBcryptHasher(bcrypt.MinCost)).
		WithNotifier(box).
		WithActivitySink(events)

	return &harness{
		auther: auther,
		store:  store,
		tokens: tokens,
		outbox: box,
		events: events,
		cfg:    cfg,
	}
}
