package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/storefront-be/internal/auth"
	"github.com/hongminglow/storefront-be/internal/clock"
	"github.com/hongminglow/storefront-be/internal/delivery"
	"github.com/hongminglow/storefront-be/internal/models"
	"github.com/hongminglow/storefront-be/internal/otp"
	"github.com/hongminglow/storefront-be/internal/storage/memory"
)

type captureSender struct {
	mu   sync.Mutex
	sent map[string]delivery.Message
	err  error
}

func newCaptureSender() *captureSender {
	return &captureSender{sent: map[string]delivery.Message{}}
}

func (c *captureSender) Send(_ context.Context, to string, msg delivery.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent[to] = msg
	return nil
}

type fixedCode string

func (f fixedCode) Generate() (string, error) { return string(f), nil }

type fixture struct {
	svc    *Service
	users  *memory.Store
	codes  *otp.MemoryStore
	tokens *auth.TokenIssuer
	clock  *clock.Fake
	email  *captureSender
	sms    *captureSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))
	users := memory.New(memory.WithClock(clk))
	codes := otp.NewMemoryStore(clk)
	tokens, err := auth.NewTokenIssuer(auth.Config{
		AccessSecret:  "access",
		RefreshSecret: "refresh",
		Issuer:        "storefront-test",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
	}, clk)
	require.NoError(t, err)

	f := &fixture{users: users, codes: codes, tokens: tokens, clock: clk, email: newCaptureSender(), sms: newCaptureSender()}
	f.svc = New(Params{
		Users:     users,
		Codes:     codes,
		Generator: fixedCode("482913"),
		Tokens:    tokens,
		Email:     f.email,
		SMS:       f.sms,
		Brand:     "Acme",
		CodeTTL:   5 * time.Minute,
	})
	return f
}

func TestEmailCodeIsConsumedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.RequestEmailCode(ctx, "Alice@Example.com", "Alice", "s3cret!"))
	msg, ok := f.email.sent["alice@example.com"]
	require.True(t, ok)
	assert.Contains(t, msg.Body, "482913")

	conf, err := f.svc.ConfirmEmailCode(ctx, "alice@example.com", "482913")
	require.NoError(t, err)
	assert.False(t, conf.Onboarded)
	assert.Equal(t, "Alice", conf.User.Name)
	assert.True(t, auth.CheckPassword(conf.User.PasswordHash, "s3cret!"))

	claims, err := f.tokens.ParseAccess(conf.Tokens.AccessToken)
	require.NoError(t, err)
	assert.False(t, claims.Onboarded)
	assert.Empty(t, claims.Roles)
	assert.Equal(t, "alice@example.com", claims.Email)

	stored, err := f.users.FindUserByIdentity(ctx, models.EmailIdentity{Address: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, conf.User.ID, stored.ID)

	_, err = f.svc.ConfirmEmailCode(ctx, "alice@example.com", "482913")
	require.ErrorIs(t, err, ErrInvalidOrExpired)
}

func TestRequestCodeRejectsExistingUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.users.CreateUser(ctx, models.User{Identity: models.EmailIdentity{Address: "bob@example.com"}, Name: "Bob"})
	require.NoError(t, err)

	err = f.svc.RequestEmailCode(ctx, "bob@example.com", "Bob", "pw")
	require.ErrorIs(t, err, ErrAlreadyExists)
	assert.Empty(t, f.email.sent)
	assert.Equal(t, 0, f.codes.Len())
}

func TestDeliveryFailureKeepsPendingCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.email.err = errors.New("smtp: 421 try later")

	err := f.svc.RequestEmailCode(ctx, "carol@example.com", "Carol", "pw")
	require.ErrorIs(t, err, ErrDelivery)
	assert.Contains(t, err.Error(), "421")

	_, err = f.svc.ConfirmEmailCode(ctx, "carol@example.com", "482913")
	require.NoError(t, err)
}

func TestConfirmRejectsWrongAndExpiredCodes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.svc.RequestEmailCode(ctx, "dave@example.com", "Dave", "pw"))

	_, err := f.svc.ConfirmEmailCode(ctx, "dave@example.com", "000000")
	require.ErrorIs(t, err, ErrInvalidOrExpired)
	_, err = f.svc.ConfirmEmailCode(ctx, "nobody@example.com", "482913")
	require.ErrorIs(t, err, ErrInvalidOrExpired)

	f.clock.Advance(5*time.Minute + time.Second)
	_, err = f.svc.ConfirmEmailCode(ctx, "dave@example.com", "482913")
	require.ErrorIs(t, err, ErrInvalidOrExpired)

	_, err = f.users.FindUserByIdentity(ctx, models.EmailIdentity{Address: "dave@example.com"})
	require.Error(t, err)
}

func TestSMSFlowIssuesPhoneTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.RequestSMSCode(ctx, " +60123456789 ", "Erin", "pw"))
	msg, ok := f.sms.sent["+60123456789"]
	require.True(t, ok)
	assert.Equal(t, "Your otp for Acme is: 482913", msg.Body)

	conf, err := f.svc.ConfirmSMSCode(ctx, "+60123456789", "482913")
	require.NoError(t, err)
	assert.Equal(t, "+60123456789", conf.User.PhoneNumber())

	claims, err := f.tokens.ParseRefresh(conf.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "+60123456789", claims.PhoneNumber)
	assert.Empty(t, claims.Email)
}

func TestRequestCodeValidatesInput(t *testing.T) {
	f := newFixture(t)
	err := f.svc.RequestSMSCode(context.Background(), "", "Frank", "pw")
	require.ErrorIs(t, err, ErrInvalidInput)
	err = f.svc.RequestEmailCode(context.Background(), "frank@example.com", " ", "pw")
	require.ErrorIs(t, err, ErrInvalidInput)
}
