package botdefense

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/freetier/gateway/internal/sessiontoken"
	"codeberg.org/freetier/gateway/internal/turnstile"
)

type fakeVerifier struct {
	enabled bool
	valid   string
	calls   int
}

func (f *fakeVerifier) Enabled() bool {
	return f.enabled
}

func (f *fakeVerifier) Verify(_ context.Context, token string) turnstile.Result {
	f.calls++

	if token != "" && token == f.valid {
		return turnstile.Result{Success: true}
	}

	return turnstile.Result{Reasons: []string{turnstile.ReasonVerificationFailed}}
}

var secret = strings.Repeat("k", 32)

func TestCheck_Disabled(t *testing.T) {
	verifier := &fakeVerifier{enabled: false}
	d := New(verifier, sessiontoken.NewIssuer(), secret)

	out := d.Check(context.Background(), Proof{})
	assert.True(t, out.Passed)
	assert.Equal(t, MethodDisabled, out.Method)
	assert.Nil(t, out.Minted)
	assert.Zero(t, verifier.calls)
}

func TestCheck_TurnstileMintsSession(t *testing.T) {
	verifier := &fakeVerifier{enabled: true, valid: "human"}
	d := New(verifier, sessiontoken.NewIssuer(), secret)

	out := d.Check(context.Background(), Proof{TurnstileToken: "human"})
	require.True(t, out.Passed)
	assert.Equal(t, MethodTurnstile, out.Method)
	require.NotNil(t, out.Minted)

	// the minted token now stands in for turnstile
	again := d.Check(context.Background(), Proof{SessionToken: out.Minted.Value})
	assert.True(t, again.Passed)
	assert.Equal(t, MethodSession, again.Method)
	assert.Equal(t, 1, verifier.calls)
}

func TestCheck_TurnstileWithoutSessions(t *testing.T) {
	d := New(&fakeVerifier{enabled: true, valid: "human"}, sessiontoken.NewIssuer(), "")

	out := d.Check(context.Background(), Proof{TurnstileToken: "human"})
	assert.True(t, out.Passed)
	assert.Nil(t, out.Minted)
}

func TestCheck_TurnstileFailure(t *testing.T) {
	d := New(&fakeVerifier{enabled: true, valid: "human"}, sessiontoken.NewIssuer(), secret)

	for _, token := range []string{"", "bot"} {
		out := d.Check(context.Background(), Proof{TurnstileToken: token})
		assert.False(t, out.Passed)
		assert.Equal(t, turnstile.ReasonVerificationFailed, out.Reason)
		assert.Nil(t, out.Minted)
	}
}

func TestCheck_SessionIsExclusive(t *testing.T) {
	verifier := &fakeVerifier{enabled: true, valid: "human"}
	d := New(verifier, sessiontoken.NewIssuer(), secret)

	// a bad session is not rescued by a good turnstile token
	out := d.Check(context.Background(), Proof{SessionToken: "garbage", TurnstileToken: "human"})
	assert.False(t, out.Passed)
	assert.Equal(t, MethodSession, out.Method)
	assert.Zero(t, verifier.calls)
}

func TestCheck_ExpiredSession(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	stale, err := sessiontoken.NewIssuer(sessiontoken.WithClock(func() time.Time { return past })).Mint(secret)
	require.NoError(t, err)

	d := New(&fakeVerifier{enabled: true}, sessiontoken.NewIssuer(), secret)

	out := d.Check(context.Background(), Proof{SessionToken: stale.Value})
	assert.False(t, out.Passed)
	assert.Equal(t, sessiontoken.ReasonExpired, out.Reason)
}

func TestCheck_SessionSignedElsewhere(t *testing.T) {
	foreign, err := sessiontoken.NewIssuer().Mint(strings.Repeat("x", 32))
	require.NoError(t, err)

	d := New(&fakeVerifier{enabled: true}, sessiontoken.NewIssuer(), secret)

	out := d.Check(context.Background(), Proof{SessionToken: foreign.Value})
	assert.False(t, out.Passed)
	assert.Equal(t, sessiontoken.ReasonInvalidSignature, out.Reason)
}

func TestExchange(t *testing.T) {
	verifier := &fakeVerifier{enabled: true, valid: "human"}
	d := New(verifier, sessiontoken.NewIssuer(), secret)

	token, err := d.Exchange(context.Background(), "human")
	require.NoError(t, err)
	assert.Equal(t, sessiontoken.DefaultLifetime, token.ExpiresAt.Sub(token.IssuedAt))

	_, err = d.Exchange(context.Background(), "bot")
	assert.ErrorIs(t, err, ErrVerificationFailed)

	_, err = New(verifier, sessiontoken.NewIssuer(), "").Exchange(context.Background(), "human")
	assert.ErrorIs(t, err, ErrSessionsDisabled)
}
