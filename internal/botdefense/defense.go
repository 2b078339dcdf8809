// Package botdefense decides whether a request carries proof of a human.
// A request proves itself either with a session token minted earlier or
// with a fresh Turnstile token, never both: when a session token is
// present only the session is checked.
package botdefense

import (
	"context"
	"errors"

	"codeberg.org/freetier/gateway/internal/logger"
	"codeberg.org/freetier/gateway/internal/sessiontoken"
	"codeberg.org/freetier/gateway/internal/turnstile"
)

var (
	ErrVerificationFailed = errors.New("bot verification failed")
	ErrSessionsDisabled   = errors.New("session tokens are not configured")
)

// how a request passed
type Method string

const (
	MethodDisabled  Method = "disabled"
	MethodSession   Method = "session"
	MethodTurnstile Method = "turnstile"
)

type BotVerifier interface {
	Enabled() bool
	Verify(ctx context.Context, token string) turnstile.Result
}

type Proof struct {
	TurnstileToken string
	SessionToken   string
}

type Outcome struct {
	Passed bool
	Method Method

	// internal only; clients see TurnstileFailed
	Reason string

	// set after a turnstile success when sessions are configured
	Minted *sessiontoken.Token
}

type Defense struct {
	verifier      BotVerifier
	issuer        *sessiontoken.Issuer
	sessionSecret string
}

func New(verifier BotVerifier, issuer *sessiontoken.Issuer, sessionSecret string) *Defense {
	return &Defense{
		verifier:      verifier,
		issuer:        issuer,
		sessionSecret: sessionSecret,
	}
}

func (d *Defense) Enabled() bool {
	return d.verifier.Enabled()
}

func (d *Defense) SessionsEnabled() bool {
	return d.sessionSecret != ""
}

func (d *Defense) Check(ctx context.Context, proof Proof) Outcome {
	if !d.verifier.Enabled() {
		return Outcome{Passed: true, Method: MethodDisabled}
	}

	if proof.SessionToken != "" && d.SessionsEnabled() {
		v := d.issuer.Verify(proof.SessionToken, d.sessionSecret)
		if !v.Valid {
			logger.FromContext(ctx).Debug("session token rejected", "reason", v.Reason)
			return Outcome{Method: MethodSession, Reason: v.Reason}
		}

		return Outcome{Passed: true, Method: MethodSession}
	}

	res := d.verifier.Verify(ctx, proof.TurnstileToken)
	if !res.Success {
		return Outcome{Method: MethodTurnstile, Reason: firstReason(res.Reasons)}
	}

	outcome := Outcome{Passed: true, Method: MethodTurnstile}

	if d.SessionsEnabled() {
		token, err := d.issuer.Mint(d.sessionSecret)
		if err != nil {
			logger.ErrorErr(err, "failed to mint session token")
		} else {
			outcome.Minted = token
		}
	}

	return outcome
}

// trades a turnstile token for a session token
func (d *Defense) Exchange(ctx context.Context, turnstileToken string) (*sessiontoken.Token, error) {
	if !d.SessionsEnabled() {
		return nil, ErrSessionsDisabled
	}

	if d.verifier.Enabled() {
		if res := d.verifier.Verify(ctx, turnstileToken); !res.Success {
			return nil, ErrVerificationFailed
		}
	}

	return d.issuer.Mint(d.sessionSecret)
}

func firstReason(reasons []string) string {
	if len(reasons) == 0 {
		return turnstile.ReasonVerificationFailed
	}

	return reasons[0]
}
