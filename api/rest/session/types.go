package session

import (
	"context"

	"codeberg.org/freetier/gateway/internal/sessiontoken"
)

type Request struct {
	TurnstileToken string `json:"turnstileToken"`
}

type Response struct {
	Success      bool   `json:"success"`
	SessionToken string `json:"sessionToken"`
	ExpiresAt    string `json:"expiresAt"`
}

type Exchanger interface {
	Exchange(ctx context.Context, turnstileToken string) (*sessiontoken.Token, error)
}
