package auth

import (
	"context"
	"time"
)

// tokenIssuer produces the access+refresh Tokens pair handed out by every
// successful auth flow.
type tokenIssuer struct {
	access  *TokenService
	refresh *RefreshTokens
}

func (t tokenIssuer) issue(ctx context.Context, user User, replacing *RefreshToken) (Tokens, error) {
	refreshToken, err := t.refresh.Issue(ctx, user, replacing)
	if err != nil {
		return Tokens{}, err
	}

	accessToken, err := t.access.Issue(user.ID, time.Now())
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
