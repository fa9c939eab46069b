package client

import (
	"context"
	"errors"
)

const sessionKey = "session"

// Session composes the API client with a persisted User so a sign-in
// survives process restarts. A new Session over the same store resumes the
// stored session.
type Session struct {
	api   *Client
	state *Persisted[User]
}

func NewSession(api *Client, store SessionStore) *Session {
	return &Session{
		api:   api,
		state: NewPersisted[User](store, sessionKey, nil),
	}
}

// Current returns the signed-in user, if any.
func (s *Session) Current() (User, bool) {
	user := s.state.Value()
	return user, user.AccessToken != ""
}

func (s *Session) Login(ctx context.Context, email, password string) (User, error) {
	user, err := s.api.Login(ctx, email, password)
	if err != nil {
		return User{}, err
	}

	s.state.Set(user)
	return user, nil
}

func (s *Session) Register(ctx context.Context, email, password, confirmPassword string) (User, error) {
	user, err := s.api.Register(ctx, email, password, confirmPassword)
	if err != nil {
		return User{}, err
	}

	s.state.Set(user)
	return user, nil
}

// ExternalLogin signs in with a provider ID token. The server reports the
// resolved account email, so the persisted session can refresh like any other.
func (s *Session) ExternalLogin(ctx context.Context, idToken string) (User, error) {
	user, err := s.api.ExternalLogin(ctx, idToken)
	if err != nil {
		return User{}, err
	}

	s.state.Set(user)
	return user, nil
}

// Refresh rotates the current token pair. A rejected refresh token clears
// the session entirely: a forced logout, never a silent retry.
func (s *Session) Refresh(ctx context.Context) (User, error) {
	current, ok := s.Current()
	if !ok {
		return User{}, ErrInvalidToken
	}

	user, err := s.api.RefreshToken(ctx, current.Email, current.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			s.state.Reset()
		}
		return User{}, err
	}

	s.state.Set(user)
	return user, nil
}

// Logout revokes the server-side session and always clears the local one,
// even when the server call fails.
func (s *Session) Logout(ctx context.Context) error {
	current, ok := s.Current()
	if !ok {
		return nil
	}

	err := s.api.Logout(ctx, current.AccessToken)
	s.state.Reset()
	return err
}
