package gotrue

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/tracenation/tracenation-api/internal/adapters/authsession"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
)

// Session is the IdentityService of one browser session.
type Session struct {
	client *Client
	holder *authsession.Holder
}

var _ ports.IdentityService = (*Session)(nil)

// GetSession returns the held session, refreshing the access token when it
// is about to expire. A rejected refresh token clears the session.
func (s *Session) GetSession(ctx context.Context) (*domainauth.Session, error) {
	cur, err := s.holder.Load(ctx)
	if err != nil || cur == nil {
		return nil, err
	}
	if s.client.fresh(cur.Token) {
		return cur, nil
	}
	if cur.Token == nil || cur.Token.RefreshToken == "" {
		s.holder.Clear(ctx)
		return nil, nil
	}

	_, err, _ = s.client.refreshes.Do(s.holder.SID(), func() (any, error) {
		// an earlier flight may already have rotated the token
		if latest := s.holder.Current(); latest != nil && s.client.fresh(latest.Token) {
			return nil, nil
		}
		return nil, s.refresh(ctx, cur.Token.RefreshToken)
	})
	switch {
	case err == nil:
		return s.holder.Current(), nil
	case errors.Is(err, domainauth.ErrNoActiveSession), errors.Is(err, domainauth.ErrInvalidCredentials):
		s.client.logger.InfoContext(ctx, "refresh token rejected, clearing session", "error", err)
		s.holder.Clear(ctx)
		return nil, nil
	default:
		return nil, err
	}
}

func (s *Session) refresh(ctx context.Context, refreshToken string) error {
	var tr tokenResponse
	if err := s.client.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"refresh_token"}}, "",
		map[string]string{"refresh_token": refreshToken}, &tr); err != nil {
		return classify(opRefresh, err)
	}
	sess, err := s.client.session(ctx, tr)
	if err != nil {
		return classify(opRefresh, err)
	}
	s.holder.Set(ctx, ports.EventTokenRefreshed, sess)
	return nil
}

// OnAuthStateChange implements ports.IdentityService.
func (s *Session) OnAuthStateChange(cb ports.AuthStateCallback) func() {
	return s.holder.Subscribe(cb)
}

// SignInWithPassword exchanges the credentials for a session and emits SIGNED_IN.
func (s *Session) SignInWithPassword(ctx context.Context, email, password string) error {
	var tr tokenResponse
	if err := s.client.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"password"}}, "",
		map[string]string{"email": email, "password": password}, &tr); err != nil {
		return classify(opSignIn, err)
	}
	sess, err := s.client.session(ctx, tr)
	if err != nil {
		return classify(opSignIn, err)
	}
	s.holder.Set(ctx, ports.EventSignedIn, sess)
	return nil
}

// SignUp registers the account. When the server auto-confirms it returns a
// session and SIGNED_IN is emitted; otherwise a confirmation email is pending.
func (s *Session) SignUp(ctx context.Context, email, password string, opts ports.SignUpOptions) error {
	var query url.Values
	if opts.RedirectTo != "" {
		query = url.Values{"redirect_to": {opts.RedirectTo}}
	}
	body := map[string]any{"email": email, "password": password}
	if len(opts.Metadata) > 0 {
		body["data"] = opts.Metadata
	}

	var resp signUpResponse
	if err := s.client.do(ctx, http.MethodPost, "/signup", query, "", body, &resp); err != nil {
		return classify(opSignUp, err)
	}
	if resp.AccessToken == "" {
		s.client.logger.InfoContext(ctx, "sign-up awaiting email confirmation", "user_id", resp.ID)
		return nil
	}
	sess, err := s.client.session(ctx, resp.tokenResponse)
	if err != nil {
		return classify(opSignUp, err)
	}
	s.holder.Set(ctx, ports.EventSignedIn, sess)
	return nil
}

// SignOut revokes the session on the server and emits SIGNED_OUT. A session
// the server no longer knows is cleared locally; transport failures keep it.
func (s *Session) SignOut(ctx context.Context) error {
	cur, err := s.holder.Load(ctx)
	if err != nil {
		return classify(opSignOut, err)
	}
	if cur == nil {
		return nil
	}
	if cur.Token != nil && cur.Token.AccessToken != "" {
		err := s.client.do(ctx, http.MethodPost, "/logout", nil, cur.Token.AccessToken, nil, nil)
		if err := classify(opSignOut, err); err != nil && !errors.Is(err, domainauth.ErrNoActiveSession) {
			return err
		}
	}
	s.holder.Clear(ctx)
	return nil
}

// UpdateUser sends attrs to the server and emits USER_UPDATED with the returned user.
func (s *Session) UpdateUser(ctx context.Context, attrs ports.UserAttributes) (*domainauth.User, error) {
	cur, err := s.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, domainauth.ErrNoActiveSession
	}
	if attrs.IsZero() {
		u := cur.User.Clone()
		return &u, nil
	}

	body := map[string]any{}
	if attrs.Email != "" {
		body["email"] = attrs.Email
	}
	if attrs.Password != "" {
		body["password"] = attrs.Password
	}
	if len(attrs.Data) > 0 {
		body["data"] = attrs.Data
	}

	var wu wireUser
	if err := s.client.do(ctx, http.MethodPut, "/user", nil, cur.Token.AccessToken, body, &wu); err != nil {
		return nil, classify(opUpdateUser, err)
	}
	user := wu.toDomain()
	s.holder.Set(ctx, ports.EventUserUpdated, domainauth.Session{Token: cur.Token, User: user})
	return &user, nil
}
