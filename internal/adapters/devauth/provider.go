package devauth

import (
	"context"
	"log/slog"
	"maps"

	"github.com/tracenation/tracenation-api/internal/adapters/authsession"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
)

// Factory builds one Provider per browser session id over a shared Directory.
type Factory struct {
	Directory *Directory
	Tokens    ports.TokenStore
	Logger    *slog.Logger
}

var _ ports.IdentityFactory = (*Factory)(nil)

// ForSession implements ports.IdentityFactory.
func (f *Factory) ForSession(sid string) ports.IdentityService {
	return NewProvider(f.Directory, authsession.NewHolder(authsession.HolderOptions{
		SID:    sid,
		Tokens: f.Tokens,
		Logger: f.Logger,
	}), f.Logger)
}

// Provider implements ports.IdentityService for one browser session.
type Provider struct {
	dir    *Directory
	holder *authsession.Holder
	logger *slog.Logger
}

var _ ports.IdentityService = (*Provider)(nil)

// NewProvider constructs a Provider.
func NewProvider(dir *Directory, holder *authsession.Holder, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{dir: dir, holder: holder, logger: logger.With("component", "devauth")}
}

// GetSession returns the held session. An expired token is refreshed; a
// session whose account no longer exists or whose refresh fails is cleared.
func (p *Provider) GetSession(ctx context.Context) (*domainauth.Session, error) {
	sess, err := p.holder.Load(ctx)
	if err != nil || sess == nil {
		return nil, err
	}

	user, ok := p.dir.userByID(sess.User.ID)
	if !ok {
		p.holder.Clear(ctx)
		return nil, nil
	}
	if sess.Token != nil && p.dir.now().Before(sess.Token.Expiry) {
		return sess, nil
	}

	if sess.Token == nil {
		p.holder.Clear(ctx)
		return nil, nil
	}
	if _, err := p.dir.redeem(sess.Token.RefreshToken); err != nil {
		p.holder.Clear(ctx)
		return nil, nil
	}
	refreshed := domainauth.Session{Token: p.dir.issue(user.ID), User: user}
	p.holder.Set(ctx, ports.EventTokenRefreshed, refreshed)
	return p.holder.Current(), nil
}

// OnAuthStateChange implements ports.IdentityService.
func (p *Provider) OnAuthStateChange(cb ports.AuthStateCallback) func() {
	return p.holder.Subscribe(cb)
}

// SignInWithPassword checks the credentials and emits SIGNED_IN.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) error {
	user, err := p.dir.authenticate(email, password)
	if err != nil {
		return err
	}
	p.holder.Set(ctx, ports.EventSignedIn, domainauth.Session{Token: p.dir.issue(user.ID), User: user})
	return nil
}

// SignUp registers the account. Without required confirmation the new user
// is signed in immediately.
func (p *Provider) SignUp(ctx context.Context, email, password string, opts ports.SignUpOptions) error {
	user, signedIn, err := p.dir.register(email, password, maps.Clone(opts.Metadata))
	if err != nil {
		return err
	}
	if !signedIn {
		p.logger.InfoContext(ctx, "dev auth confirmation pending",
			"email", user.Email, "redirect_to", opts.RedirectTo)
		return nil
	}
	p.holder.Set(ctx, ports.EventSignedIn, domainauth.Session{Token: p.dir.issue(user.ID), User: user})
	return nil
}

// SignOut revokes the refresh token and emits SIGNED_OUT.
func (p *Provider) SignOut(ctx context.Context) error {
	if cur := p.holder.Current(); cur != nil && cur.Token != nil {
		p.dir.revoke(cur.Token.RefreshToken)
	}
	p.holder.Clear(ctx)
	return nil
}

// UpdateUser applies attrs to the signed-in account and emits USER_UPDATED.
func (p *Provider) UpdateUser(ctx context.Context, attrs ports.UserAttributes) (*domainauth.User, error) {
	cur, err := p.holder.Load(ctx)
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

	user, err := p.dir.update(cur.User.ID, attrs)
	if err != nil {
		return nil, err
	}
	p.holder.Set(ctx, ports.EventUserUpdated, domainauth.Session{Token: cur.Token, User: user})
	return &user, nil
}
