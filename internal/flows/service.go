package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Authenticate.VerifyRefresh != nil && s.deps.Authenticate.Sessions != nil
}

func (s Service) Login(ctx context.Context, login, password string, client Client) LoginResult {
	return RunLogin(ctx, login, password, client, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken string, client Client) RefreshResult {
	return RunRefresh(ctx, refreshToken, client, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, refreshToken string) SessionsResult {
	return RunLogout(ctx, refreshToken, s.deps.Sessions)
}

func (s Service) ListSessions(ctx context.Context, refreshToken string) SessionsResult {
	return RunListSessions(ctx, refreshToken, s.deps.Sessions)
}

func (s Service) RevokeOthers(ctx context.Context, refreshToken string) SessionsResult {
	return RunRevokeOthers(ctx, refreshToken, s.deps.Sessions)
}

func (s Service) RevokeDevice(ctx context.Context, refreshToken, target string) SessionsResult {
	return RunRevokeDevice(ctx, refreshToken, target, s.deps.Sessions)
}

func (s Service) Validate(accessToken string) ValidateResult {
	return RunValidate(accessToken, s.deps.Validate)
}
