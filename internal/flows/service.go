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
	return s.deps.Verify.VerifyAccess != nil &&
		s.deps.Issue.SignAccess != nil &&
		s.deps.Rotate.Gateway != nil
}

func (s Service) Issue(userID, provider string) IssueResult {
	return RunIssue(userID, provider, s.deps.Issue)
}

func (s Service) Rotate(ctx context.Context, refreshToken string) RotateResult {
	return RunRotate(ctx, refreshToken, s.deps.Rotate)
}

func (s Service) Revoke(ctx context.Context, refreshToken string) RevokeResult {
	return RunRevoke(ctx, refreshToken, s.deps.Revoke)
}

func (s Service) Verify(accessToken string) VerifyResult {
	return RunVerify(accessToken, s.deps.Verify)
}
