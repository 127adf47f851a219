package coordinator

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/karatal/video-quiz-cli/internal/domain"
	"github.com/karatal/video-quiz-cli/internal/ports"
)

// sessionHooks is how the transport reaches the coordinator's session
// state. The transport is only ever invoked from the coordinator's own
// loop, so the hooks need no locking.
type sessionHooks interface {
	accessToken() string
	refreshToken() string
	replaceSession(domain.Session)
	sessionExpired()
}

// AuthTransport wraps every outbound backend call: it attaches the
// bearer token and, on a single 401, attempts exactly one token refresh
// and exactly one retry. If the refresh itself fails the session is
// cleared and the failure surfaces as a logout, never as a raw error.
// The single-retry rule prevents infinite refresh loops when the
// refresh token is itself invalid.
type AuthTransport struct {
	base    ports.Doer
	refresh func(ctx context.Context, refreshToken string) (domain.Session, error)
	hooks   sessionHooks
	logger  *slog.Logger
}

var _ ports.Doer = (*AuthTransport)(nil)

func NewAuthTransport(base ports.Doer, logger *slog.Logger) *AuthTransport {
	if base == nil {
		base = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthTransport{base: base, logger: logger}
}

// bind attaches the coordinator's session state and refresh call. Wiring
// is two-phase because the transport sits inside the backend client the
// coordinator itself depends on.
func (t *AuthTransport) bind(hooks sessionHooks, refresh func(context.Context, string) (domain.Session, error)) {
	t.hooks = hooks
	t.refresh = refresh
}

func (t *AuthTransport) Do(req *http.Request) (*http.Response, error) {
	token := ""
	if t.hooks != nil {
		token = t.hooks.accessToken()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || t.hooks == nil {
		return resp, nil
	}

	refreshToken := t.hooks.refreshToken()
	if refreshToken == "" || t.refresh == nil {
		t.hooks.sessionExpired()
		return resp, nil
	}

	session, refreshErr := t.refresh(req.Context(), refreshToken)
	if refreshErr != nil {
		t.logger.Info("token refresh rejected, clearing session", "error", refreshErr)
		_ = resp.Body.Close()
		t.hooks.sessionExpired()
		return nil, domain.ErrNotAuthenticated
	}
	t.hooks.replaceSession(session)

	retry, err := cloneRequest(req)
	if err != nil {
		return resp, nil
	}
	_ = resp.Body.Close()

	retry.Header.Set("Authorization", "Bearer "+session.AccessToken)
	return t.base.Do(retry)
}

// cloneRequest rebuilds a request for the post-refresh retry. Requests
// built from byte readers carry GetBody, so the body can be replayed.
func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.GetBody == nil {
		return clone, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}
