package coordinator

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karatal/video-quiz-cli/internal/domain"
)

type stubHooks struct {
	access   string
	refresh  string
	replaced []domain.Session
	expired  int
}

func (s *stubHooks) accessToken() string  { return s.access }
func (s *stubHooks) refreshToken() string { return s.refresh }

func (s *stubHooks) replaceSession(session domain.Session) {
	s.replaced = append(s.replaced, session)
	s.access = session.AccessToken
	s.refresh = session.RefreshToken
}

func (s *stubHooks) sessionExpired() {
	s.expired++
	s.access = ""
	s.refresh = ""
}

type scriptedDoer struct {
	requests  []*http.Request
	responses []*http.Response
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	resp := d.responses[0]
	if len(d.responses) > 1 {
		d.responses = d.responses[1:]
	}
	return resp, nil
}

func response(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(nil)),
	}
}

func newRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(http.MethodPost, "http://backend/api/quiz/answer", reader)
	require.NoError(t, err)
	return req
}

func TestAuthTransportAttachesBearer(t *testing.T) {
	t.Parallel()
	base := &scriptedDoer{responses: []*http.Response{response(http.StatusOK)}}
	transport := NewAuthTransport(base, slog.New(slog.NewTextHandler(io.Discard, nil)))
	transport.bind(&stubHooks{access: "at"}, nil)

	resp, err := transport.Do(newRequest(t, ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, base.requests, 1)
	assert.Equal(t, "Bearer at", base.requests[0].Header.Get("Authorization"))
}

func TestAuthTransportRefreshesOnceAndRetries(t *testing.T) {
	t.Parallel()
	base := &scriptedDoer{responses: []*http.Response{
		response(http.StatusUnauthorized),
		response(http.StatusOK),
	}}
	hooks := &stubHooks{access: "stale", refresh: "rt"}
	refreshCalls := 0
	refresh := func(_ context.Context, refreshToken string) (domain.Session, error) {
		refreshCalls++
		assert.Equal(t, "rt", refreshToken)
		return domain.Session{AccessToken: "fresh", RefreshToken: "rt2"}, nil
	}

	transport := NewAuthTransport(base, slog.New(slog.NewTextHandler(io.Discard, nil)))
	transport.bind(hooks, refresh)

	resp, err := transport.Do(newRequest(t, `{"selected_index":1}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 1, refreshCalls)
	require.Len(t, hooks.replaced, 1)
	assert.Equal(t, "fresh", hooks.replaced[0].AccessToken)

	// Exactly two wire calls: the rejected original and one retry, with
	// the body replayed and the new token attached.
	require.Len(t, base.requests, 2)
	assert.Equal(t, "Bearer fresh", base.requests[1].Header.Get("Authorization"))
	replayed, err := io.ReadAll(base.requests[1].Body)
	require.NoError(t, err)
	assert.Equal(t, `{"selected_index":1}`, string(replayed))
}

func TestAuthTransportRetryNeverLoops(t *testing.T) {
	t.Parallel()
	// Backend keeps rejecting even after a successful refresh. The 401
	// from the retry must surface as-is rather than trigger another
	// refresh round.
	base := &scriptedDoer{responses: []*http.Response{response(http.StatusUnauthorized)}}
	hooks := &stubHooks{access: "stale", refresh: "rt"}
	refreshCalls := 0
	refresh := func(context.Context, string) (domain.Session, error) {
		refreshCalls++
		return domain.Session{AccessToken: "fresh", RefreshToken: "rt2"}, nil
	}

	transport := NewAuthTransport(base, slog.New(slog.NewTextHandler(io.Discard, nil)))
	transport.bind(hooks, refresh)

	resp, err := transport.Do(newRequest(t, ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, refreshCalls)
	assert.Len(t, base.requests, 2)
}

func TestAuthTransportFailedRefreshClearsSession(t *testing.T) {
	t.Parallel()
	base := &scriptedDoer{responses: []*http.Response{response(http.StatusUnauthorized)}}
	hooks := &stubHooks{access: "stale", refresh: "rt"}
	refresh := func(context.Context, string) (domain.Session, error) {
		return domain.Session{}, domain.ErrUnauthorized
	}

	transport := NewAuthTransport(base, slog.New(slog.NewTextHandler(io.Discard, nil)))
	transport.bind(hooks, refresh)

	_, err := transport.Do(newRequest(t, ""))
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Equal(t, 1, hooks.expired)
	assert.Len(t, base.requests, 1)
}

func TestAuthTransportNoRefreshTokenPassesRejectionThrough(t *testing.T) {
	t.Parallel()
	base := &scriptedDoer{responses: []*http.Response{response(http.StatusUnauthorized)}}
	hooks := &stubHooks{access: "stale"}

	transport := NewAuthTransport(base, slog.New(slog.NewTextHandler(io.Discard, nil)))
	transport.bind(hooks, nil)

	resp, err := transport.Do(newRequest(t, ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, hooks.expired)
	assert.Len(t, base.requests, 1)
}
