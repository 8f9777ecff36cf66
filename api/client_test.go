package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	mu       sync.Mutex
	calls    int
	failures int // first failures attempts fail, -1 means always
	siteID   int
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, previous AuthData) (AuthData, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failures < 0 || f.calls <= f.failures {
		return nil, 0, errors.New("bad credentials")
	}
	return "token", f.siteID, nil
}

func (f *fakeAuthenticator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDistant struct {
	mu       sync.Mutex
	calls    int
	sessions []Session
	respond  func(call int) (any, error)
}

func (f *fakeDistant) CallDistant(_ context.Context, session Session, _ *Request) (any, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.sessions = append(f.sessions, session)
	f.mu.Unlock()

	if f.respond == nil {
		return "ok", nil
	}
	return f.respond(call)
}

func newTestClient(t *testing.T, auth Authenticator, distant Distant, clock *fakeClock, overrides ...Option) *Client {
	t.Helper()

	client, err := NewClient(testOptions(t, overrides...), auth, distant,
		WithLogger(discardLogger()),
		WithClock(clock.Now),
	)
	require.NoError(t, err)
	return client
}

var testRequest = &Request{Path: "/widget/{siteId}/scenario/play/1", Method: http.MethodGet}

func TestNewClient_InvalidOptions(t *testing.T) {
	_, err := NewClient(Options{}, &fakeAuthenticator{}, &fakeDistant{})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCallAPI_RetryBound(t *testing.T) {
	for _, credits := range []int{0, 1, 3, 10} {
		auth := &fakeAuthenticator{failures: -1, siteID: testSiteID}
		distant := &fakeDistant{}
		client := newTestClient(t, auth, distant, newFakeClock(), WithAutoAuthRetryCredits(credits))

		_, err := client.CallAPI(context.Background(), testRequest)
		require.Error(t, err)
		assert.Equal(t, http.StatusForbidden, Status(err))
		assert.Equal(t, credits+1, auth.Calls(), "credits=%d", credits)
		assert.Zero(t, distant.calls)
		assert.False(t, client.IsMaybeAuthenticated())
	}
}

func TestCallAPI_EventualSuccess(t *testing.T) {
	auth := &fakeAuthenticator{failures: 2, siteID: testSiteID}
	distant := &fakeDistant{}
	client := newTestClient(t, auth, distant, newFakeClock(), WithAutoAuthRetryCredits(3))

	result, err := client.CallAPI(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, auth.Calls())
	assert.Equal(t, 1, distant.calls)

	session := client.Session()
	assert.Equal(t, "token", session.AuthenticatedData)
	assert.Equal(t, testSiteID, session.AuthenticatedSiteID)
	assert.Equal(t, testSiteID, distant.sessions[0].AuthenticatedSiteID)
}

func TestCallAPI_SessionValidity(t *testing.T) {
	clock := newFakeClock()
	auth := &fakeAuthenticator{siteID: testSiteID}
	client := newTestClient(t, auth, &fakeDistant{}, clock, WithAuthValidity(60))

	assert.False(t, client.IsMaybeAuthenticated())

	_, err := client.CallAPI(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(60*time.Second), client.Session().AuthenticatedUntil)

	clock.Advance(59 * time.Second)
	assert.True(t, client.IsMaybeAuthenticated())

	_, err = client.CallAPI(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, 1, auth.Calls(), "no authentication within the validity window")

	clock.Advance(time.Second)
	assert.False(t, client.IsMaybeAuthenticated())

	_, err = client.CallAPI(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, 2, auth.Calls(), "authentication again after expiry")
}

func TestCallAPI_ReauthenticatesOnceOn403(t *testing.T) {
	clock := newFakeClock()
	auth := &fakeAuthenticator{siteID: testSiteID}
	distant := &fakeDistant{}
	client := newTestClient(t, auth, distant, clock)

	_, err := client.CallAPI(context.Background(), testRequest)
	require.NoError(t, err)

	distant.respond = func(call int) (any, error) {
		if call == 2 {
			return nil, WithStatus(ErrForbiddenRedirect, http.StatusForbidden)
		}
		return "after reauth", nil
	}

	result, err := client.CallAPI(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, "after reauth", result)
	assert.Equal(t, 2, auth.Calls())
	assert.Equal(t, 3, distant.calls)
}

func TestCallAPI_403OnRetryFails(t *testing.T) {
	auth := &fakeAuthenticator{siteID: testSiteID}
	distant := &fakeDistant{}
	client := newTestClient(t, auth, distant, newFakeClock())

	_, err := client.CallAPI(context.Background(), testRequest)
	require.NoError(t, err)

	distant.respond = func(int) (any, error) {
		return nil, WithStatus(ErrForbiddenRedirect, http.StatusForbidden)
	}

	_, err = client.CallAPI(context.Background(), testRequest)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, Status(err))
	assert.ErrorIs(t, err, ErrForbiddenRedirect)
	assert.Equal(t, 2, auth.Calls())
	assert.Equal(t, 3, distant.calls)
}

func TestCallAPI_403AfterFreshAuthenticationFails(t *testing.T) {
	auth := &fakeAuthenticator{siteID: testSiteID}
	distant := &fakeDistant{respond: func(int) (any, error) {
		return nil, WithStatus(ErrForbiddenRedirect, http.StatusForbidden)
	}}
	client := newTestClient(t, auth, distant, newFakeClock())

	_, err := client.CallAPI(context.Background(), testRequest)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, Status(err))
	assert.Equal(t, 1, auth.Calls())
	assert.Equal(t, 1, distant.calls)
}

func TestCallAPI_DefaultStatus(t *testing.T) {
	distant := &fakeDistant{respond: func(int) (any, error) {
		return nil, errors.New("connection reset")
	}}
	client := newTestClient(t, &fakeAuthenticator{siteID: testSiteID}, distant, newFakeClock())

	_, err := client.CallAPI(context.Background(), testRequest)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, Status(err))

	distant.respond = func(int) (any, error) {
		return nil, WithStatus(errors.New("gone"), http.StatusNotFound)
	}
	_, err = client.CallAPI(context.Background(), testRequest)
	assert.Equal(t, http.StatusNotFound, Status(err))
}

func TestCallAPI_ForbiddenSiteID(t *testing.T) {
	auth := &fakeAuthenticator{siteID: 999}
	distant := &fakeDistant{}
	client := newTestClient(t, auth, distant, newFakeClock(), WithAutoAuthRetryCredits(3))

	_, err := client.CallAPI(context.Background(), testRequest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbiddenSiteID)
	assert.Equal(t, StatusForbiddenSiteID, Status(err))
	assert.Equal(t, 1, auth.Calls(), "forbidden site id is not retried")
	assert.Zero(t, distant.calls)
	assert.Equal(t, Session{}, client.Session())
}

func TestCallAPI_WithoutAutoAuthentication(t *testing.T) {
	auth := &fakeAuthenticator{siteID: testSiteID}
	distant := &fakeDistant{respond: func(int) (any, error) {
		return nil, WithStatus(ErrForbiddenRedirect, http.StatusForbidden)
	}}
	client := newTestClient(t, auth, distant, newFakeClock(), WithAutoAuthentication(false))

	_, err := client.CallAPI(context.Background(), testRequest)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, Status(err))
	assert.Zero(t, auth.Calls())
	assert.Equal(t, 1, distant.calls)
}
