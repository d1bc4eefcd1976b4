package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
	"github.com/ericfisherdev/accountpilot/internal/domain/port/driven"
	"github.com/ericfisherdev/accountpilot/internal/oauth1"
)

func testClient(maxRetries int) *Client {
	consumer := oauth1.Consumer{Key: "consumer-key", Secret: "consumer-secret"}
	return NewClient(consumer, 5*time.Second, maxRetries)
}

func TestDo_CookieCredential(t *testing.T) {
	var gotCookie, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := testClient(0)
	secret := model.SessionCookieBundle{Cookies: []model.CookiePair{
		{Name: "auth_token", Value: "abc"},
		{Name: "ct0", Value: "def"},
	}}

	resp, err := client.Do(context.Background(), model.RequestSpec{
		Action: model.ActionLike,
		Method: http.MethodPost,
		URL:    srv.URL + "/1.1/favorites/create.json",
		Params: map[string]string{"id": "123"},
	}, secret, model.ProxyBinding{})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "auth_token=abc; ct0=def", gotCookie)
	assert.Empty(t, gotAuth)
}

func TestDo_OAuthCredential(t *testing.T) {
	var gotAuth string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := testClient(0)
	secret := model.OAuthTokenPair{Token: "user-token", TokenSecret: "user-secret"}

	_, err := client.Do(context.Background(), model.RequestSpec{
		Action: model.ActionReply,
		Method: http.MethodPost,
		URL:    srv.URL + "/1.1/statuses/update.json",
		Params: map[string]string{"status": "hello"},
	}, secret, model.ProxyBinding{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gotAuth, "OAuth "), "authorization header: %q", gotAuth)
	assert.Contains(t, gotAuth, `oauth_token="user-token"`)
	assert.Contains(t, gotAuth, `oauth_signature="`)
	assert.Contains(t, gotBody, "status=hello")
}

func TestDo_GETParamsInQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := testClient(0)
	_, err := client.Do(context.Background(), model.RequestSpec{
		Action: model.ActionMessage,
		Method: http.MethodGet,
		URL:    srv.URL + "/1.1/direct_messages.json",
		Params: map[string]string{"count": "20"},
	}, model.SessionCookieBundle{}, model.ProxyBinding{})
	require.NoError(t, err)
	assert.Equal(t, "count=20", gotQuery)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := testClient(3)
	resp, err := client.Do(context.Background(), model.RequestSpec{
		Action: model.ActionLike, Method: http.MethodPost, URL: srv.URL + "/x",
	}, model.SessionCookieBundle{}, model.ProxyBinding{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_TransientExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := testClient(2)
	_, err := client.Do(context.Background(), model.RequestSpec{
		Action: model.ActionLike, Method: http.MethodPost, URL: srv.URL + "/x",
	}, model.SessionCookieBundle{}, model.ProxyBinding{})
	assert.ErrorIs(t, err, driven.ErrTransient)
	// Initial attempt plus two retries.
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_RateLimitNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := testClient(3)
	resp, err := client.Do(context.Background(), model.RequestSpec{
		Action: model.ActionLike, Method: http.MethodPost, URL: srv.URL + "/x",
	}, model.SessionCookieBundle{}, model.ProxyBinding{})
	assert.ErrorIs(t, err, driven.ErrRateLimited)
	assert.Equal(t, int32(1), calls.Load())
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestDo_AuthFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := testClient(3)
	_, err := client.Do(context.Background(), model.RequestSpec{
		Action: model.ActionLike, Method: http.MethodPost, URL: srv.URL + "/x",
	}, model.SessionCookieBundle{}, model.ProxyBinding{})
	assert.ErrorIs(t, err, driven.ErrPermanentAuth)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_AuthErrorCodeInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"code":89,"message":"Invalid or expired token."}]}`))
	}))
	defer srv.Close()

	client := testClient(0)
	_, err := client.Do(context.Background(), model.RequestSpec{
		Action: model.ActionLike, Method: http.MethodPost, URL: srv.URL + "/x",
	}, model.SessionCookieBundle{}, model.ProxyBinding{})
	assert.ErrorIs(t, err, driven.ErrPermanentAuth)
}

func TestDo_PlainRejectionIsNotAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"code":187,"message":"Status is a duplicate."}]}`))
	}))
	defer srv.Close()

	client := testClient(0)
	_, err := client.Do(context.Background(), model.RequestSpec{
		Action: model.ActionReply, Method: http.MethodPost, URL: srv.URL + "/x",
	}, model.SessionCookieBundle{}, model.ProxyBinding{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, driven.ErrPermanentAuth)
	assert.NotErrorIs(t, err, driven.ErrTransient)
}

func TestDo_InvalidProxyBinding(t *testing.T) {
	client := testClient(0)
	_, err := client.Do(context.Background(), model.RequestSpec{
		Action: model.ActionLike, Method: http.MethodPost, URL: "https://example.com/x",
	}, model.SessionCookieBundle{}, model.ProxyBinding{URL: "socks5://1.2.3.4:99999"})
	assert.ErrorIs(t, err, driven.ErrProxyUnavailable)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(driven.ErrTransient))
	assert.True(t, IsRetryable(driven.ErrRateLimited))
	assert.False(t, IsRetryable(driven.ErrPermanentAuth))
	assert.False(t, IsRetryable(nil))
}
