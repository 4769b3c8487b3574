package harmony

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/natserract/harmony/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenState_Fresh(t *testing.T) {
	tests := []struct {
		name  string
		state TokenState
		want  bool
	}{
		{"never acquired", TokenState{}, false},
		{"just acquired", TokenState{AccessToken: "t", IssuedAt: testNow.Unix()}, true},
		{"exactly one hour", TokenState{AccessToken: "t", IssuedAt: testNow.Unix() - 3600}, true},
		{"one hour and one second", TokenState{AccessToken: "t", IssuedAt: testNow.Unix() - 3601}, false},
		{"days old", TokenState{AccessToken: "t", IssuedAt: testNow.Add(-72 * time.Hour).Unix()}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Fresh(testNow))
		})
	}
}

func TestToken_CachedWhileFresh(t *testing.T) {
	for _, age := range []time.Duration{0, 30 * time.Minute, time.Hour} {
		t.Run(age.String(), func(t *testing.T) {
			env := newTestEnv(t, age)

			token, rec, err := env.client.Token(context.Background(), false)
			require.NoError(t, err)
			assert.Equal(t, "cached-token", token)
			assert.Nil(t, rec)

			tokenCalls, _ := env.server.counts()
			assert.Zero(t, tokenCalls)
			assert.Zero(t, env.records.Len())
		})
	}
}

func TestToken_RefreshWhenStaleOrAbsent(t *testing.T) {
	for name, age := range map[string]time.Duration{
		"absent": -1,
		"stale":  time.Hour + time.Second,
		"old":    24 * time.Hour,
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, age)

			token, rec, err := env.client.Token(context.Background(), false)
			require.NoError(t, err)
			assert.Equal(t, "fresh-token", token)
			require.NotNil(t, rec)

			tokenCalls, _ := env.server.counts()
			assert.Equal(t, 1, tokenCalls)
			assert.Equal(t, 1, env.records.Len())

			assert.Equal(t, http.MethodPost, rec.Method)
			assert.Equal(t, http.StatusOK, rec.StatusCode)
			assert.Equal(t, "OK", rec.StatusMessage)
			assert.Equal(t, env.server.URL+"/token/Epsilon/oauth2/access_token", rec.Endpoint)

			// cached and written back
			assert.Equal(t, TokenState{AccessToken: "fresh-token", IssuedAt: testNow.Unix()}, env.client.TokenState())
			saved, err := env.settings.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "fresh-token", saved[config.KeyAccessToken])
			assert.Equal(t, strconv.FormatInt(testNow.Unix(), 10), saved[config.KeyTokenTimeout])

			// second call is served from the cache
			token, rec, err = env.client.Token(context.Background(), false)
			require.NoError(t, err)
			assert.Equal(t, "fresh-token", token)
			assert.Nil(t, rec)
			assert.Equal(t, 1, env.records.Len())
		})
	}
}

func TestToken_ForceRefreshIgnoresCache(t *testing.T) {
	env := newTestEnv(t, time.Minute)

	token, rec, err := env.client.Token(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	require.NotNil(t, rec)

	tokenCalls, _ := env.server.counts()
	assert.Equal(t, 1, tokenCalls)
	assert.Equal(t, 1, env.records.Len())
}

func TestTestAPI(t *testing.T) {
	env := newTestEnv(t, 0)

	rec, err := env.client.TestAPI(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)

	tokenCalls, _ := env.server.counts()
	assert.Equal(t, 1, tokenCalls)
}

func TestAuthenticate_RequestShape(t *testing.T) {
	env := newTestEnv(t, -1)

	_, rec, err := env.client.Authenticate(context.Background())
	require.NoError(t, err)

	req, sent := env.server.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("client:secret")), req.Header.Get("Authorization"))

	form, err := url.ParseQuery(string(sent))
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", form.Get("username"))
	assert.Equal(t, "hunter2", form.Get("password"))
	assert.Equal(t, "cn mail sn givenname uid employeeNumber", form.Get("scope"))
	assert.Equal(t, "password", form.Get("grant_type"))

	// logged request and headers are the encoded structures
	assert.Equal(t, map[string]interface{}{
		"username":   "user@example.com",
		"password":   "hunter2",
		"scope":      "cn mail sn givenname uid employeeNumber",
		"grant_type": "password",
	}, decodeJSON(t, rec.Request))
	assert.Equal(t, "application/x-www-form-urlencoded", decodeJSON(t, rec.Headers)["Content-Type"])
	assert.Equal(t, "fresh-token", decodeJSON(t, rec.Response)["access_token"])
	assert.NotEmpty(t, rec.CorrelationID)
}

func TestToken_BadCredentials(t *testing.T) {
	env := newTestEnv(t, -1)
	env.server.setToken(http.StatusUnauthorized, `{"fault":{"faultstring":"bad credentials"}}`)

	token, rec, err := env.client.Token(context.Background(), false)
	require.Error(t, err)
	assert.Empty(t, token)
	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, ErrAcquisitionFailed))

	var tokenErr *TokenError
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, http.StatusUnauthorized, tokenErr.StatusCode)
	assert.Equal(t, "bad credentials", tokenErr.Message)

	require.Equal(t, 1, env.records.Len())
	logged := env.records.All()[0]
	assert.Equal(t, tokenErr.LogID, logged.ID)
	assert.Equal(t, "bad credentials", logged.StatusMessage)
	assert.Equal(t, http.StatusUnauthorized, logged.StatusCode)
	assert.Equal(t, `{"fault":{"faultstring":"bad credentials"}}`, logged.Response)

	// nothing cached or persisted
	assert.Equal(t, TokenState{}, env.client.TokenState())
	saved, _ := env.settings.Load(context.Background())
	assert.Empty(t, saved[config.KeyAccessToken])
}

func TestToken_ErrorWithoutFault(t *testing.T) {
	env := newTestEnv(t, -1)
	env.server.setToken(http.StatusInternalServerError, `upstream exploded`)

	_, _, err := env.client.Token(context.Background(), false)

	var tokenErr *TokenError
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, "upstream exploded", tokenErr.Message)

	logged := env.records.All()[0]
	assert.Equal(t, "Internal Server Error", logged.StatusMessage)
	assert.Equal(t, "upstream exploded", logged.Response)
}

func TestToken_EmptyOrTokenlessBody(t *testing.T) {
	for name, tc := range map[string]struct {
		status int
		body   string
	}{
		"empty body":      {http.StatusOK, ``},
		"empty object":    {http.StatusOK, `{}`},
		"no access_token": {http.StatusOK, `{"token_type":"Bearer"}`},
		"accepted status": {http.StatusAccepted, `{"access_token":"x"}`},
		"not json at all": {http.StatusOK, `<html>maintenance</html>`},
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, -1)
			env.server.setToken(tc.status, tc.body)

			_, _, err := env.client.Token(context.Background(), false)
			assert.ErrorIs(t, err, ErrAcquisitionFailed)
			require.Equal(t, 1, env.records.Len())
			assert.Equal(t, tc.status, env.records.All()[0].StatusCode)
			assert.Equal(t, TokenState{}, env.client.TokenState())
		})
	}
}

func TestToken_TransportFailure(t *testing.T) {
	env := newTestEnv(t, -1)
	env.server.Close()

	_, _, err := env.client.Token(context.Background(), false)
	require.ErrorIs(t, err, ErrAcquisitionFailed)

	id, ok := LogID(err)
	require.True(t, ok)

	logged := env.records.All()[0]
	assert.Equal(t, id, logged.ID)
	assert.Zero(t, logged.StatusCode)
	assert.NotEmpty(t, logged.StatusMessage)
}

type failingSettings struct{ config.MemoryStore }

func (f *failingSettings) Save(ctx context.Context, s config.Settings) error {
	return errors.New("settings table locked")
}

func TestToken_PersistFailureKeepsToken(t *testing.T) {
	env := newTestEnv(t, -1)
	env.client.settings = &failingSettings{}

	token, rec, err := env.client.Token(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.NotNil(t, rec)
	assert.Equal(t, "fresh-token", env.client.TokenState().AccessToken)
}

func TestTokenCache_SharedAndSeeded(t *testing.T) {
	cache := NewTokenCache()
	cache.store(TokenState{AccessToken: "newer", IssuedAt: testNow.Unix()})

	// older persisted state does not clobber a newer in-process token
	env := newTestEnv(t, 10*time.Minute, WithTokenCache(cache))
	assert.Equal(t, "newer", env.client.TokenState().AccessToken)

	// newer persisted state wins
	cache.store(TokenState{AccessToken: "older", IssuedAt: testNow.Add(-time.Hour).Unix()})
	newTestEnv(t, 10*time.Minute, WithTokenCache(cache))
	assert.Equal(t, "cached-token", cache.State().AccessToken)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	env := newTestEnv(t, -1, WithMetrics(m))

	_, err := env.client.RetrieveRecord(context.Background(), "X1")
	require.NoError(t, err)
	_, _, err = env.client.Token(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.tokenRefreshes.WithLabelValues(outcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.tokenCacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.callsTotal.WithLabelValues(http.MethodGet, "200", outcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.callsTotal.WithLabelValues(http.MethodPost, "200", outcomeSuccess)))
}
