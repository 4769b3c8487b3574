package harmony

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/natserract/harmony/pkg/calllog"
	"github.com/natserract/harmony/pkg/config"
	httpclient "github.com/natserract/harmony/pkg/http"
	"go.uber.org/zap"
)

// Token returns a bearer token, reusing the cached one while it is fresh.
// forceRefresh always calls the token endpoint. The returned record is nil
// when the cached token was used.
func (h *Harmony) Token(ctx context.Context, forceRefresh bool) (string, *calllog.Record, error) {
	if !forceRefresh {
		state := h.tokenCache.State()
		if state.Fresh(h.now()) {
			h.metrics.observeCacheHit()
			h.logger.Debug("Using cached access token", zap.Int64("issued_at", state.IssuedAt))
			return state.AccessToken, nil, nil
		}
		h.logger.Info("Access token expired or not available, authenticating")
	}

	return h.Authenticate(withCorrelation(ctx))
}

// TestAPI validates the stored credentials with a forced token call.
func (h *Harmony) TestAPI(ctx context.Context) (*calllog.Record, error) {
	_, rec, err := h.Token(ctx, true)
	return rec, err
}

// Authenticate performs the OAuth2 password grant and writes exactly one call record.
func (h *Harmony) Authenticate(ctx context.Context) (string, *calllog.Record, error) {
	endpoint := h.config.TokenURL + tokenPath
	h.logger.Info("Authenticating with Epsilon Harmony", zap.String("url", endpoint))

	form := map[string]string{
		"username":   h.config.Username,
		"password":   h.config.Password,
		"scope":      tokenScope,
		"grant_type": grantType,
	}
	headers := map[string]string{
		"Authorization": "Basic " + h.config.BaseToken(),
		"Content-Type":  "application/x-www-form-urlencoded",
	}

	entry := calllog.Entry{
		CorrelationID: correlationFrom(ctx),
		Endpoint:      endpoint,
		Method:        http.MethodPost,
		Headers:       calllog.EncodeJSON(headers),
		Request:       calllog.EncodeJSON(form),
	}

	resp, err := h.httpClient.Post(ctx, endpoint, headers, form)

	var statusErr *httpclient.StatusError
	switch {
	case errors.As(err, &statusErr):
		body := statusErr.Response.Body
		message := faultString(body)
		entry.StatusCode = statusErr.Response.StatusCode
		entry.StatusMessage = message
		if entry.StatusMessage == "" {
			entry.StatusMessage = statusErr.Response.ReasonPhrase()
		}
		entry.Response = string(body)
		if message == "" {
			message = string(body)
		}
		h.logger.Error("Authentication failed",
			zap.Int("status_code", entry.StatusCode),
			zap.String("response", string(body)))
		return "", nil, h.tokenFailure(ctx, entry, message, err)

	case err != nil:
		entry.StatusMessage = err.Error()
		h.logger.Error("Authentication request failed", zap.Error(err), zap.String("url", endpoint))
		return "", nil, h.tokenFailure(ctx, entry, err.Error(), err)
	}

	decoded := decodeObject(resp.Body)
	entry.StatusCode = resp.StatusCode
	entry.StatusMessage = resp.ReasonPhrase()
	entry.Response = responseJSON(decoded, resp.Body)

	token, _ := decoded["access_token"].(string)
	if resp.StatusCode != http.StatusOK || len(decoded) == 0 || token == "" {
		h.logger.Error("Authentication returned no access token",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(resp.Body)))
		return "", nil, h.tokenFailure(ctx, entry, "something went wrong while fetching the token", nil)
	}

	state := TokenState{AccessToken: token, IssuedAt: h.now().Unix()}
	h.tokenCache.store(state)
	h.persistToken(ctx, state)

	rec, err := h.logCall(ctx, entry, outcomeSuccess)
	if err != nil {
		return "", nil, err
	}
	h.metrics.observeRefresh(outcomeSuccess)

	h.logger.Info("Successfully authenticated", zap.Int64("log_id", rec.ID))
	return token, rec, nil
}

// tokenFailure writes the failure record and builds the error for it.
func (h *Harmony) tokenFailure(ctx context.Context, entry calllog.Entry, message string, cause error) error {
	h.metrics.observeRefresh(outcomeFailure)
	rec, err := h.logCall(ctx, entry, outcomeFailure)
	tokenErr := &TokenError{
		StatusCode: entry.StatusCode,
		Message:    message,
		Err:        cause,
	}
	if err != nil {
		return errors.Join(tokenErr, err)
	}
	tokenErr.LogID = rec.ID
	return tokenErr
}

// persistToken writes the new token back to the settings store. A failed write
// is logged; the token stays valid in process.
func (h *Harmony) persistToken(ctx context.Context, state TokenState) {
	if h.settings == nil {
		return
	}
	err := h.settings.Save(ctx, config.Settings{
		config.KeyAccessToken:  state.AccessToken,
		config.KeyTokenTimeout: strconv.FormatInt(state.IssuedAt, 10),
	})
	if err != nil {
		h.logger.Error("Failed to persist access token", zap.Error(fmt.Errorf("save settings: %w", err)))
	}
}
