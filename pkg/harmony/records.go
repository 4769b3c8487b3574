package harmony

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/natserract/harmony/pkg/calllog"
	httpclient "github.com/natserract/harmony/pkg/http"
	"go.uber.org/zap"
)

// CreateRecord creates a customer profile record
func (h *Harmony) CreateRecord(ctx context.Context, profile Profile) (*Result, error) {
	key, _ := profile.CustomerKey()
	h.logger.Info("Creating record", zap.String("customer_key", key))

	endpoint, err := h.recordsURL()
	if err != nil {
		return nil, err
	}
	return h.call(ctx, "create record", http.MethodPost, endpoint, profile)
}

// UpdateRecord replaces the profile record identified by its CustomerKey
func (h *Harmony) UpdateRecord(ctx context.Context, profile Profile) (*Result, error) {
	key, _ := profile.CustomerKey()
	if err := checkCustomerKey(key); err != nil {
		return nil, err
	}
	h.logger.Info("Updating record", zap.String("customer_key", key))

	endpoint, err := h.recordsURL(key)
	if err != nil {
		return nil, err
	}
	return h.call(ctx, "update record", http.MethodPut, endpoint, profile)
}

// DeleteRecord deletes the profile record with the given CustomerKey
func (h *Harmony) DeleteRecord(ctx context.Context, customerKey string) (*Result, error) {
	if err := checkCustomerKey(customerKey); err != nil {
		return nil, err
	}
	h.logger.Info("Deleting record", zap.String("customer_key", customerKey))

	endpoint, err := h.recordsURL(customerKey)
	if err != nil {
		return nil, err
	}
	return h.call(ctx, "delete record", http.MethodDelete, endpoint, nil)
}

// RetrieveRecord fetches the profile record with the given CustomerKey
func (h *Harmony) RetrieveRecord(ctx context.Context, customerKey string) (*Result, error) {
	if err := checkCustomerKey(customerKey); err != nil {
		return nil, err
	}
	h.logger.Info("Retrieving record", zap.String("customer_key", customerKey))

	endpoint, err := h.recordsURL(customerKey)
	if err != nil {
		return nil, err
	}
	return h.call(ctx, "retrieve record", http.MethodGet, endpoint, nil)
}

// checkCustomerKey rejects keys that cannot name a single record.
func checkCustomerKey(key string) error {
	switch key {
	case "":
		return ErrMissingCustomerKey
	case ".", "..":
		return fmt.Errorf("%w: %q", ErrInvalidCustomerKey, key)
	}
	return nil
}

func (h *Harmony) recordsURL(key ...string) (string, error) {
	segments := append([]string{"v4", "profiles", "records"}, key...)
	endpoint, err := httpclient.JoinURL(h.config.APIURL, segments...)
	if err != nil {
		h.logger.Error("Failed to build URL", zap.Error(err))
		return "", fmt.Errorf("failed to build URL: %w", err)
	}
	return endpoint, nil
}

// call runs one records request: token, send, classify, log.
// body must be an untyped nil for requests without a payload.
func (h *Harmony) call(ctx context.Context, op, method, endpoint string, body interface{}) (*Result, error) {
	ctx = withCorrelation(ctx)

	token, _, err := h.Token(ctx, false)
	if err != nil {
		h.logger.Error("Failed to get access token", zap.String("op", op), zap.Error(err))
		return nil, err
	}

	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"X-OUID":        h.config.XOUID,
		"Content-Type":  "application/json",
	}

	entry := calllog.Entry{
		CorrelationID: correlationFrom(ctx),
		Endpoint:      endpoint,
		Method:        method,
		Headers:       calllog.EncodeJSON(headers),
		Request:       calllog.EncodeJSON(body),
	}

	h.logger.Debug("Making request", zap.String("method", method), zap.String("endpoint", endpoint))
	resp, err := h.httpClient.Do(httpclient.RequestOptions{
		Method:  method,
		URL:     endpoint,
		Headers: headers,
		Body:    body,
		Context: ctx,
	})

	var statusErr *httpclient.StatusError
	switch {
	case errors.As(err, &statusErr):
		raw := statusErr.Response.Body
		entry.StatusCode = statusErr.Response.StatusCode
		entry.StatusMessage = resultCode(raw)
		message := entry.StatusMessage
		if entry.StatusMessage == "" {
			entry.StatusMessage = statusErr.Response.ReasonPhrase()
			message = string(raw)
		}
		entry.Response = string(raw)

		// diagnostic channel, separate from the call log
		h.logger.Error(err.Error(), zap.String("op", op))
		return nil, h.remoteFailure(ctx, op, entry, ErrProviderRejected, message, err)

	case err != nil:
		entry.StatusMessage = err.Error()
		h.logger.Error(err.Error(), zap.String("op", op))
		return nil, h.remoteFailure(ctx, op, entry, ErrTransport, err.Error(), err)
	}

	decoded := decodeObject(resp.Body)
	entry.StatusCode = resp.StatusCode
	entry.StatusMessage = resp.ReasonPhrase()
	entry.Response = responseJSON(decoded, resp.Body)

	if resp.StatusCode != http.StatusOK || len(decoded) == 0 {
		h.logger.Warn("Request returned no usable payload",
			zap.String("op", op),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(resp.Body)))
		return nil, h.remoteFailure(ctx, op, entry, ErrOperationFailed,
			fmt.Sprintf("status %d with empty or unreadable payload", resp.StatusCode), nil)
	}

	rec, err := h.logCall(ctx, entry, outcomeSuccess)
	if err != nil {
		return nil, err
	}

	h.logger.Info("Request succeeded",
		zap.String("op", op),
		zap.Int("status_code", resp.StatusCode),
		zap.Int64("log_id", rec.ID))

	return &Result{
		Data:       decoded,
		StatusCode: resp.StatusCode,
		LogID:      rec.ID,
		Record:     rec,
	}, nil
}

func (h *Harmony) remoteFailure(ctx context.Context, op string, entry calllog.Entry, kind error, message string, cause error) error {
	rec, err := h.logCall(ctx, entry, outcomeFailure)
	remoteErr := &RemoteError{
		Op:         op,
		Kind:       kind,
		StatusCode: entry.StatusCode,
		Message:    message,
		Err:        cause,
	}
	if err != nil {
		return errors.Join(remoteErr, err)
	}
	remoteErr.LogID = rec.ID
	return remoteErr
}
