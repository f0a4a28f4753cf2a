package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/businessweb01/dbmiddleware/internal/domain"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultSinkTimeout   = 30 * time.Second
	defaultMaxRetries    = 3
	baseRetryDelay       = time.Second
	maxRetryDelay        = 30 * time.Second
	maxRetryJitterMillis = 250
)

// Response stores sink call metadata for audit and logging.
type Response struct {
	StatusCode int
	Body       string
}

// AttemptRecorder persists per-attempt delivery audit rows.
type AttemptRecorder interface {
	Create(ctx context.Context, attempt *domain.DeliveryAttempt) error
}

// Client delivers terminal bookings to the downstream HTTP sink. A single
// Deliver call owns the full retry loop: transient failures are retried with
// capped exponential backoff, permanent failures surface immediately.
type Client struct {
	client     *resty.Client
	endpoint   string
	maxRetries int
	attempts   AttemptRecorder
	logger     *zap.Logger
	now        func() time.Time
	randIntn   func(n int) int
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewClient(endpoint string, timeout time.Duration, maxRetries int, logger *zap.Logger) (*Client, error) {
	if timeout <= 0 {
		timeout = defaultSinkTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewClientWithResty(endpoint, maxRetries, client, logger)
}

func NewClientWithResty(endpoint string, maxRetries int, client *resty.Client, logger *zap.Logger) (*Client, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("sink endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid sink endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSinkTimeout)
	}
	// The retry loop lives in Deliver; resty must not retry underneath it.
	client.SetRetryCount(0)

	return &Client{
		client:     client,
		endpoint:   trimmedEndpoint,
		maxRetries: maxRetries,
		logger:     logger,
		now:        time.Now,
		randIntn:   rand.Intn,
		sleep:      sleepWithContext,
	}, nil
}

// SetAttemptRecorder enables per-attempt audit persistence.
func (c *Client) SetAttemptRecorder(attempts AttemptRecorder) {
	if c == nil {
		return
	}
	c.attempts = attempts
}

// Deliver sends one booking to the sink, retrying transient failures up to
// 1 + maxRetries total attempts. It returns the accepted response, or a
// terminal error once retries are exhausted or a permanent failure occurs.
func (c *Client) Deliver(ctx context.Context, booking *domain.Booking) (*Response, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("sink client is not initialized")
	}
	if err := booking.Validate(); err != nil {
		return nil, err
	}

	maxAttempts := 1 + c.maxRetries

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.Send(ctx, booking, attempt)
		c.recordAttempt(ctx, booking.ID, attempt, resp, err)

		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := c.computeRetryDelay(attempt)
		c.logger.Warn("sink delivery failed, retrying",
			zap.String("bookingId", booking.ID),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", maxAttempts),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &SinkError{
		Kind:      FailureRetryExhausted,
		Message:   fmt.Sprintf("gave up after %d attempts", maxAttempts),
		Transient: false,
		Cause:     lastErr,
	}
}

// Send performs a single HTTP attempt with the normalized payload.
func (c *Client) Send(ctx context.Context, booking *domain.Booking, attempt int) (*Response, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("sink client is not initialized")
	}

	payload := normalizePayload(booking, attempt)

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.endpoint)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if response == nil {
		return nil, &SinkError{
			Kind:      FailureTransport,
			Message:   "sink returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		// A markup body on a 2xx usually means a proxy or captive portal
		// answered instead of the sink. Never count that as accepted.
		if looksLikeMarkup(responseBody) {
			return nil, &SinkError{
				Kind:       FailureUnexpectedFormat,
				StatusCode: statusCode,
				Message:    "sink returned a markup error page",
				Transient:  false,
			}
		}
		return &Response{StatusCode: statusCode, Body: responseBody}, nil
	}

	return nil, &SinkError{
		Kind:       failureKindForStatus(statusCode),
		StatusCode: statusCode,
		Message:    sinkErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func (c *Client) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	jitterMillis := 0
	if c.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = c.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func (c *Client) recordAttempt(ctx context.Context, bookingID string, attemptNumber int, resp *Response, sendErr error) {
	if c.attempts == nil {
		return
	}

	var statusCode *int
	var responseBody *string
	var attemptErr *string

	if resp != nil {
		if resp.StatusCode > 0 {
			value := resp.StatusCode
			statusCode = &value
		}
		if body := strings.TrimSpace(resp.Body); body != "" {
			value := resp.Body
			responseBody = &value
		}
	}

	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value

		var sinkErr *SinkError
		if errors.As(sendErr, &sinkErr) && sinkErr.StatusCode > 0 && statusCode == nil {
			value := sinkErr.StatusCode
			statusCode = &value
		}
	}

	attempt := &domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		BookingID:     bookingID,
		AttemptNumber: attemptNumber,
		StatusCode:    statusCode,
		ResponseBody:  responseBody,
		Error:         attemptErr,
		CreatedAt:     c.now().UTC(),
	}

	if err := c.attempts.Create(ctx, attempt); err != nil {
		c.logger.Warn("failed to record delivery attempt",
			zap.String("bookingId", bookingID),
			zap.Int("attempt", attemptNumber),
			zap.Error(err),
		)
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return &SinkError{
			Kind:      FailureTransport,
			Message:   "sink request canceled",
			Transient: false,
			Cause:     err,
		}
	}

	kind := FailureTransport
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		kind = FailureTimeout
	}

	return &SinkError{
		Kind:      kind,
		Message:   "sink request failed",
		Transient: true,
		Cause:     err,
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var te timeouter
	return errors.As(err, &te) && te.Timeout()
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func failureKindForStatus(statusCode int) FailureKind {
	if isTransientHTTPStatus(statusCode) {
		return FailureServerError
	}
	return FailureClientError
}

func sinkErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("sink returned status %d", statusCode)
	if body == "" {
		return base
	}
	if json.Valid([]byte(body)) {
		return fmt.Sprintf("%s: %s", base, body)
	}
	if looksLikeMarkup(body) {
		return fmt.Sprintf("%s: markup error page", base)
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func looksLikeMarkup(body string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(body))
	for _, prefix := range []string{"<!doctype", "<html", "<head", "<body"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
