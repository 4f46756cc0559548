package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	deliveryTimeout = 5 * time.Second
	deliveryTries   = 3

	// HeaderAlertID carries AlertEvent.ID so receivers can drop the
	// duplicates a retried delivery may produce.
	HeaderAlertID = "X-Turnguard-Alert"
	// HeaderAlertType carries AlertEvent.Type for routing without parsing the body.
	HeaderAlertType = "X-Turnguard-Alert-Type"
)

var (
	webhookClient = &http.Client{Timeout: deliveryTimeout}
	// retryDelay grows linearly with the attempt number.
	retryDelay = time.Second
)

// RejectedError is a 4xx answer from a webhook. The receiver refused the
// turn alert itself, so it is not retried.
type RejectedError struct {
	URL    string
	Status int
	// Err is set instead of Status when the request could not be built.
	Err error
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("alert webhook %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("alert rejected by %s: HTTP %d", e.URL, e.Status)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// Send delivers one turn alert to cfg.URL in cfg.Format. Transport errors
// and 5xx answers are retried until ctx ends or the tries run out.
func Send(ctx context.Context, cfg AlertConfig, event AlertEvent) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("alert %s: format: %w", event.ID(), err)
	}

	var lastErr error
	for attempt := 1; attempt <= deliveryTries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("alert %s: %w (last error: %v)", event.ID(), ctx.Err(), lastErr)
			case <-time.After(time.Duration(attempt-1) * retryDelay):
			}
		}

		lastErr = post(ctx, cfg, event, body)
		var rejected *RejectedError
		if lastErr == nil || errors.As(lastErr, &rejected) {
			return lastErr
		}
	}
	return fmt.Errorf("alert %s: gave up after %d tries: %w", event.ID(), deliveryTries, lastErr)
}

func post(ctx context.Context, cfg AlertConfig, event AlertEvent, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return &RejectedError{URL: cfg.URL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "turnguard-alert")
	req.Header.Set(HeaderAlertID, event.ID())
	req.Header.Set(HeaderAlertType, event.Type)
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := webhookClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &RejectedError{URL: cfg.URL, Status: resp.StatusCode}
	default:
		return errors.New("webhook answered HTTP " + strconv.Itoa(resp.StatusCode))
	}
}
