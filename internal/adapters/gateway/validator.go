// Package gateway validates connect-time credentials against the external
// session-validation service. It fails closed: a connection is admitted only
// after a definite positive answer.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrCredentialInvalid  = errors.New("credential invalid")
	ErrServiceUnavailable = errors.New("validation service unavailable")
)

// Validator calls the session-validation endpoint with a request timeout and
// a small bounded retry on transient failures. A 4xx answer is terminal; 5xx
// and transport errors retry with exponential backoff.
type Validator struct {
	endpoint string
	client   *http.Client
	attempts int
	backoff  time.Duration

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

func NewValidator(endpoint string, timeout time.Duration, attempts int, backoff time.Duration) *Validator {
	if attempts < 1 {
		attempts = 1
	}
	return &Validator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		attempts: attempts,
		backoff:  backoff,
		sleep:    time.Sleep,
	}
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

// Validate checks one credential. It returns nil on success,
// ErrCredentialInvalid when the service rejects the credential, and
// ErrServiceUnavailable once the retry budget is spent.
func (v *Validator) Validate(ctx context.Context, credential string) error {
	if credential == "" {
		return ErrCredentialInvalid
	}
	body, _ := json.Marshal(validateRequest{Token: credential})

	delay := v.backoff
	var lastErr error
	for attempt := 1; attempt <= v.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrServiceUnavailable, ctx.Err())
			default:
			}
			v.sleep(delay)
			delay *= 2
		}
		err := v.validateOnce(ctx, body)
		if err == nil || errors.Is(err, ErrCredentialInvalid) {
			return err
		}
		lastErr = err
		log.Warn().Str("module", "gateway").
			Int("attempt", attempt).Err(err).
			Msg("credential validation attempt failed")
	}
	return fmt.Errorf("%w: %w", ErrServiceUnavailable, lastErr)
}

func (v *Validator) validateOnce(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var vr validateResponse
		if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
			return fmt.Errorf("decode validation response: %w", err)
		}
		if !vr.Valid {
			return ErrCredentialInvalid
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrCredentialInvalid
	default:
		return fmt.Errorf("validation service status %d", resp.StatusCode)
	}
}
