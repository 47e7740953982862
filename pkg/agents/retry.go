package agents

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry behavior.
var (
	apiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agents_api_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	apiRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agents_api_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted",
	})
)

// retryWithBackoff executes fn with exponential backoff, retrying only
// errors whose class is retriable. Jitter (±20%) avoids thundering herds.
func retryWithBackoff(ctx context.Context, logger zerolog.Logger, maxAttempts int, initialBackoff time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err

		class := ErrorClassNetwork
		var terr *TransportError
		if errors.As(err, &terr) {
			class = terr.Class
		}
		if !shouldRetry(class) {
			return lastErr
		}
		if attempt >= maxAttempts {
			break
		}

		apiRetriesTotal.WithLabelValues(string(class)).Inc()
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		logger.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(jitter):
		}
		backoff *= 2
	}

	apiRetryExhaustedTotal.Inc()
	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}
