package procurement

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/scm/internal/domain"
)

// RetryConfig конфигурация повторов транзакции регистрации заказа.
type RetryConfig struct {
	MaxAttempts int
	// Фиксированная пауза между попытками.
	Backoff time.Duration
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию: 3 попытки с паузой 1s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Backoff:     time.Second,
	}
}

// Sleeper ждёт d либо отмены ctx. В тестах подменяется, чтобы не спать по-настоящему.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext прерывается отменой ctx.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy отделяет политику повторов от транзакционного тела.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	IsTransient func(error) bool
	Sleep       Sleeper
	// OnRetry вызывается перед паузой, когда следующая попытка точно будет.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// WithRetry выполняет op до MaxAttempts раз, повторяя только transient-ошибки.
// Возвращает число выполненных попыток и:
//   - nil при успехе;
//   - ошибку op как есть, если она не transient;
//   - *domain.RetryExhaustedError с последней ошибкой, если попытки кончились
//     или ctx отменён (во время оператора или паузы).
func WithRetry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	isTransient := policy.IsTransient
	if isTransient == nil {
		isTransient = domain.IsTransient
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, &domain.RetryExhaustedError{Attempts: attempt, Last: err}
		}
		if !isTransient(err) {
			return attempt, err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		if policy.OnRetry != nil {
			policy.OnRetry(attempt, policy.Backoff, err)
		}
		if sleepErr := sleep(ctx, policy.Backoff); sleepErr != nil {
			return attempt, &domain.RetryExhaustedError{Attempts: attempt, Last: lastErr}
		}
	}

	return maxAttempts, &domain.RetryExhaustedError{Attempts: maxAttempts, Last: lastErr}
}
