package outbox

import "time"

const (
	minBackoff = 60 * time.Second
	maxBackoff = 3600 * time.Second

	DefaultBatchSize   = 50
	DefaultMaxAttempts = 5
)

// Backoff возвращает задержку перед попыткой номер attempt+1: 60s·2^(attempt-1) в пределах [60s, 3600s].
func Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return minBackoff
	}
	d := minBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// ClampBatchSize: 1..200, ноль и отрицательные значения дают значение по умолчанию.
func ClampBatchSize(n int) int {
	switch {
	case n <= 0:
		return DefaultBatchSize
	case n > 200:
		return 200
	default:
		return n
	}
}

// ClampMaxAttempts: 1..20, по умолчанию 5.
func ClampMaxAttempts(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxAttempts
	case n > 20:
		return 20
	default:
		return n
	}
}
