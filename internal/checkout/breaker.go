package checkout

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

// BreakerProcessor stops calling a wallet after repeated failures so the
// payment page fails fast instead of hanging on a dead gateway.
type BreakerProcessor struct {
	next Processor
	cb   *gobreaker.CircuitBreaker[Receipt]
}

type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func NewBreakerProcessor(next Processor, s BreakerSettings, logger *slog.Logger) *BreakerProcessor {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	threshold := s.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker[Receipt](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Payment breaker state changed", "processor", name, "from", from.String(), "to", to.String())
		},
	})
	return &BreakerProcessor{next: next, cb: cb}
}

func (b *BreakerProcessor) Process(ctx context.Context, amount decimal.Decimal) (Receipt, error) {
	return b.cb.Execute(func() (Receipt, error) {
		return b.next.Process(ctx, amount)
	})
}

func (b *BreakerProcessor) State() gobreaker.State {
	return b.cb.State()
}
