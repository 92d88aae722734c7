package signals

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kjannette/trahn-signals/internal/apperr"
	"github.com/kjannette/trahn-signals/internal/models"
)

const (
	MinConfidence = 0.6

	DefaultCooldown          = 5 * time.Minute
	DefaultBreakerMinTrades  = 10
	DefaultBreakerMinWinRate = 0.4
)

// Validate checks a signal's shape. A confidence of exactly MinConfidence is
// accepted.
func Validate(sig models.Signal) error {
	var problems []error
	if sig.TokenAddress == "" {
		problems = append(problems, errors.New("token address is required"))
	}
	if sig.Type == "" {
		problems = append(problems, errors.New("type is required"))
	} else if !sig.Type.Valid() {
		problems = append(problems, fmt.Errorf("type %q is not BUY or SELL", sig.Type))
	}
	if sig.Source == "" {
		problems = append(problems, errors.New("source is required"))
	}
	// Written so NaN fails both bounds.
	if !(sig.Confidence >= MinConfidence && sig.Confidence <= 1) {
		problems = append(problems, fmt.Errorf("confidence %.2f outside [%.2f, 1]", sig.Confidence, MinConfidence))
	}
	if !(sig.Amount > 0) || math.IsInf(sig.Amount, 0) {
		problems = append(problems, fmt.Errorf("amount %v must be positive", sig.Amount))
	}
	if len(problems) == 0 {
		return nil
	}
	return apperr.New(apperr.KindValidation, "validate signal", errors.Join(problems...))
}

type RejectReason string

const (
	RejectCooldown       RejectReason = "cooldown"
	RejectCircuitBreaker RejectReason = "circuit_breaker"
)

// Decision is the outcome of ShouldExecute.
type Decision struct {
	Execute bool
	Reason  RejectReason
	Detail  string
}

func accept() Decision { return Decision{Execute: true} }

func (d Decision) Err() error {
	if d.Execute {
		return nil
	}
	return apperr.Newf(apperr.KindRejected, "should execute", "%s: %s", d.Reason, d.Detail)
}

// Policy holds the execution gates. The zero value uses the defaults.
type Policy struct {
	Cooldown          time.Duration
	BreakerMinTrades  int
	BreakerMinWinRate float64
}

func DefaultPolicy() Policy {
	return Policy{
		Cooldown:          DefaultCooldown,
		BreakerMinTrades:  DefaultBreakerMinTrades,
		BreakerMinWinRate: DefaultBreakerMinWinRate,
	}
}

// ShouldExecute is a pure function of its inputs. recent maps a token to the
// time its last signal was accepted.
func (p Policy) ShouldExecute(sig models.Signal, token string, recent map[string]time.Time, stats models.PerformanceStats, now time.Time) Decision {
	p = p.withDefaults()

	if last, ok := recent[token]; ok {
		if elapsed := now.Sub(last); elapsed < p.Cooldown {
			return Decision{
				Reason: RejectCooldown,
				Detail: fmt.Sprintf("%s signal for %s %s after previous, cooldown %s",
					sig.Type, token, elapsed.Round(time.Second), p.Cooldown),
			}
		}
	}

	if stats.TotalTrades > p.BreakerMinTrades && stats.WinRate < p.BreakerMinWinRate {
		return Decision{
			Reason: RejectCircuitBreaker,
			Detail: fmt.Sprintf("win rate %.2f below %.2f over %d trades",
				stats.WinRate, p.BreakerMinWinRate, stats.TotalTrades),
		}
	}

	return accept()
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Cooldown <= 0 {
		p.Cooldown = d.Cooldown
	}
	if p.BreakerMinTrades <= 0 {
		p.BreakerMinTrades = d.BreakerMinTrades
	}
	if p.BreakerMinWinRate <= 0 {
		p.BreakerMinWinRate = d.BreakerMinWinRate
	}
	return p
}
