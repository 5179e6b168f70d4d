package session

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ReconnectPolicy controls the delay between reconnection attempts.
// Attempts never stop; the delay grows by Multiplier up to MaxDelay and
// resets once a connection opens. Multiplier 1 keeps a fixed delay.
type ReconnectPolicy struct {
	Delay      time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

const (
	defaultReconnectDelay      = 1000 * time.Millisecond
	defaultReconnectMax        = 30 * time.Second
	defaultReconnectMultiplier = 1.5
)

// DefaultReconnectPolicy starts at one second and caps at thirty
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Delay:      defaultReconnectDelay,
		MaxDelay:   defaultReconnectMax,
		Multiplier: defaultReconnectMultiplier,
	}
}

// withDefaults fills every unset field from DefaultReconnectPolicy
func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	def := DefaultReconnectPolicy()
	if p.Delay <= 0 {
		p.Delay = def.Delay
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxDelay < p.Delay {
		p.MaxDelay = p.Delay
	}
	return p
}

func (p ReconnectPolicy) newBackOff() *backoff.ExponentialBackOff {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // retry forever
	b.Reset()
	return b
}
