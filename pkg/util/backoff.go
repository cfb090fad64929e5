package util

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/spf13/viper"
)

const (
	paramRetryInterval = "retry-interval"
	paramRetryMaxCount = "retry-max-count"
	paramRetryMaxTime  = "retry-max-time"
	paramRetryPolicy   = "retry-policy"

	policyConstant    = "constant"
	policyDisabled    = "disabled"
	policyExponential = "exponential"
)

// BackoffFactory creates a fresh backoff.BackOff for every run of reconnect attempts.
type BackoffFactory func() backoff.BackOff

// ReconnectPolicy describes how a sink retries a failed connection.
type ReconnectPolicy struct {
	Policy   string        // disabled, constant or exponential
	Interval time.Duration // only used by the constant policy
	MaxCount int64         // 0 means no limit on attempts
	MaxTime  time.Duration
}

// DefaultReconnectPolicy retries with an exponential backoff for up to 15 seconds.
var DefaultReconnectPolicy = ReconnectPolicy{
	Policy:   policyExponential,
	Interval: time.Second,
	MaxTime:  15 * time.Second,
}

func (p ReconnectPolicy) validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("%s must be positive, got %v", paramRetryInterval, p.Interval)
	}
	if p.MaxCount < 0 {
		return fmt.Errorf("%s must not be negative, got %d", paramRetryMaxCount, p.MaxCount)
	}
	if p.MaxTime <= 0 {
		return fmt.Errorf("%s must be positive, got %v", paramRetryMaxTime, p.MaxTime)
	}
	return nil
}

// Factory validates the policy and turns it into a BackoffFactory.
func (p ReconnectPolicy) Factory() (BackoffFactory, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	switch p.Policy {
	case policyDisabled:
		return func() backoff.BackOff { return &backoff.StopBackOff{} }, nil
	case policyConstant:
		// A multiplier of 1 keeps the randomized interval from growing.
		return newBackoffFactory(1.0, p.Interval, p.MaxTime, uint64(p.MaxCount)), nil
	case policyExponential:
		return newBackoffFactory(backoff.DefaultMultiplier, backoff.DefaultInitialInterval, p.MaxTime, uint64(p.MaxCount)), nil
	default:
		return nil, fmt.Errorf("%s %q is not one of %s, %s, %s", paramRetryPolicy, p.Policy, policyDisabled, policyConstant, policyExponential)
	}
}

func newBackoffFactory(multiplier float64, initial, maxElapsed time.Duration, maxRetries uint64) BackoffFactory {
	return func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.Multiplier = multiplier
		bo.InitialInterval = initial
		bo.MaxElapsedTime = maxElapsed
		bo.Reset() // picks up InitialInterval
		if maxRetries > 0 {
			return backoff.WithMaxRetries(bo, maxRetries)
		}
		return bo
	}
}

// GetRetryFromViper reads the reconnect policy of a sink from its section of the configuration.
func GetRetryFromViper(v *viper.Viper) (BackoffFactory, error) {
	v.SetDefault(paramRetryPolicy, DefaultReconnectPolicy.Policy)
	v.SetDefault(paramRetryInterval, DefaultReconnectPolicy.Interval)
	v.SetDefault(paramRetryMaxCount, DefaultReconnectPolicy.MaxCount)
	v.SetDefault(paramRetryMaxTime, DefaultReconnectPolicy.MaxTime)

	return ReconnectPolicy{
		Policy:   v.GetString(paramRetryPolicy),
		Interval: v.GetDuration(paramRetryInterval),
		MaxCount: v.GetInt64(paramRetryMaxCount),
		MaxTime:  v.GetDuration(paramRetryMaxTime),
	}.Factory()
}
