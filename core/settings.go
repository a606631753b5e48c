package core

import "fmt"

// Settings are the environment options that shape feature vectors and
// rewards.
type Settings struct {
	// GlobalRewardWeightConsumer blends the owning facility's profit into
	// consumer rewards: 0 is own profit only, 1 is facility profit only.
	GlobalRewardWeightConsumer float64 `mapstructure:"global_reward_weight_consumer" yaml:"global_reward_weight_consumer" validate:"gte=0,lte=1"`
	ConstraintStateHistLen     int     `mapstructure:"constraint_state_hist_len" yaml:"constraint_state_hist_len" validate:"gte=1"`
	SaleHistLen                int     `mapstructure:"sale_hist_len" yaml:"sale_hist_len" validate:"gte=1"`
	ConsumptionHistLen         int     `mapstructure:"consumption_hist_len" yaml:"consumption_hist_len" validate:"gte=1"`
	PendingOrderLen            int     `mapstructure:"pending_order_len" yaml:"pending_order_len" validate:"gte=1"`
	// Parallelism > 1 builds agent states on that many goroutines.
	Parallelism int `mapstructure:"parallelism" yaml:"parallelism" validate:"gte=0"`
}

// DefaultSettings mirrors the stock scenario configuration.
func DefaultSettings() Settings {
	return Settings{
		GlobalRewardWeightConsumer: 0.5,
		ConstraintStateHistLen:     4,
		SaleHistLen:                4,
		ConsumptionHistLen:         4,
		PendingOrderLen:            4,
		Parallelism:                1,
	}
}

// Check rejects settings the core cannot work with. Config loading runs the
// richer struct validation; this guards direct library use.
func (s Settings) Check() error {
	if s.GlobalRewardWeightConsumer < 0 || s.GlobalRewardWeightConsumer > 1 {
		return fmt.Errorf("%w: global_reward_weight_consumer %v outside [0,1]", ErrInvalidSettings, s.GlobalRewardWeightConsumer)
	}
	for name, v := range map[string]int{
		"constraint_state_hist_len": s.ConstraintStateHistLen,
		"sale_hist_len":             s.SaleHistLen,
		"consumption_hist_len":      s.ConsumptionHistLen,
		"pending_order_len":         s.PendingOrderLen,
	} {
		if v < 1 {
			return fmt.Errorf("%w: %s must be >= 1, got %d", ErrInvalidSettings, name, v)
		}
	}
	return nil
}
