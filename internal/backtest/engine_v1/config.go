package engine

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"gopkg.in/yaml.v3"

	"github.com/chronoton-lab/chronoton/internal/policy"
	"github.com/chronoton-lab/chronoton/internal/types"
	"github.com/chronoton-lab/chronoton/pkg/errors"
)

// Config is the full configuration surface of one backtest run. It is
// validated eagerly at construction: invalid combinations fail before any
// tick is processed.
type Config struct {
	InitialCapital float64 `yaml:"initial_capital" validate:"gt=0"`
	// CFD holds the policy parameters for CFD instruments. Required if any
	// instrument is tagged CFD.
	CFD optional.Option[policy.Params] `yaml:"cfd"`
	// ShareDealing holds the policy parameters for share dealing instruments.
	ShareDealing optional.Option[policy.Params] `yaml:"share_dealing"`
	Instruments  []types.Instrument             `yaml:"instruments" validate:"required,min=1,dive"`
	// StartTime and EndTime optionally restrict the replay window.
	StartTime optional.Option[time.Time] `yaml:"start_time"`
	EndTime   optional.Option[time.Time] `yaml:"end_time"`
}

// UnmarshalYAML implements custom unmarshaling for Config.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type rawConfig struct {
		InitialCapital float64            `yaml:"initial_capital"`
		CFD            *policy.Params     `yaml:"cfd"`
		ShareDealing   *policy.Params     `yaml:"share_dealing"`
		Instruments    []types.Instrument `yaml:"instruments"`
		StartTime      *time.Time         `yaml:"start_time"`
		EndTime        *time.Time         `yaml:"end_time"`
	}

	var raw rawConfig
	if err := unmarshal(&raw); err != nil {
		return err
	}

	c.InitialCapital = raw.InitialCapital
	c.Instruments = raw.Instruments

	if raw.CFD != nil {
		c.CFD = optional.Some(*raw.CFD)
	}

	if raw.ShareDealing != nil {
		c.ShareDealing = optional.Some(*raw.ShareDealing)
	}

	if raw.StartTime != nil {
		c.StartTime = optional.Some(*raw.StartTime)
	}

	if raw.EndTime != nil {
		c.EndTime = optional.Some(*raw.EndTime)
	}

	return nil
}

// ParseConfig parses and validates a yaml config document.
func ParseConfig(content []byte) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(content, &config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks the structural constraints and the cross-field rules that
// the validator tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid backtest config", err)
	}

	if c.StartTime.IsSome() && c.EndTime.IsSome() && c.EndTime.Unwrap().Before(c.StartTime.Unwrap()) {
		return errors.New(errors.ErrCodeInvalidConfiguration, "end_time is before start_time")
	}

	seen := make(map[string]struct{}, len(c.Instruments))

	for i := range c.Instruments {
		instrument := &c.Instruments[i]
		if err := instrument.Validate(); err != nil {
			return err
		}

		if _, ok := seen[instrument.Symbol]; ok {
			return errors.Newf(errors.ErrCodeInvalidConfiguration,
				"duplicate instrument symbol: %s", instrument.Symbol)
		}

		seen[instrument.Symbol] = struct{}{}

		switch instrument.AssetClass {
		case types.AssetClassCFD:
			if c.CFD.IsNone() {
				return errors.Newf(errors.ErrCodeInvalidConfiguration,
					"instrument %s is tagged CFD but no cfd policy is configured", instrument.Symbol)
			}
		case types.AssetClassShareDealing:
			if c.ShareDealing.IsNone() {
				return errors.Newf(errors.ErrCodeInvalidConfiguration,
					"instrument %s is tagged SHARE_DEALING but no share_dealing policy is configured", instrument.Symbol)
			}
		}
	}

	return nil
}

// BuildRegistry constructs the policy registry from the configured policy
// sections. Policy parameter validation happens here.
func (c *Config) BuildRegistry() (*policy.Registry, error) {
	policies := make([]policy.Policy, 0, 2)

	if c.CFD.IsSome() {
		cfd, err := policy.NewCFDPolicy(c.CFD.Unwrap())
		if err != nil {
			return nil, err
		}

		policies = append(policies, cfd)
	}

	if c.ShareDealing.IsSome() {
		share, err := policy.NewShareDealingPolicy(c.ShareDealing.Unwrap())
		if err != nil {
			return nil, err
		}

		policies = append(policies, share)
	}

	return policy.NewRegistry(policies...), nil
}
