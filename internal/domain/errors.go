package domain

import "errors"

var (
	// ErrUnsupportedSlippageModel is returned when the configured
	// slippage model name is unknown. Configuration errors are fatal
	// and surface at construction, never silently defaulted.
	ErrUnsupportedSlippageModel = errors.New("unsupported slippage model")

	// ErrUnsupportedTimeframe is returned by the data layer for an
	// unknown timeframe string.
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")

	// ErrEngineAlreadyRun is returned when a backtest engine is run a
	// second time; the engine is single pass.
	ErrEngineAlreadyRun = errors.New("backtest engine already run")

	// ErrNoData is returned when a data lookup yields nothing usable.
	ErrNoData = errors.New("no data")

	// ErrFeedClosed is returned when an event is submitted after the
	// feed handler began its drain-then-stop shutdown.
	ErrFeedClosed = errors.New("feed closed")
)

// ConfigError wraps a configuration failure with the offending field.
// Never retriable.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
