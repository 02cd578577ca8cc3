package config

import "errors"

// Sentinel errors; match with errors.Is
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
