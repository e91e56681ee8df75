package config

import "errors"

var (
	errPositive = errors.New("value must be positive")
	errRange    = errors.New("value out of allowed range")
)
