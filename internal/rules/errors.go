package rules

import "errors"

var errNonPositiveStopDistance = errors.New("rules: stop distance must be positive")
