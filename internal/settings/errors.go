package settings

import "errors"

var (
	ErrInvalidRule   = errors.New("settings: invalid rule")
	ErrDuplicateRule = errors.New("settings: duplicate rule")
	ErrRuleNotFound  = errors.New("settings: rule not found")
)
