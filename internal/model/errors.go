package model

import "errors"

var (
	// Rule related errors
	ErrRuleNotFound    = errors.New("retention rule not found")
	ErrRuleBusy        = errors.New("rule already has an active run")
	ErrActionImmutable = errors.New("action cannot change while rule is enabled and has runs")

	// Run related errors
	ErrRunNotFound   = errors.New("enforcement run not found")
	ErrRunNotRunning = errors.New("run is not in progress")
	ErrRunLimit      = errors.New("maximum concurrent runs reached")

	// Provider/sink related errors
	ErrResourceNotFound    = errors.New("resource not found")
	ErrUnknownResourceType = errors.New("unknown resource type")
	ErrUnknownCriterion    = errors.New("unknown criteria type")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
