package kfi

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("kfi: invalid argument")
	ErrNotFound        = errors.New("kfi: provider not found")
	ErrNoData          = errors.New("kfi: no matching fabric info")
	ErrIncompleteInfo  = errors.New("kfi: info record is missing attributes")
	ErrRegistryClosed  = errors.New("kfi: registry is closed")
	ErrInvalidCfg      = errors.New("kfi: invalid options")
)

// ErrorClass groups provider failures so callers can match them with
// `errors.Is` against the package sentinels.
type ErrorClass uint8

const (
	ClassProvider ErrorClass = iota
	ClassInvalidArgument
	ClassNotFound
	ClassNoData
)

func (class ErrorClass) String() string {
	switch class {
	case ClassInvalidArgument:
		return "invalid argument"
	case ClassNotFound:
		return "not found"
	case ClassNoData:
		return "no data"
	default:
		return "provider"
	}
}

// ProviderError lets a provider report a numeric status code, the way
// kernel-style providers return negative errno values. The registry never
// rewrites it: callers receive exactly what the provider returned.
type ProviderError struct {
	Provider string
	Op       string
	Code     int
	Class    ErrorClass
}

func (perr *ProviderError) Error() string {
	return fmt.Sprintf("kfi: provider %s: %s failed with code %d (%s)", perr.Provider, perr.Op, perr.Code, perr.Class)
}

// Is makes `errors.Is(err, ErrNotFound)` and friends hold for provider
// errors tagged with the matching class.
func (perr *ProviderError) Is(target error) bool {
	switch perr.Class {
	case ClassInvalidArgument:
		return target == ErrInvalidArgument
	case ClassNotFound:
		return target == ErrNotFound
	case ClassNoData:
		return target == ErrNoData
	}
	return false
}
