package model

import (
	"errors"
	"fmt"
)

var (
	ErrNonPositiveWeight  = errors.New("weight must be positive")
	ErrNonPositiveValue   = errors.New("measurement value must be positive")
	ErrUnknownMeasurement = errors.New("unknown measurement type")
	ErrNoMeasurements     = errors.New("at least one measurement is required")
)

func ValidateBodyWeight(weightKg float64) error {
	if weightKg <= 0 {
		return ErrNonPositiveWeight
	}
	return nil
}

func ValidateMeasurements(measurements []BodyMeasurement) error {
	if len(measurements) == 0 {
		return ErrNoMeasurements
	}
	for _, m := range measurements {
		if !m.Type.IsValid() {
			return fmt.Errorf("%w: %s", ErrUnknownMeasurement, m.Type)
		}
		if m.ValueCm <= 0 {
			return fmt.Errorf("%s: %w", m.Type, ErrNonPositiveValue)
		}
	}
	return nil
}
