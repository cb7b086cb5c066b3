package model

import (
	"fmt"
	"slices"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day in the YYYY-MM-DD form. Lexical order equals
// chronological order for valid dates.
type Date string

func ParseDate(s string) (Date, error) {
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", fmt.Errorf("invalid date [%s], expected YYYY-MM-DD: %w", s, err)
	}
	return Date(s), nil
}

func (d Date) Before(other Date) bool {
	return d < other
}

func (d Date) String() string {
	return string(d)
}

type LogType string

const (
	LogTypeBodyWeight       LogType = "bodyWeight"
	LogTypeBodyMeasurements LogType = "bodyMeasurements"
	LogTypeExerciseProgress LogType = "exerciseProgress"
)

var LogTypes = []LogType{
	LogTypeBodyWeight,
	LogTypeBodyMeasurements,
	LogTypeExerciseProgress,
}

func (t LogType) IsValid() bool {
	return slices.Contains(LogTypes, t)
}

// MeasurementType values are the labels persisted in measurement logs, shared
// with documents written by the web app.
type MeasurementType string

const (
	MeasurementWaist      MeasurementType = "Cintura (cm)"
	MeasurementChest      MeasurementType = "Pecho (cm)"
	MeasurementHips       MeasurementType = "Cadera (cm)"
	MeasurementArmLeft    MeasurementType = "Brazo Izq. (cm)"
	MeasurementArmRight   MeasurementType = "Brazo Der. (cm)"
	MeasurementThighLeft  MeasurementType = "Muslo Izq. (cm)"
	MeasurementThighRight MeasurementType = "Muslo Der. (cm)"
)

// measurementKeys are the short names accepted as input aliases.
var measurementKeys = map[string]MeasurementType{
	"waist":       MeasurementWaist,
	"chest":       MeasurementChest,
	"hips":        MeasurementHips,
	"arm_left":    MeasurementArmLeft,
	"arm_right":   MeasurementArmRight,
	"thigh_left":  MeasurementThighLeft,
	"thigh_right": MeasurementThighRight,
}

var MeasurementTypes = []MeasurementType{
	MeasurementWaist,
	MeasurementChest,
	MeasurementHips,
	MeasurementArmLeft,
	MeasurementArmRight,
	MeasurementThighLeft,
	MeasurementThighRight,
}

func (t MeasurementType) IsValid() bool {
	return slices.Contains(MeasurementTypes, t)
}

// UnmarshalText maps a short name to its stored label. Any other value is
// kept as is and left to validation.
func (t *MeasurementType) UnmarshalText(text []byte) error {
	if mt, ok := measurementKeys[string(text)]; ok {
		*t = mt
		return nil
	}
	*t = MeasurementType(text)
	return nil
}

type BodyWeightLog struct {
	ID        string    `json:"id" firestore:"id,omitempty"`
	ClientID  string    `json:"clientId" firestore:"clientId"`
	Date      Date      `json:"date" firestore:"date"`
	WeightKg  float64   `json:"weightKg" firestore:"weightKg"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
}

func (l BodyWeightLog) LogDate() Date { return l.Date }

type BodyMeasurement struct {
	Type    MeasurementType `json:"type" firestore:"type"`
	ValueCm float64         `json:"valueCm" firestore:"valueCm"`
}

type BodyMeasurementsLog struct {
	ID           string            `json:"id" firestore:"id,omitempty"`
	ClientID     string            `json:"clientId" firestore:"clientId"`
	Date         Date              `json:"date" firestore:"date"`
	Measurements []BodyMeasurement `json:"measurements" firestore:"measurements"`
	CreatedAt    time.Time         `json:"createdAt" firestore:"createdAt"`
}

func (l BodyMeasurementsLog) LogDate() Date { return l.Date }

func (l BodyMeasurementsLog) Clone() BodyMeasurementsLog {
	l.Measurements = slices.Clone(l.Measurements)
	return l
}

// ExerciseProgressLog keeps ExerciseName as it was when the log was written.
type ExerciseProgressLog struct {
	ID           string    `json:"id" firestore:"id,omitempty"`
	ClientID     string    `json:"clientId" firestore:"clientId"`
	Date         Date      `json:"date" firestore:"date"`
	RoutineID    string    `json:"routineId" firestore:"routineId"`
	ExerciseID   string    `json:"exerciseId" firestore:"exerciseId"`
	ExerciseName string    `json:"exerciseName" firestore:"exerciseName"`
	WeightLbs    *float64  `json:"weightLbs,omitempty" firestore:"weightLbs,omitempty"`
	RepsAchieved string    `json:"repsAchieved,omitempty" firestore:"repsAchieved,omitempty"`
	Duration     string    `json:"duration,omitempty" firestore:"duration,omitempty"`
	Notes        string    `json:"notes,omitempty" firestore:"notes,omitempty"`
	CreatedAt    time.Time `json:"createdAt" firestore:"createdAt"`
}

func (l ExerciseProgressLog) LogDate() Date { return l.Date }

// Dated is implemented by every log entry.
type Dated interface {
	LogDate() Date
}

// SortByDateDesc sorts logs newest day first. Entries of the same day keep
// their relative order.
func SortByDateDesc[T Dated](logs []T) {
	slices.SortStableFunc(logs, func(a, b T) int {
		switch {
		case b.LogDate().Before(a.LogDate()):
			return -1
		case a.LogDate().Before(b.LogDate()):
			return 1
		}
		return 0
	})
}
