package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_IsValid(t *testing.T) {
	assert.True(t, RoleSuperCoach.IsValid())
	assert.True(t, RoleCoach.IsValid())
	assert.True(t, RoleClient.IsValid())
	assert.False(t, Role("admin").IsValid())
	assert.False(t, Role("").IsValid())
}

func TestUser_Complete(t *testing.T) {
	assert.True(t, User{Name: "Alex", Role: RoleCoach}.Complete())
	assert.False(t, User{Role: RoleCoach}.Complete())
	assert.False(t, User{Name: "Alex"}.Complete())
	assert.False(t, User{Name: "Alex", Role: "boss"}.Complete())
}

func TestClone_DoesNotShareSlices(t *testing.T) {
	cp := ClientProfile{ID: "k1", AssignedRoutineIDs: []string{"r1"}}
	cpClone := cp.Clone()
	cpClone.AssignedRoutineIDs[0] = "changed"
	assert.Equal(t, "r1", cp.AssignedRoutineIDs[0])

	empty := ClientProfile{ID: "k2"}.Clone()
	assert.NotNil(t, empty.AssignedRoutineIDs)

	r := Routine{ID: "r1", Exercises: []Exercise{{ID: "e1", Name: "Squat"}}}
	rClone := r.Clone()
	rClone.Exercises[0].Name = "Deadlift"
	assert.Equal(t, "Squat", r.Exercises[0].Name)

	ex, ok := r.ExerciseByID("e1")
	require.True(t, ok)
	assert.Equal(t, "Squat", ex.Name)
	_, ok = r.ExerciseByID("nope")
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, Date("2024-01-05"), d)

	_, err = ParseDate("05/01/2024")
	require.Error(t, err)
	_, err = ParseDate("2024-13-01")
	require.Error(t, err)

	assert.True(t, Date("2024-01-05").Before("2024-01-10"))
	assert.False(t, Date("2024-02-01").Before("2024-01-10"))
}

func TestSortByDateDesc(t *testing.T) {
	logs := []BodyWeightLog{
		{ID: "a", Date: "2024-01-10"},
		{ID: "b", Date: "2024-02-01"},
		{ID: "c", Date: "2024-01-05"},
		{ID: "d", Date: "2024-01-10"},
	}
	SortByDateDesc(logs)

	var ids []string
	for _, l := range logs {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"b", "a", "d", "c"}, ids)
}

func TestValidateMeasurements(t *testing.T) {
	require.NoError(t, ValidateMeasurements([]BodyMeasurement{{Type: MeasurementWaist, ValueCm: 80}}))
	require.ErrorIs(t, ValidateMeasurements(nil), ErrNoMeasurements)
	require.ErrorIs(t, ValidateMeasurements([]BodyMeasurement{{Type: "neck", ValueCm: 30}}), ErrUnknownMeasurement)
	require.ErrorIs(t, ValidateMeasurements([]BodyMeasurement{{Type: MeasurementHips, ValueCm: 0}}), ErrNonPositiveValue)

	require.NoError(t, ValidateBodyWeight(80.5))
	require.ErrorIs(t, ValidateBodyWeight(-1), ErrNonPositiveWeight)
	assert.Len(t, MeasurementTypes, 7)
}

func TestMeasurementType_StoredLabels(t *testing.T) {
	assert.Equal(t, MeasurementType("Cintura (cm)"), MeasurementWaist)
	assert.Equal(t, MeasurementType("Muslo Der. (cm)"), MeasurementThighRight)

	var in []BodyMeasurement
	require.NoError(t, json.Unmarshal([]byte(`[
		{"type": "waist", "valueCm": 84.5},
		{"type": "Brazo Izq. (cm)", "valueCm": 35},
		{"type": "neck", "valueCm": 40}
	]`), &in))
	require.Len(t, in, 3)
	assert.Equal(t, MeasurementWaist, in[0].Type)
	assert.Equal(t, MeasurementArmLeft, in[1].Type)
	assert.Equal(t, MeasurementType("neck"), in[2].Type)
	require.ErrorIs(t, ValidateMeasurements(in), ErrUnknownMeasurement)
	require.NoError(t, ValidateMeasurements(in[:2]))

	out, err := json.Marshal(in[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type": "Cintura (cm)", "valueCm": 84.5}`, string(out))
}

func TestClientProfile_HasRoutine(t *testing.T) {
	c := ClientProfile{AssignedRoutineIDs: []string{"r1", "r3"}}
	assert.True(t, c.HasRoutine("r3"))
	assert.False(t, c.HasRoutine("r2"))
	assert.False(t, ClientProfile{}.HasRoutine("r1"))
}
