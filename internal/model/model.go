package model

import (
	"slices"
	"time"
)

type Role string

const (
	RoleSuperCoach Role = "super_coach"
	RoleCoach      Role = "coach"
	RoleClient     Role = "client"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleSuperCoach, RoleCoach, RoleClient:
		return true
	}
	return false
}

// User is the application profile stored under users/{id}.
// CoachID is only set for clients.
type User struct {
	ID      string `json:"id" firestore:"id,omitempty"`
	Role    Role   `json:"role" firestore:"role"`
	Name    string `json:"name" firestore:"name"`
	Email   string `json:"email" firestore:"email"`
	CoachID string `json:"coachId,omitempty" firestore:"coachId,omitempty"`
}

// Complete reports whether the profile carries the fields a session needs.
func (u User) Complete() bool {
	return u.Name != "" && u.Role.IsValid()
}

type ClientProfile struct {
	ID                 string   `json:"id" firestore:"id,omitempty"`
	CoachID            string   `json:"coachId" firestore:"coachId"`
	Name               string   `json:"name" firestore:"name"`
	Email              string   `json:"email" firestore:"email"`
	AssignedRoutineIDs []string `json:"assignedRoutineIds" firestore:"assignedRoutineIds"`
}

func (c ClientProfile) Clone() ClientProfile {
	c.AssignedRoutineIDs = slices.Clone(c.AssignedRoutineIDs)
	if c.AssignedRoutineIDs == nil {
		c.AssignedRoutineIDs = []string{}
	}
	return c
}

func (c ClientProfile) HasRoutine(routineID string) bool {
	return slices.Contains(c.AssignedRoutineIDs, routineID)
}

type RoutineType string

const (
	RoutineTypeTraditionalWeightlifting RoutineType = "traditional_weightlifting"
	RoutineTypeFunctionalExercise       RoutineType = "functional_exercise"
)

func (t RoutineType) IsValid() bool {
	return t == RoutineTypeTraditionalWeightlifting || t == RoutineTypeFunctionalExercise
}

// Exercise only exists embedded in a Routine. Its ID is stable across
// routine edits so progress logs can keep referencing it.
type Exercise struct {
	ID    string `json:"id" firestore:"id"`
	Name  string `json:"name" firestore:"name"`
	Sets  string `json:"sets,omitempty" firestore:"sets,omitempty"`
	Reps  string `json:"reps,omitempty" firestore:"reps,omitempty"`
	Rest  string `json:"rest,omitempty" firestore:"rest,omitempty"`
	Notes string `json:"notes,omitempty" firestore:"notes,omitempty"`
}

type Routine struct {
	ID        string      `json:"id" firestore:"id,omitempty"`
	Name      string      `json:"name" firestore:"name"`
	Type      RoutineType `json:"type" firestore:"type"`
	Exercises []Exercise  `json:"exercises" firestore:"exercises"`
	CreatedBy string      `json:"createdBy" firestore:"createdBy"`
	CreatedAt time.Time   `json:"createdAt" firestore:"createdAt"`
}

func (r Routine) Clone() Routine {
	r.Exercises = slices.Clone(r.Exercises)
	if r.Exercises == nil {
		r.Exercises = []Exercise{}
	}
	return r
}

func (r Routine) ExerciseByID(id string) (Exercise, bool) {
	for _, ex := range r.Exercises {
		if ex.ID == id {
			return ex, true
		}
	}
	return Exercise{}, false
}
