package datasync

import (
	"context"
	"strings"

	"github.com/2beens/fittrack/internal/model"
	"github.com/2beens/fittrack/internal/store"
	"github.com/2beens/fittrack/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type NewRoutine struct {
	Name      string            `json:"name"`
	Type      model.RoutineType `json:"type"`
	Exercises []model.Exercise  `json:"exercises"`
}

// RoutinePatch holds the fields to change; nil fields are left as they are.
type RoutinePatch struct {
	Name      *string            `json:"name,omitempty"`
	Type      *model.RoutineType `json:"type,omitempty"`
	Exercises *[]model.Exercise  `json:"exercises,omitempty"`
}

func (l *Layer) writeFailure(op string, err error) error {
	log.Errorf("datasync, %s: %s", op, err)
	return newError(KindRemoteWriteFailure, op, msgRemoteWriteFailure, err)
}

// withExerciseIDs gives a fresh id to every exercise lacking one.
// Existing ids are kept so progress logs keep pointing at the same exercise.
func (l *Layer) withExerciseIDs(exercises []model.Exercise) []model.Exercise {
	out := make([]model.Exercise, 0, len(exercises))
	for _, ex := range exercises {
		if ex.ID == "" {
			ex.ID = l.newID()
		}
		out = append(out, ex)
	}
	return out
}

func validateExercises(op string, exercises []model.Exercise) error {
	for _, ex := range exercises {
		if strings.TrimSpace(ex.Name) == "" {
			return invalidInput(op, "Every exercise needs a name.")
		}
	}
	return nil
}

func (l *Layer) AddRoutine(ctx context.Context, input NewRoutine, creatorID string) (_ *model.Routine, err error) {
	const op = "add_routine"
	ctx, span := tracing.GlobalTracer.Start(ctx, "datasync.add-routine")
	defer func() {
		l.metrics.ObserveMutation(op, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()

	_, gen, err := l.session(op)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, invalidInput(op, "The routine needs a name.")
	}
	if !input.Type.IsValid() {
		return nil, invalidInput(op, "Unknown routine type.")
	}
	if creatorID == "" {
		return nil, invalidInput(op, "The routine needs a creator.")
	}
	if err := validateExercises(op, input.Exercises); err != nil {
		return nil, err
	}

	exercises := l.withExerciseIDs(input.Exercises)
	id, err := l.store.Create(ctx, store.Routines, map[string]any{
		"name":      input.Name,
		"type":      input.Type,
		"exercises": exercises,
		"createdBy": creatorID,
		"createdAt": store.ServerTimestamp,
	})
	if err != nil {
		return nil, l.writeFailure(op, err)
	}
	span.SetAttributes(attribute.String("routine.id", id))

	routine := model.Routine{
		ID:        id,
		Name:      input.Name,
		Type:      input.Type,
		Exercises: exercises,
		CreatedBy: creatorID,
		// the stored value is the server clock, this is close enough for the mirror
		CreatedAt: l.now().UTC(),
	}
	l.apply(gen, func() {
		l.routines = append([]model.Routine{routine.Clone()}, l.routines...)
	})

	return &routine, nil
}

func (l *Layer) UpdateRoutine(ctx context.Context, routineID string, patch RoutinePatch) (_ *model.Routine, err error) {
	const op = "update_routine"
	ctx, span := tracing.GlobalTracer.Start(ctx, "datasync.update-routine")
	defer func() {
		l.metrics.ObserveMutation(op, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("routine.id", routineID))

	_, gen, err := l.session(op)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, invalidInput(op, "The routine needs a name.")
		}
		fields["name"] = *patch.Name
	}
	if patch.Type != nil {
		if !patch.Type.IsValid() {
			return nil, invalidInput(op, "Unknown routine type.")
		}
		fields["type"] = *patch.Type
	}
	var exercises []model.Exercise
	if patch.Exercises != nil {
		if err := validateExercises(op, *patch.Exercises); err != nil {
			return nil, err
		}
		exercises = l.withExerciseIDs(*patch.Exercises)
		fields["exercises"] = exercises
	}
	if len(fields) == 0 {
		return nil, invalidInput(op, "Nothing to update.")
	}

	if err := l.store.Update(ctx, store.Routines, routineID, fields); err != nil {
		if isNotFound(err) {
			return nil, newError(KindNotFound, op, "The routine does not exist.", err)
		}
		return nil, l.writeFailure(op, err)
	}

	var updated *model.Routine
	l.apply(gen, func() {
		for i := range l.routines {
			if l.routines[i].ID != routineID {
				continue
			}
			r := &l.routines[i]
			if patch.Name != nil {
				r.Name = *patch.Name
			}
			if patch.Type != nil {
				r.Type = *patch.Type
			}
			if patch.Exercises != nil {
				r.Exercises = exercises
			}
			clone := r.Clone()
			updated = &clone
			return
		}
	})

	if updated == nil {
		// written remotely but not part of this session's mirror
		updated = &model.Routine{ID: routineID, Exercises: exercises}
		if patch.Name != nil {
			updated.Name = *patch.Name
		}
		if patch.Type != nil {
			updated.Type = *patch.Type
		}
	}
	return updated, nil
}

// DeleteRoutine removes the routine remotely and from the mirror. The id is
// also stripped from the mirrored client profiles, but the remote client
// profile documents keep referencing it; readers skip unknown routine ids.
func (l *Layer) DeleteRoutine(ctx context.Context, routineID string) (err error) {
	const op = "delete_routine"
	ctx, span := tracing.GlobalTracer.Start(ctx, "datasync.delete-routine")
	defer func() {
		l.metrics.ObserveMutation(op, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("routine.id", routineID))

	_, gen, err := l.session(op)
	if err != nil {
		return err
	}

	if err := l.store.Delete(ctx, store.Routines, routineID); err != nil {
		return l.writeFailure(op, err)
	}

	l.apply(gen, func() {
		routines := l.routines[:0:0]
		for _, r := range l.routines {
			if r.ID != routineID {
				routines = append(routines, r)
			}
		}
		l.routines = routines

		for i := range l.clients {
			ids := make([]string, 0, len(l.clients[i].AssignedRoutineIDs))
			for _, id := range l.clients[i].AssignedRoutineIDs {
				if id != routineID {
					ids = append(ids, id)
				}
			}
			l.clients[i].AssignedRoutineIDs = ids
		}
	})
	return nil
}
