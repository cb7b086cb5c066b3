package datasync

import (
	"context"
	"slices"

	"github.com/2beens/fittrack/internal/model"
	"github.com/2beens/fittrack/internal/store"
	"github.com/2beens/fittrack/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// AssignRoutineToClient adds routineID to the client's assigned set.
// Assigning an already assigned routine leaves the set unchanged.
func (l *Layer) AssignRoutineToClient(ctx context.Context, clientID, routineID string) (_ *model.ClientProfile, err error) {
	return l.updateAssignment(ctx, "assign_routine", clientID, routineID, func(ids []string) []string {
		if slices.Contains(ids, routineID) {
			return ids
		}
		return append(ids, routineID)
	})
}

// UnassignRoutineFromClient removes routineID from the client's assigned set.
// Removing a routine that is not assigned is a no-op.
func (l *Layer) UnassignRoutineFromClient(ctx context.Context, clientID, routineID string) (_ *model.ClientProfile, err error) {
	return l.updateAssignment(ctx, "unassign_routine", clientID, routineID, func(ids []string) []string {
		return slices.DeleteFunc(ids, func(id string) bool { return id == routineID })
	})
}

// updateAssignment reads the remote profile, applies change to its id set
// and writes the set back.
func (l *Layer) updateAssignment(
	ctx context.Context,
	op, clientID, routineID string,
	change func(ids []string) []string,
) (_ *model.ClientProfile, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "datasync."+op)
	defer func() {
		l.metrics.ObserveMutation(op, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("client.id", clientID), attribute.String("routine.id", routineID))

	_, gen, err := l.session(op)
	if err != nil {
		return nil, err
	}
	if clientID == "" || routineID == "" {
		return nil, invalidInput(op, "Both the client and the routine are required.")
	}

	var profile model.ClientProfile
	if err := l.store.Get(ctx, store.ClientProfiles, clientID, &profile); err != nil {
		if isNotFound(err) {
			return nil, newError(KindNotFound, op, "The client does not exist.", err)
		}
		return nil, l.readFailure(op, err)
	}
	profile.ID = clientID

	current := store.DedupIDs(profile.AssignedRoutineIDs)
	updated := change(slices.Clone(current))
	if !slices.Equal(current, updated) || len(current) != len(profile.AssignedRoutineIDs) {
		if err := l.store.Update(ctx, store.ClientProfiles, clientID, map[string]any{
			"assignedRoutineIds": updated,
		}); err != nil {
			if isNotFound(err) {
				return nil, newError(KindNotFound, op, "The client does not exist.", err)
			}
			return nil, l.writeFailure(op, err)
		}
	}
	profile.AssignedRoutineIDs = updated
	profile = profile.Clone()

	l.apply(gen, func() {
		for i := range l.clients {
			if l.clients[i].ID == clientID {
				l.clients[i].AssignedRoutineIDs = slices.Clone(profile.AssignedRoutineIDs)
			}
		}
	})
	return &profile, nil
}
