package datasync

import (
	"errors"

	"github.com/2beens/fittrack/internal/model"
	"github.com/2beens/fittrack/internal/store"
)

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func cloneRoutines(routines []model.Routine) []model.Routine {
	out := make([]model.Routine, 0, len(routines))
	for _, r := range routines {
		out = append(out, r.Clone())
	}
	return out
}

func cloneClients(clients []model.ClientProfile) []model.ClientProfile {
	out := make([]model.ClientProfile, 0, len(clients))
	for _, c := range clients {
		out = append(out, c.Clone())
	}
	return out
}

func cloneUsers(users []model.User) []model.User {
	out := make([]model.User, 0, len(users))
	return append(out, users...)
}

func (l *Layer) GetRoutineByID(id string) (model.Routine, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	for _, r := range l.routines {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return model.Routine{}, false
}

func (l *Layer) GetCoachRoutines(coachID string) []model.Routine {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	out := []model.Routine{}
	for _, r := range l.routines {
		if r.CreatedBy == coachID {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (l *Layer) GetAllRoutines() []model.Routine {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return cloneRoutines(l.routines)
}

func (l *Layer) GetClientByID(id string) (model.ClientProfile, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.clientByIDLocked(id)
}

func (l *Layer) clientByIDLocked(id string) (model.ClientProfile, bool) {
	for _, c := range l.clients {
		if c.ID == id {
			return c.Clone(), true
		}
	}
	return model.ClientProfile{}, false
}

func (l *Layer) GetCoachClients(coachID string) []model.ClientProfile {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	out := []model.ClientProfile{}
	for _, c := range l.clients {
		if c.CoachID == coachID {
			out = append(out, c.Clone())
		}
	}
	return out
}

func (l *Layer) GetAllClients() []model.ClientProfile {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return cloneClients(l.clients)
}

// GetClientAssignedRoutines filters the routine mirror by the client's
// assigned ids. Assigned routines that are not mirrored are skipped.
func (l *Layer) GetClientAssignedRoutines(clientID string) []model.Routine {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	out := []model.Routine{}
	client, ok := l.clientByIDLocked(clientID)
	if !ok {
		return out
	}
	for _, r := range l.routines {
		if client.HasRoutine(r.ID) {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (l *Layer) GetAllCoaches() []model.User {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return cloneUsers(l.coaches)
}
