package datasync

import (
	"context"
	"errors"
	"strings"

	"github.com/2beens/fittrack/internal/identity"
	"github.com/2beens/fittrack/internal/model"
	"github.com/2beens/fittrack/internal/store"
	"github.com/2beens/fittrack/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type NewAccount struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a NewAccount) validate(op string) (NewAccount, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return a, invalidInput(op, "The name is required.")
	}
	email, err := identity.NormalizeEmail(a.Email)
	if err != nil {
		return a, newError(KindInvalidInput, op, identity.FriendlyMessage(err), err)
	}
	a.Email = email
	if len(a.Password) < identity.MinPasswordLength {
		return a, newError(KindInvalidInput, op, identity.FriendlyMessage(identity.ErrWeakPassword), identity.ErrWeakPassword)
	}
	return a, nil
}

// existingUser returns the first user profile registered with email, if any.
func (l *Layer) existingUser(ctx context.Context, op, email string) (*model.User, error) {
	docs, err := l.store.Query(ctx, store.Users, store.Where("email", email))
	if err != nil {
		return nil, l.readFailure(op, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	var user model.User
	if err := docs[0].DataTo(&user); err != nil {
		return nil, l.readFailure(op, err)
	}
	user.ID = docs[0].ID
	return &user, nil
}

func (l *Layer) createAccount(ctx context.Context, op string, account NewAccount) (string, error) {
	uid, err := l.accounts.CreateAccount(ctx, account.Email, account.Password)
	switch {
	case err == nil:
		return uid, nil
	case errors.Is(err, identity.ErrEmailAlreadyInUse):
		return "", newError(KindDuplicateEntity, op, msgEmailRegistered, err)
	case errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, identity.ErrWeakPassword):
		return "", newError(KindInvalidInput, op, identity.FriendlyMessage(err), err)
	default:
		return "", l.writeFailure(op, err)
	}
}

// AddCoach provisions an identity account and a coach profile. An email
// already present in the users collection or in the identity provider is
// rejected before anything is created.
func (l *Layer) AddCoach(ctx context.Context, details NewAccount, superCoachID string) (_ *model.User, err error) {
	const op = "add_coach"
	ctx, span := tracing.GlobalTracer.Start(ctx, "datasync.add-coach")
	defer func() {
		l.metrics.ObserveMutation(op, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("requested_by", superCoachID))

	_, gen, err := l.session(op)
	if err != nil {
		return nil, err
	}
	details, err = details.validate(op)
	if err != nil {
		return nil, err
	}

	existing, err := l.existingUser(ctx, op, details.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, newError(KindDuplicateEntity, op, msgEmailRegistered, nil)
	}

	uid, err := l.createAccount(ctx, op, details)
	if err != nil {
		return nil, err
	}

	coach := model.User{
		ID:    uid,
		Role:  model.RoleCoach,
		Name:  details.Name,
		Email: details.Email,
	}
	if err := l.store.Set(ctx, store.Users, uid, map[string]any{
		"id":        uid,
		"uid":       uid,
		"email":     coach.Email,
		"name":      coach.Name,
		"role":      coach.Role,
		"createdAt": store.ServerTimestamp,
	}); err != nil {
		log.Errorf("datasync, %s: identity account %s exists without a profile", op, uid)
		return nil, l.writeFailure(op, err)
	}

	l.apply(gen, func() {
		l.coaches = append([]model.User{coach}, l.coaches...)
	})
	return &coach, nil
}

// AddClient provisions an identity account, a client user profile and an
// empty client profile owned by coachID.
func (l *Layer) AddClient(ctx context.Context, details NewAccount, coachID string) (_ *model.ClientProfile, err error) {
	const op = "add_client"
	ctx, span := tracing.GlobalTracer.Start(ctx, "datasync.add-client")
	defer func() {
		l.metrics.ObserveMutation(op, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("coach.id", coachID))

	_, gen, err := l.session(op)
	if err != nil {
		return nil, err
	}
	if coachID == "" {
		return nil, invalidInput(op, "The client needs a coach.")
	}
	details, err = details.validate(op)
	if err != nil {
		return nil, err
	}

	existing, err := l.existingUser(ctx, op, details.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Role == model.RoleClient {
			return nil, newError(KindDuplicateEntity, op, msgClientExists, nil)
		}
		return nil, newError(KindDuplicateEntity, op, msgEmailDifferentRole, nil)
	}

	uid, err := l.createAccount(ctx, op, details)
	if err != nil {
		return nil, err
	}

	if err := l.store.Set(ctx, store.Users, uid, map[string]any{
		"id":        uid,
		"uid":       uid,
		"email":     details.Email,
		"name":      details.Name,
		"role":      model.RoleClient,
		"coachId":   coachID,
		"createdAt": store.ServerTimestamp,
	}); err != nil {
		log.Errorf("datasync, %s: identity account %s exists without a profile", op, uid)
		return nil, l.writeFailure(op, err)
	}

	client := model.ClientProfile{
		ID:                 uid,
		CoachID:            coachID,
		Name:               details.Name,
		Email:              details.Email,
		AssignedRoutineIDs: []string{},
	}
	if err := l.store.Set(ctx, store.ClientProfiles, uid, map[string]any{
		"id":                 uid,
		"uid":                uid,
		"coachId":            coachID,
		"name":               client.Name,
		"email":              client.Email,
		"assignedRoutineIds": client.AssignedRoutineIDs,
		"createdAt":          store.ServerTimestamp,
	}); err != nil {
		log.Errorf("datasync, %s: user %s exists without a client profile", op, uid)
		return nil, l.writeFailure(op, err)
	}

	l.apply(gen, func() {
		l.clients = append([]model.ClientProfile{client.Clone()}, l.clients...)
	})
	return &client, nil
}
