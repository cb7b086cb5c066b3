package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/fittrack/internal/identity"
	"github.com/2beens/fittrack/internal/model"
	"github.com/2beens/fittrack/internal/store"
	"github.com/2beens/fittrack/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ErrProfileMissingOrInvalid covers both a missing or incomplete profile and a
// failed profile fetch. The session is signed out in either case.
var ErrProfileMissingOrInvalid = errors.New("profile missing or invalid")

type signOuter interface {
	SignOut(ctx context.Context, token string) error
}

type Resolver struct {
	store     store.Store
	signOuter signOuter
}

func NewResolver(s store.Store, signOuter signOuter) *Resolver {
	return &Resolver{
		store:     s,
		signOuter: signOuter,
	}
}

// Resolve loads the application profile of an authenticated session.
func (r *Resolver) Resolve(ctx context.Context, session identity.Session) (_ *model.User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "profile.resolve")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("uid", session.UID))

	user, fetchErr := r.fetch(ctx, session.UID)
	if fetchErr == nil {
		span.SetAttributes(attribute.String("role", string(user.Role)))
		return user, nil
	}

	log.Errorf("profile resolver, user %s: %s, signing out", session.UID, fetchErr)
	if err := r.signOuter.SignOut(ctx, session.Token); err != nil && !errors.Is(err, identity.ErrSessionNotFound) {
		log.Errorf("profile resolver, sign out user %s: %s", session.UID, err)
	}
	return nil, fmt.Errorf("%w: %s", ErrProfileMissingOrInvalid, fetchErr)
}

func (r *Resolver) fetch(ctx context.Context, uid string) (*model.User, error) {
	if uid == "" {
		return nil, errors.New("empty subject id")
	}

	var user model.User
	if err := r.store.Get(ctx, store.Users, uid, &user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errors.New("no profile document")
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	user.ID = uid

	if !user.Complete() {
		return nil, fmt.Errorf("incomplete profile [name: %q, role: %q]", user.Name, user.Role)
	}
	return &user, nil
}
