package auth

import (
	"context"
)

// LocalsSubjectKey is where the authentication middleware stores the user id
// on the fiber context.
const LocalsSubjectKey = "auth_subject"

var subjectCtxKey = &contextKey{"subject"}

type contextKey struct {
	name string
}

// WithSubject returns a context carrying the authenticated user id.
func WithSubject(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, subjectCtxKey, userID)
}

// SubjectFromContext extracts the authenticated user id set by the
// authentication middleware.
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectCtxKey).(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
