package auth

import "fmt"

// ForbiddenError indicates the actor is not allowed to act on the resource.
type ForbiddenError struct {
	Message string
}

func (e ForbiddenError) Error() string { return e.Message }

// RequireOwner checks resource ownership.
func RequireOwner(ownerID, actorID, action string) error {
	if ownerID != actorID {
		return ForbiddenError{Message: fmt.Sprintf("only the gig owner may %s", action)}
	}
	return nil
}
