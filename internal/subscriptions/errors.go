package subscriptions

import (
	"fmt"

	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shelfwise-backend/pkg/errors"
)

func errNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
}

func errForbidden() error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "subscription belongs to another user")
}

func errInvalidState(current enums.SubscriptionStatus, action string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot %s a %s subscription", action, current)).
		WithDetails(map[string]any{"status": current})
}

func errInvalidTransition(from, to enums.SubscriptionStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("invalid status transition %s -> %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

func errValidation(msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg)
}
