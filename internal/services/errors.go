// Package services holds the business logic for calls, checklist templates,
// review dispatch, result ingestion and user management. This file
// centralizes the service-level error values so handlers can map them to
// HTTP statuses with errors.Is.
//
// Access-control failures are reported with rbac.ErrUnauthorized and
// rbac.ErrForbidden; validation failures with *ValidationError.
package services

import "errors"

// ErrInvalidJSON is returned when a raw request body is not JSON.
var ErrInvalidJSON = errors.New("malformed JSON body")

// Call errors.
var (
	// ErrCallNotFound indicates that no call has the requested id.
	ErrCallNotFound = errors.New("call not found")

	// ErrDuplicateCall is returned when creating a call whose id already exists.
	ErrDuplicateCall = errors.New("call already exists")

	// ErrNoCallsFound is returned by bulk deletion when none of the ids exist.
	ErrNoCallsFound = errors.New("none of the calls exist")

	// ErrConfirmationRequired is returned by clear-all without the exact
	// confirmation phrase.
	ErrConfirmationRequired = errors.New("confirmation phrase mismatch")
)

// Template errors.
var (
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTemplateInactive rejects dispatches against a disabled template.
	ErrTemplateInactive = errors.New("template is inactive")

	// ErrTemplateInUse blocks deletion of a template referenced by reviews.
	ErrTemplateInUse = errors.New("template is referenced by reviews")

	// ErrNoActiveTemplate means no template can serve an automatic dispatch.
	ErrNoActiveTemplate = errors.New("no active template")

	// ErrNoDefaultTemplate means no template is both default and active.
	ErrNoDefaultTemplate = errors.New("no active default template")
)

// Review errors.
var (
	ErrReviewNotFound = errors.New("review not found")

	// ErrReviewCallMismatch is returned when a review is addressed through a
	// call it does not belong to.
	ErrReviewCallMismatch = errors.New("review does not belong to call")
)

// User errors.
var (
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateEmail is returned when another user already owns the email.
	ErrDuplicateEmail = errors.New("email already in use")

	// ErrOwnRoleChange blocks administrators from changing their own role.
	ErrOwnRoleChange = errors.New("cannot change own role")

	// ErrSelfDelete blocks administrators from deleting their own account.
	ErrSelfDelete = errors.New("cannot delete own account")

	// ErrUserHasDependents blocks deleting a user who created templates or
	// requested reviews.
	ErrUserHasDependents = errors.New("user owns templates or reviews")

	// ErrInvalidCredentials is returned by login for an unknown email or a
	// wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrWrongPassword is returned by password change when the current
	// password does not match.
	ErrWrongPassword = errors.New("current password mismatch")

	// ErrUnknownAction is returned for a profile update with an unsupported
	// action.
	ErrUnknownAction = errors.New("unknown profile action")
)
