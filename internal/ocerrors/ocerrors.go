package ocerrors

import "errors"

var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrEmptyResponse    = errors.New("empty response from directory")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")

	// access resolution
	ErrNoOrganizations       = errors.New("no organizations available for consent")
	ErrNotOrganizationMember = errors.New("user must be a member of at least one organization to access first-party applications")
)
