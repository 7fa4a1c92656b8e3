package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/steward"
	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/role"
)

// fail maps a domain error to its HTTP response. Collaborator outages
// are written as 503 directly.
func fail(ctx forge.Context, err error) error {
	if errors.Is(err, steward.ErrCollaboratorUnavailable) {
		return ctx.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "privilege source unavailable",
			Code:  "collaborator_unavailable",
		})
	}
	return mapError(err)
}

// mapError maps domain errors to Forge HTTP errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return forge.NotFound(err.Error())
	}
	if errors.Is(err, steward.ErrSystemRoleImmutable) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, steward.ErrDuplicateAssignment) ||
		errors.Is(err, steward.ErrDuplicateRole) ||
		errors.Is(err, steward.ErrDuplicatePrincipal) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, steward.ErrCyclicRoleInheritance) ||
		errors.Is(err, steward.ErrInvalidPrecedence) ||
		errors.Is(err, steward.ErrInvalidWindow) ||
		errors.Is(err, steward.ErrInvalidPrincipalID) ||
		errors.Is(err, role.ErrSlugRequired) ||
		errors.Is(err, assignment.ErrPrincipalRequired) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, steward.ErrAccessDenied) {
		return forge.Forbidden(err.Error())
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, steward.ErrUnknownPrincipal) ||
		errors.Is(err, steward.ErrRoleNotFound) ||
		errors.Is(err, steward.ErrAssignmentNotFound) ||
		errors.Is(err, steward.ErrPrincipalNotFound)
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

// parseTime parses an optional RFC 3339 timestamp. Empty input yields nil.
func parseTime(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, forge.BadRequest("invalid " + field + " timestamp")
	}
	t = t.UTC()
	return &t, nil
}
