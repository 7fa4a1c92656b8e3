package steward

import "github.com/xraph/steward/id"

// ID is the identifier type shared by all Steward entities.
type ID = id.ID

// RoleID identifies a role.
type RoleID = id.RoleID

// AssignmentID identifies an assignment.
type AssignmentID = id.AssignmentID
