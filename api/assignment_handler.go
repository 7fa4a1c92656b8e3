package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/steward"
	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/id"
)

func (a *API) registerAssignmentRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("assignments"))

	if err := g.POST("/assignments", a.grantRole,
		forge.WithSummary("Grant role"),
		forge.WithDescription("Assigns a role to a principal, optionally bounded by an effective window."),
		forge.WithOperationID("grantRole"),
		forge.WithRequestSchema(GrantRoleRequest{}),
		forge.WithCreatedResponse(&assignment.Assignment{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/assignments/:assignmentId", a.getAssignment,
		forge.WithSummary("Get assignment"),
		forge.WithOperationID("getAssignment"),
		forge.WithResponseSchema(http.StatusOK, "Assignment", &assignment.Assignment{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/assignments", a.listAssignments,
		forge.WithSummary("List assignments"),
		forge.WithOperationID("listAssignments"),
		forge.WithRequestSchema(ListAssignmentsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Assignment list", ListResponse[*assignment.Assignment]{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/assignments/:assignmentId/activate", a.activateAssignment,
		forge.WithSummary("Activate assignment"),
		forge.WithOperationID("activateAssignment"),
		forge.WithResponseSchema(http.StatusOK, "Assignment", &assignment.Assignment{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/assignments/:assignmentId/deactivate", a.deactivateAssignment,
		forge.WithSummary("Deactivate assignment"),
		forge.WithDescription("Revokes an assignment. The record is kept for audit."),
		forge.WithOperationID("deactivateAssignment"),
		forge.WithResponseSchema(http.StatusOK, "Assignment", &assignment.Assignment{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.PUT("/assignments/:assignmentId/window", a.setAssignmentWindow,
		forge.WithSummary("Set assignment window"),
		forge.WithDescription("Replaces both window bounds. An omitted bound is open."),
		forge.WithOperationID("setAssignmentWindow"),
		forge.WithRequestSchema(SetWindowRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Assignment", &assignment.Assignment{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) grantRole(ctx forge.Context, req *GrantRoleRequest) (*assignment.Assignment, error) {
	if req.PrincipalID == "" {
		return nil, forge.BadRequest("principal_id is required")
	}
	roleID, err := id.ParseRoleID(req.RoleID)
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role_id: %v", err))
	}
	from, err := parseTime("effective_from", req.EffectiveFrom)
	if err != nil {
		return nil, err
	}
	until, err := parseTime("effective_until", req.EffectiveUntil)
	if err != nil {
		return nil, err
	}

	as, err := a.eng.GrantRole(ctx.Context(), &steward.GrantRequest{
		PrincipalID:    req.PrincipalID,
		RoleID:         roleID,
		EffectiveFrom:  from,
		EffectiveUntil: until,
		GrantedBy:      req.GrantedBy,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return nil, fail(ctx, err)
	}

	return as, ctx.JSON(http.StatusCreated, as)
}

func (a *API) getAssignment(ctx forge.Context, _ *GetAssignmentRequest) (*assignment.Assignment, error) {
	assID, err := assignmentParam(ctx)
	if err != nil {
		return nil, err
	}

	as, err := a.eng.GetAssignment(ctx.Context(), assID)
	if err != nil {
		return nil, fail(ctx, err)
	}

	return as, ctx.JSON(http.StatusOK, as)
}

func (a *API) listAssignments(ctx forge.Context, req *ListAssignmentsRequest) (*ListResponse[*assignment.Assignment], error) {
	filter := &assignment.ListFilter{
		PrincipalID: req.PrincipalID,
		ActiveOnly:  req.ActiveOnly,
		Limit:       defaultLimit(req.Limit),
		Offset:      req.Offset,
	}
	if req.RoleID != "" {
		roleID, err := id.ParseRoleID(req.RoleID)
		if err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid role_id: %v", err))
		}
		filter.RoleID = &roleID
	}

	list, total, err := a.eng.ListAssignments(ctx.Context(), filter)
	if err != nil {
		return nil, fail(ctx, err)
	}

	resp := &ListResponse[*assignment.Assignment]{Items: list, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) activateAssignment(ctx forge.Context, _ *GetAssignmentRequest) (*assignment.Assignment, error) {
	assID, err := assignmentParam(ctx)
	if err != nil {
		return nil, err
	}

	as, err := a.eng.ActivateAssignment(ctx.Context(), assID)
	if err != nil {
		return nil, fail(ctx, err)
	}

	return as, ctx.JSON(http.StatusOK, as)
}

func (a *API) deactivateAssignment(ctx forge.Context, _ *GetAssignmentRequest) (*assignment.Assignment, error) {
	assID, err := assignmentParam(ctx)
	if err != nil {
		return nil, err
	}

	as, err := a.eng.DeactivateAssignment(ctx.Context(), assID)
	if err != nil {
		return nil, fail(ctx, err)
	}

	return as, ctx.JSON(http.StatusOK, as)
}

func (a *API) setAssignmentWindow(ctx forge.Context, req *SetWindowRequest) (*assignment.Assignment, error) {
	assID, err := assignmentParam(ctx)
	if err != nil {
		return nil, err
	}
	from, err := parseTime("effective_from", req.EffectiveFrom)
	if err != nil {
		return nil, err
	}
	until, err := parseTime("effective_until", req.EffectiveUntil)
	if err != nil {
		return nil, err
	}

	as, err := a.eng.SetAssignmentWindow(ctx.Context(), assID, from, until)
	if err != nil {
		return nil, fail(ctx, err)
	}

	return as, ctx.JSON(http.StatusOK, as)
}

func assignmentParam(ctx forge.Context) (id.AssignmentID, error) {
	assID, err := id.ParseAssignmentID(ctx.Param("assignmentId"))
	if err != nil {
		return assID, forge.BadRequest(fmt.Sprintf("invalid assignment ID: %v", err))
	}
	return assID, nil
}
