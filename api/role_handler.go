package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/steward/id"
	"github.com/xraph/steward/role"
)

func (a *API) registerRoleRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("roles"))

	if err := g.POST("/roles", a.createRole,
		forge.WithSummary("Create role"),
		forge.WithDescription("Adds a role to the catalog."),
		forge.WithOperationID("createRole"),
		forge.WithRequestSchema(CreateRoleRequest{}),
		forge.WithCreatedResponse(&role.Role{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/roles/:roleId", a.getRole,
		forge.WithSummary("Get role"),
		forge.WithDescription("Returns details of a specific role."),
		forge.WithOperationID("getRole"),
		forge.WithResponseSchema(http.StatusOK, "Role details", &role.Role{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/roles/:roleId", a.updateRole,
		forge.WithSummary("Update role"),
		forge.WithDescription("Updates a role and invalidates every cached snapshot in the tenant."),
		forge.WithOperationID("updateRole"),
		forge.WithRequestSchema(UpdateRoleRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated role", &role.Role{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.DELETE("/roles/:roleId", a.deleteRole,
		forge.WithSummary("Delete role"),
		forge.WithDescription("Deletes a role. Assignments referencing it become dangling."),
		forge.WithOperationID("deleteRole"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/roles", a.listRoles,
		forge.WithSummary("List roles"),
		forge.WithDescription("Lists roles ordered by precedence."),
		forge.WithOperationID("listRoles"),
		forge.WithRequestSchema(ListRolesRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Role list", ListResponse[*role.Role]{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) createRole(ctx forge.Context, req *CreateRoleRequest) (*role.Role, error) {
	if req.Slug == "" {
		return nil, forge.BadRequest("slug is required")
	}

	r := &role.Role{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Precedence:  req.Precedence,
		Permissions: req.Permissions,
		Modules:     req.Modules,
		IsSystem:    req.IsSystem,
		Metadata:    req.Metadata,
	}
	if req.ParentID != "" {
		pid, err := id.ParseRoleID(req.ParentID)
		if err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid parent_id: %v", err))
		}
		r.ParentID = &pid
	}

	if err := a.eng.CreateRole(ctx.Context(), r); err != nil {
		return nil, fail(ctx, err)
	}

	return r, ctx.JSON(http.StatusCreated, r)
}

func (a *API) getRole(ctx forge.Context, _ *GetRoleRequest) (*role.Role, error) {
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	r, err := a.eng.GetRole(ctx.Context(), roleID)
	if err != nil {
		return nil, fail(ctx, err)
	}

	return r, ctx.JSON(http.StatusOK, r)
}

func (a *API) updateRole(ctx forge.Context, req *UpdateRoleRequest) (*role.Role, error) {
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	r, err := a.eng.GetRole(ctx.Context(), roleID)
	if err != nil {
		return nil, fail(ctx, err)
	}

	if req.Name != "" {
		r.Name = req.Name
	}
	if req.Description != "" {
		r.Description = req.Description
	}
	if req.Precedence != nil {
		r.Precedence = *req.Precedence
	}
	if req.Permissions != nil {
		r.Permissions = req.Permissions
	}
	if req.Modules != nil {
		r.Modules = req.Modules
	}
	if req.ParentID != nil {
		if *req.ParentID == "" {
			r.ParentID = nil
		} else {
			pid, err := id.ParseRoleID(*req.ParentID)
			if err != nil {
				return nil, forge.BadRequest(fmt.Sprintf("invalid parent_id: %v", err))
			}
			r.ParentID = &pid
		}
	}
	if req.Metadata != nil {
		r.Metadata = req.Metadata
	}

	if err := a.eng.UpdateRole(ctx.Context(), r); err != nil {
		return nil, fail(ctx, err)
	}

	return r, ctx.JSON(http.StatusOK, r)
}

func (a *API) deleteRole(ctx forge.Context, _ *GetRoleRequest) (*struct{}, error) {
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	if err := a.eng.DeleteRole(ctx.Context(), roleID); err != nil {
		return nil, fail(ctx, err)
	}

	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) listRoles(ctx forge.Context, req *ListRolesRequest) (*ListResponse[*role.Role], error) {
	filter := &role.ListFilter{
		Search: req.Search,
		Limit:  defaultLimit(req.Limit),
		Offset: req.Offset,
	}

	roles, total, err := a.eng.ListRoles(ctx.Context(), filter)
	if err != nil {
		return nil, fail(ctx, err)
	}

	resp := &ListResponse[*role.Role]{Items: roles, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	return resp, ctx.JSON(http.StatusOK, resp)
}
