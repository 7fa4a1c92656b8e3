package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/steward"
)

func (a *API) registerPrivilegeRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("privileges"))

	if err := g.GET("/principals/:principalId/privileges", a.getPrivileges,
		forge.WithSummary("Resolve privileges"),
		forge.WithDescription("Returns the principal's effective privileges: contributing roles ordered by precedence, the highest precedence, and the union of permissions and modules."),
		forge.WithOperationID("getPrivileges"),
		forge.WithRequestSchema(GetPrivilegesRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Effective privileges", &steward.EffectivePrivileges{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/authz/check", a.check,
		forge.WithSummary("Check grants"),
		forge.WithDescription("Reports whether the principal holds every listed permission and module."),
		forge.WithOperationID("authzCheck"),
		forge.WithRequestSchema(CheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Check result", CheckResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.POST("/authz/enforce", a.enforce,
		forge.WithSummary("Enforce grants"),
		forge.WithDescription("Returns 200 if every grant is held, 403 otherwise."),
		forge.WithOperationID("authzEnforce"),
		forge.WithRequestSchema(CheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Allowed", CheckResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) getPrivileges(ctx forge.Context, req *GetPrivilegesRequest) (*steward.EffectivePrivileges, error) {
	principalID := ctx.Param("principalId")
	at, err := parseTime("at", req.At)
	if err != nil {
		return nil, err
	}

	var priv *steward.EffectivePrivileges
	if at != nil {
		priv, err = a.eng.ResolveAt(ctx.Context(), principalID, *at)
	} else {
		priv, err = a.eng.Resolve(ctx.Context(), principalID)
	}
	if err != nil {
		return nil, fail(ctx, err)
	}

	return priv, ctx.JSON(http.StatusOK, priv)
}

func (a *API) check(ctx forge.Context, req *CheckRequest) (*CheckResponse, error) {
	resp, err := a.evaluate(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) enforce(ctx forge.Context, req *CheckRequest) (*CheckResponse, error) {
	resp, err := a.evaluate(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.Allowed {
		return resp, ctx.JSON(http.StatusForbidden, resp)
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) evaluate(ctx forge.Context, req *CheckRequest) (*CheckResponse, error) {
	if req.PrincipalID == "" {
		return nil, forge.BadRequest("principal_id is required")
	}
	if len(req.Permissions) == 0 && len(req.Modules) == 0 {
		return nil, forge.BadRequest("permissions or modules are required")
	}

	priv, err := a.eng.Resolve(ctx.Context(), req.PrincipalID)
	if err != nil {
		return nil, fail(ctx, err)
	}

	resp := &CheckResponse{HighestPrecedence: priv.HighestPrecedence}
	for _, p := range req.Permissions {
		if !priv.HasPermission(p) {
			resp.Missing = append(resp.Missing, p)
		}
	}
	for _, m := range req.Modules {
		if !priv.CanAccessModule(m) {
			resp.Missing = append(resp.Missing, "module:"+m)
		}
	}
	resp.Allowed = len(resp.Missing) == 0
	return resp, nil
}
