package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/steward/principal"
)

func (a *API) registerPrincipalRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("principals"))

	if err := g.POST("/principals", a.registerPrincipal,
		forge.WithSummary("Register principal"),
		forge.WithDescription("Adds a principal to the registry used to detect unknown principals."),
		forge.WithOperationID("registerPrincipal"),
		forge.WithRequestSchema(RegisterPrincipalRequest{}),
		forge.WithCreatedResponse(&principal.Principal{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/principals/:principalId", a.getPrincipal,
		forge.WithSummary("Get principal"),
		forge.WithOperationID("getPrincipal"),
		forge.WithResponseSchema(http.StatusOK, "Principal", &principal.Principal{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/principals", a.listPrincipals,
		forge.WithSummary("List principals"),
		forge.WithOperationID("listPrincipals"),
		forge.WithRequestSchema(ListPrincipalsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Principal list", ListResponse[*principal.Principal]{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) registerPrincipal(ctx forge.Context, req *RegisterPrincipalRequest) (*principal.Principal, error) {
	if req.ExternalID == "" {
		return nil, forge.BadRequest("external_id is required")
	}

	p := &principal.Principal{
		ExternalID:  req.ExternalID,
		Kind:        req.Kind,
		DisplayName: req.DisplayName,
		Metadata:    req.Metadata,
	}
	if err := a.eng.RegisterPrincipal(ctx.Context(), p); err != nil {
		return nil, fail(ctx, err)
	}

	return p, ctx.JSON(http.StatusCreated, p)
}

func (a *API) getPrincipal(ctx forge.Context, _ *GetPrincipalRequest) (*principal.Principal, error) {
	p, err := a.eng.GetPrincipal(ctx.Context(), ctx.Param("principalId"))
	if err != nil {
		return nil, fail(ctx, err)
	}
	return p, ctx.JSON(http.StatusOK, p)
}

func (a *API) listPrincipals(ctx forge.Context, req *ListPrincipalsRequest) (*ListResponse[*principal.Principal], error) {
	filter := &principal.ListFilter{
		Kind:   req.Kind,
		Search: req.Search,
		Limit:  defaultLimit(req.Limit),
		Offset: req.Offset,
	}

	list, total, err := a.eng.ListPrincipals(ctx.Context(), filter)
	if err != nil {
		return nil, fail(ctx, err)
	}

	resp := &ListResponse[*principal.Principal]{Items: list, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	return resp, ctx.JSON(http.StatusOK, resp)
}
