package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/steward/resolutionlog"
)

func (a *API) registerResolutionLogRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("resolution-logs"))

	return g.GET("/resolution-logs", a.listResolutionLogs,
		forge.WithSummary("List resolution warnings"),
		forge.WithDescription("Lists non-fatal problems recorded while resolving privileges, newest first."),
		forge.WithOperationID("listResolutionLogs"),
		forge.WithRequestSchema(ListResolutionLogsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Resolution log", ListResponse[*resolutionlog.Entry]{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) listResolutionLogs(ctx forge.Context, req *ListResolutionLogsRequest) (*ListResponse[*resolutionlog.Entry], error) {
	after, err := parseTime("after", req.After)
	if err != nil {
		return nil, err
	}
	before, err := parseTime("before", req.Before)
	if err != nil {
		return nil, err
	}

	filter := &resolutionlog.QueryFilter{
		PrincipalID: req.PrincipalID,
		Kind:        req.Kind,
		RoleID:      req.RoleID,
		After:       after,
		Before:      before,
		Limit:       defaultLimit(req.Limit),
		Offset:      req.Offset,
	}

	entries, total, err := a.eng.ListResolutionEntries(ctx.Context(), filter)
	if err != nil {
		return nil, fail(ctx, err)
	}

	resp := &ListResponse[*resolutionlog.Entry]{Items: entries, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	return resp, ctx.JSON(http.StatusOK, resp)
}
