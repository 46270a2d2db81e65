// Package mcp exposes read-only scheme inspection as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"workflow-scheme/backend/internal/auth"
	"workflow-scheme/backend/internal/services"
	"workflow-scheme/backend/pkg/models"
)

type Server struct {
	mcpServer *server.MCPServer
	schemes   *services.SchemeService
	deploys   *services.DeployCoordinator
	pipeline  *services.Pipeline
	codes     *services.ConfigCodeService
}

func NewServer(schemes *services.SchemeService, deploys *services.DeployCoordinator, pipeline *services.Pipeline, codes *services.ConfigCodeService) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Workflow Scheme",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		schemes:  schemes,
		deploys:  deploys,
		pipeline: pipeline,
		codes:    codes,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"query_scheme_with_config",
			mcp.WithDescription("Show a scheme with its draft or live issue type to state machine mapping"),
			mcp.WithNumber("organization_id", mcp.Required(), mcp.Description("The organization owning the scheme")),
			mcp.WithNumber("scheme_id", mcp.Required(), mcp.Description("The ID of the scheme")),
			mcp.WithBoolean("is_draft", mcp.Description("Show the draft generation (default true)")),
		),
		s.handleQuerySchemeWithConfig,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"check_deploy",
			mcp.WithDescription("Preview the issue types a publish would migrate, with affected issue counts"),
			mcp.WithNumber("organization_id", mcp.Required(), mcp.Description("The organization owning the scheme")),
			mcp.WithNumber("scheme_id", mcp.Required(), mcp.Description("The ID of the scheme")),
		),
		s.handleCheckDeploy,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_available_transforms",
			mcp.WithDescription("List the transforms an instance may take from its current status"),
			mcp.WithNumber("organization_id", mcp.Required(), mcp.Description("The organization of the instance")),
			mcp.WithString("service_code", mcp.Required(), mcp.Description("The service that owns the instance")),
			mcp.WithNumber("state_machine_id", mcp.Required(), mcp.Description("The instance's state machine")),
			mcp.WithNumber("instance_id", mcp.Required(), mcp.Description("The ID of the instance")),
			mcp.WithNumber("status_id", mcp.Required(), mcp.Description("The instance's current status")),
		),
		s.handleListAvailableTransforms,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_config_codes",
			mcp.WithDescription("List registered condition, validator, trigger and action codes"),
			mcp.WithString("kind", mcp.Description("Restrict to one kind")),
		),
		s.handleListConfigCodes,
	)
}

func idArg(args map[string]interface{}, name string) (int64, bool) {
	v, ok := args[name].(float64)
	if !ok || v != float64(int64(v)) {
		return 0, false
	}
	return int64(v), true
}

// orgArg reads organization_id and checks the caller may see it.
func orgArg(ctx context.Context, args map[string]interface{}) (int64, *mcp.CallToolResult) {
	orgID, ok := idArg(args, "organization_id")
	if !ok {
		return 0, mcp.NewToolResultError("Missing required parameter: organization_id")
	}
	p, ok := auth.FromContext(ctx)
	if !ok || !p.CanAccess(orgID) {
		return 0, mcp.NewToolResultError(fmt.Sprintf("No access to organization %d", orgID))
	}
	return orgID, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleQuerySchemeWithConfig(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	orgID, denied := orgArg(ctx, args)
	if denied != nil {
		return denied, nil
	}
	schemeID, ok := idArg(args, "scheme_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: scheme_id"), nil
	}
	isDraft := true
	if v, ok := args["is_draft"].(bool); ok {
		isDraft = v
	}

	view, err := s.schemes.QuerySchemeWithConfig(ctx, models.GenerationOf(isDraft), orgID, schemeID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to query scheme: %v", err)), nil
	}
	return jsonResult(view)
}

func (s *Server) handleCheckDeploy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	orgID, denied := orgArg(ctx, args)
	if denied != nil {
		return denied, nil
	}
	schemeID, ok := idArg(args, "scheme_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: scheme_id"), nil
	}

	items, err := s.deploys.CheckDeploy(ctx, orgID, schemeID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check deploy: %v", err)), nil
	}
	return jsonResult(items)
}

func (s *Server) handleListAvailableTransforms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	orgID, denied := orgArg(ctx, args)
	if denied != nil {
		return denied, nil
	}
	serviceCode, ok := args["service_code"].(string)
	if !ok || serviceCode == "" {
		return mcp.NewToolResultError("Missing required parameter: service_code"), nil
	}
	var ids [3]int64
	for i, name := range []string{"state_machine_id", "instance_id", "status_id"} {
		if ids[i], ok = idArg(args, name); !ok {
			return mcp.NewToolResultError("Missing required parameter: " + name), nil
		}
	}

	infos, err := s.pipeline.ListAvailableTransforms(ctx, orgID, serviceCode, ids[0], ids[1], ids[2])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list transforms: %v", err)), nil
	}
	return jsonResult(infos)
}

func (s *Server) handleListConfigCodes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	kind, _ := args["kind"].(string)

	codes, err := s.codes.List(ctx, kind)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list config codes: %v", err)), nil
	}
	if codes == nil {
		codes = []*models.ConfigCode{}
	}
	return jsonResult(codes)
}

// MountHTTPHandlers serves the SSE transport under /mcp. Requests are expected
// to pass auth.RequireAuth first; the principal is carried into tool calls.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer,
		server.WithStaticBasePath("/mcp"),
		server.WithSSEContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if p, ok := auth.FromContext(r.Context()); ok {
				return auth.WithPrincipal(ctx, p)
			}
			return ctx
		}),
	)

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
