// Package mcp exposes the SNP search service as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/snp-search-service/internal/domain"
	"github.com/snp-search-service/internal/service"
)

// Server represents the SNP search MCP server
type Server struct {
	service   *service.SnpService
	mcpServer *mcp.Server
	logger    *logrus.Logger
	tools     []string
}

type toolFunc func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)

// NewServer creates a new MCP server instance bound to svc
func NewServer(svc *service.SnpService, cfg domain.MCPConfig, logger *logrus.Logger) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("snp service is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	serverInfo := &mcp.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}

	server := &Server{
		service:   svc,
		mcpServer: mcp.NewServer(serverInfo, nil),
		logger:    logger,
	}

	server.registerTools()

	return server, nil
}

// Start runs the MCP server on stdio until ctx is cancelled or the client
// disconnects
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("tool_count", len(s.tools)).Info("Starting SNP search MCP server")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Tools returns the names of the registered tools
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

func (s *Server) registerTools() {
	s.addTool("list_input_modes", "List the supported input modes and the current selection",
		objectSchema(nil), s.listInputModes)

	s.addTool("select_input_mode", "Select the input mode used for subsequent searches",
		objectSchema(map[string]*jsonschema.Schema{
			"id": {Type: "integer", Description: "Input mode id (1-4)"},
		}, "id"), s.selectInputMode)

	s.addTool("search_snps", "Search SNP annotations in a chromosome region and publish the page",
		objectSchema(map[string]*jsonschema.Schema{
			"source": {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Fields to return"},
			"chrom":  {Type: "string", Description: "Chromosome name"},
			"start":  {Type: "integer", Description: "Inclusive start position"},
			"end":    {Type: "integer", Description: "Inclusive end position"},
			"page":   {Type: "integer", Description: "1-based page number"},
		}, "chrom"), s.searchSnps)

	s.addTool("get_current_page", "Return the currently published result page",
		objectSchema(nil), s.getCurrentPage)

	s.addTool("set_download_id", "Store the export job id used by download_snp",
		objectSchema(map[string]*jsonschema.Schema{
			"download_id": {Type: "string", Description: "Export job id"},
		}, "download_id"), s.setDownloadID)

	s.addTool("download_snp", "Fetch the readiness of the stored export job",
		objectSchema(nil), s.downloadSnp)

	s.addTool("check_availability", "Ping the search engine",
		objectSchema(nil), s.checkAvailability)

	s.logger.WithField("tool_count", len(s.tools)).Info("Successfully registered all tools")
}

func (s *Server) addTool(name, description string, schema *jsonschema.Schema, fn toolFunc) {
	tool := &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}

	s.mcpServer.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.logger.WithField("tool", name).Info("Tool invoked")

		args, err := rawArguments(req)
		if err != nil {
			return s.createErrorResult("Invalid parameters", err), nil
		}
		return fn(ctx, args)
	})

	s.tools = append(s.tools, name)
	s.logger.WithField("tool_name", name).Debug("Registered MCP tool")
}

// rawArguments returns the call arguments as JSON. Requests decoded from the
// wire carry json.RawMessage; in-process callers may pass any value.
func rawArguments(req *mcp.CallToolRequest) (json.RawMessage, error) {
	if req == nil || req.Params == nil || req.Params.Arguments == nil {
		return nil, nil
	}

	switch args := req.Params.Arguments.(type) {
	case json.RawMessage:
		return args, nil
	case []byte:
		return json.RawMessage(args), nil
	default:
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("failed to encode arguments: %w", err)
		}
		return data, nil
	}
}

func objectSchema(properties map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	if properties == nil {
		properties = map[string]*jsonschema.Schema{}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}
