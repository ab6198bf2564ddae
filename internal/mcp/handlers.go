package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/snp-search-service/internal/domain"
)

// SelectInputModeParams defines parameters for select_input_mode tool
type SelectInputModeParams struct {
	ID *int `json:"id"`
}

// SearchSnpsParams defines parameters for search_snps tool
type SearchSnpsParams struct {
	Source []string `json:"source,omitempty"`
	Chrom  string   `json:"chrom"`
	Start  int64    `json:"start"`
	End    int64    `json:"end"`
	Page   int      `json:"page,omitempty"`
}

// SetDownloadIDParams defines parameters for set_download_id tool
type SetDownloadIDParams struct {
	DownloadID string `json:"download_id"`
}

// InputModesResult defines the result structure for list_input_modes tool
type InputModesResult struct {
	Options  []domain.InputModeInfo `json:"options"`
	Selected domain.InputModeInfo   `json:"selected"`
}

// AvailabilityResult defines the result structure for check_availability tool
type AvailabilityResult struct {
	Available bool `json:"available"`
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	return json.Unmarshal(args, v)
}

func (s *Server) listInputModes(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	modes := domain.InputModes()
	result := InputModesResult{
		Options:  make([]domain.InputModeInfo, 0, len(modes)),
		Selected: s.service.SelectedInputMode().Info(),
	}
	for _, mode := range modes {
		result.Options = append(result.Options, mode.Info())
	}

	return s.createResult(fmt.Sprintf("%d input modes, selected: %s", len(modes), result.Selected.Label), result), nil
}

func (s *Server) selectInputMode(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	var params SelectInputModeParams
	if err := decodeArgs(args, &params); err != nil {
		return s.createErrorResult("Invalid parameters", err), nil
	}
	if params.ID == nil {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("id is required")), nil
	}

	mode, err := domain.ParseInputMode(*params.ID)
	if err != nil {
		return s.createErrorResult("Unknown input mode", err), nil
	}

	s.service.SelectInputMode(mode)
	return s.createResult(fmt.Sprintf("Input mode set to %s", mode.Label()), mode.Info()), nil
}

func (s *Server) searchSnps(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	var params SearchSnpsParams
	if err := decodeArgs(args, &params); err != nil {
		return s.createErrorResult("Invalid parameters", err), nil
	}

	filter := domain.AnnotationQuery{
		Source: params.Source,
		Chrom:  params.Chrom,
		Start:  params.Start,
		End:    params.End,
	}
	if err := filter.Validate(); err != nil {
		return s.createErrorResult("Missing required parameter", err), nil
	}

	outcome := s.service.Search(ctx, filter, params.Page)

	switch outcome.Status {
	case domain.OutcomeFailed:
		result := s.createErrorResult("Search failed", outcome.Err)
		result.Meta = map[string]interface{}{"code": domain.ErrSearchFailure, "result": outcome}
		return result, nil
	case domain.OutcomeEmpty:
		return s.createResult("No SNPs matched the filter", outcome), nil
	case domain.OutcomeStale:
		return s.createResult("Search superseded by a newer request", outcome), nil
	default:
		return s.createResult(fmt.Sprintf("Page %d: %d of %d SNPs",
			outcome.Page.Page, len(outcome.Page.Snps), outcome.Page.Total), outcome), nil
	}
}

func (s *Server) getCurrentPage(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	page := s.service.CurrentPage()
	if page == nil {
		return s.createResult("No page published", nil), nil
	}
	return s.createResult(fmt.Sprintf("Page %d: %d of %d SNPs", page.Page, len(page.Snps), page.Total), page), nil
}

func (s *Server) setDownloadID(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	var params SetDownloadIDParams
	if err := decodeArgs(args, &params); err != nil {
		return s.createErrorResult("Invalid parameters", err), nil
	}

	s.service.SetDownloadID(params.DownloadID)
	return s.createResult(fmt.Sprintf("Download id set to %q", params.DownloadID), params), nil
}

func (s *Server) downloadSnp(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	if s.service.DownloadID() == "" {
		return s.createResult("No download id set", nil), nil
	}

	if err := s.service.DownloadSnp(ctx); err != nil {
		return s.createErrorResult("Download check failed", err), nil
	}

	download := s.service.CurrentDownload()
	return s.createResult(fmt.Sprintf("Download %s status received", download.DownloadID), download), nil
}

func (s *Server) checkAvailability(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	available := s.service.IsAvailable(ctx)

	text := "Search engine is available"
	if !available {
		text = "Search engine is not available"
	}
	return s.createResult(text, AvailabilityResult{Available: available}), nil
}

// createResult renders data as indented JSON after a summary line
func (s *Server) createResult(summary string, data interface{}) *mcp.CallToolResult {
	content := []mcp.Content{&mcp.TextContent{Text: summary}}
	meta := map[string]interface{}{}

	if data != nil {
		payload, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return s.createErrorResult("Failed to encode result", err)
		}
		content = append(content, &mcp.TextContent{Text: string(payload)})
		meta["result"] = data
	}

	return &mcp.CallToolResult{
		Content: content,
		Meta:    meta,
	}
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
