// Package mcpadapter exposes retrieval and question answering as MCP tools
// so desktop assistants can consult the Title 18 corpus.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ServerName    = "statute-rag"
	ServerVersion = "0.1.0"

	ToolSearch = "search_title18"
	ToolAsk    = "ask_title18"

	defaultK = 5
	maxK     = 20
)

type Server struct {
	answerer ports.QuestionAnswerer
	logger   *slog.Logger
	mcp      *server.MCPServer
}

func NewServer(answerer ports.QuestionAnswerer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		answerer: answerer,
		logger:   logger,
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool(ToolSearch,
		mcp.WithDescription("Search Title 18 of the U.S. Code and return ranked statute passages."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Natural-language legal question")),
		mcp.WithNumber("k", mcp.Description("Number of passages to return (1-20, default 5)")),
	), s.handleSearch)

	s.mcp.AddTool(mcp.NewTool(ToolAsk,
		mcp.WithDescription("Answer a question about Title 18 of the U.S. Code with statute citations."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Natural-language legal question")),
		mcp.WithNumber("k", mcp.Description("Number of passages used as context (1-20, default 5)")),
	), s.handleAsk)

	return s
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

type searchHit struct {
	ChunkID    string   `json:"chunk_id"`
	Section    string   `json:"section,omitempty"`
	PageNum    int      `json:"page_num,omitempty"`
	TextType   string   `json:"text_type,omitempty"`
	FusedScore float64  `json:"fused_score"`
	Text       string   `json:"text"`
	References []string `json:"section_references,omitempty"`
}

type searchPayload struct {
	Intent         domain.Intent `json:"intent"`
	DenseDegraded  bool          `json:"dense_degraded"`
	SparseDegraded bool          `json:"sparse_degraded"`
	FilterDropped  bool          `json:"filter_dropped"`
	Results        []searchHit   `json:"results"`
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, k, errResult := parseArgs(request)
	if errResult != nil {
		return errResult, nil
	}

	result, err := s.answerer.Search(ctx, question, k)
	if err != nil {
		return s.toolError(ToolSearch, err), nil
	}

	payload := searchPayload{
		Intent:         result.Query.Intent,
		DenseDegraded:  result.DenseDegraded,
		SparseDegraded: result.SparseDegraded,
		FilterDropped:  result.FilterDropped,
		Results:        make([]searchHit, 0, len(result.Results)),
	}
	for _, r := range result.Results {
		hit := searchHit{
			ChunkID:    r.ChunkID,
			PageNum:    r.Metadata.PageNum,
			TextType:   string(r.Metadata.TextType),
			FusedScore: r.FusedScore,
			Text:       r.Text,
			References: r.Metadata.SectionReferences,
		}
		if len(r.Metadata.SectionReferences) > 0 {
			hit.Section = r.Metadata.SectionReferences[0]
		}
		payload.Results = append(payload.Results, hit)
	}

	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode search result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, k, errResult := parseArgs(request)
	if errResult != nil {
		return errResult, nil
	}

	answer, err := s.answerer.Answer(ctx, domain.AnswerRequest{Question: question, K: k})
	if err != nil {
		return s.toolError(ToolAsk, err), nil
	}
	return mcp.NewToolResultText(renderAnswer(answer)), nil
}

func renderAnswer(answer *domain.Answer) string {
	var b strings.Builder
	b.WriteString(answer.FormattedText)
	if len(answer.Citations) > 0 {
		b.WriteString("\n\nCitations:\n")
		for _, c := range answer.Citations {
			line := "- " + c.Reference
			if c.URL != "" {
				line += " <" + c.URL + ">"
			}
			if c.PageNum > 0 {
				line += fmt.Sprintf(" (page %d)", c.PageNum)
			}
			b.WriteString(line + "\n")
		}
	}
	if answer.DenseDegraded || answer.SparseDegraded {
		b.WriteString("\nNote: retrieval ran with a reduced signal set; results may be less complete.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func parseArgs(request mcp.CallToolRequest) (string, int, *mcp.CallToolResult) {
	question, err := request.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return "", 0, mcp.NewToolResultError("question is required")
	}
	k := request.GetInt("k", defaultK)
	if k <= 0 || k > maxK {
		return "", 0, mcp.NewToolResultError(fmt.Sprintf("k must be between 1 and %d", maxK))
	}
	return question, k, nil
}

// toolError reports user-facing failures as tool results so the calling
// model can react to them.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("mcp_tool_failed", "tool", tool, "error", err.Error())
	switch {
	case domain.IsKind(err, domain.ErrInvalidQuery):
		return mcp.NewToolResultError("the question could not be understood: " + err.Error())
	case domain.IsKind(err, domain.ErrEmptyIndex), domain.IsKind(err, domain.ErrNoRetrievalSignal):
		return mcp.NewToolResultError("the statute index is not available yet: " + err.Error())
	default:
		return mcp.NewToolResultError(err.Error())
	}
}
