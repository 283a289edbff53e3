package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"codescope/internal/index"
	"codescope/internal/query"
	"codescope/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing code search tools over stdio",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol, so the engine logs nothing.
	eng, err := openEngine(cmd.Context(), cwd(), true)
	if err != nil {
		return err
	}
	defer eng.Close()

	s := mcpserver.NewMCPServer("codescope", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(searchCodeTool(), makeSearchHandler(eng))
	s.AddTool(indexStatusTool(), makeStatusHandler(eng))
	s.AddTool(listIndexedFilesTool(), makeListFilesHandler(eng))
	s.AddTool(getProjectOverviewTool(), makeOverviewHandler(eng))
	s.AddTool(findCallersTool(), makeCallsHandler(eng.Callers))
	s.AddTool(findCalleesTool(), makeCallsHandler(eng.Callees))

	return mcpserver.ServeStdio(s)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func searchCodeTool() mcp.Tool {
	return mcp.NewTool("search_code",
		mcp.WithDescription("Search the indexed code. A bare identifier returns its definitions, then its call sites, then text matches. Other queries are full-text with BM25 ranking. Supports filters such as lang:go kind:function path:internal/** ext:ts."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Identifier, keywords or quoted phrase, optionally with filters"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default from config)"),
		),
		mcp.WithString("mode",
			mcp.Description("Force a branch: 'symbol' or 'text'. Empty picks automatically."),
		),
	)
}

func indexStatusTool() mcp.Tool {
	return mcp.NewTool("index_status",
		mcp.WithDescription("Report index statistics: file, symbol, call and chunk counts, degraded files, cache hit rate and query latency."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

func listIndexedFilesTool() mcp.Tool {
	return mcp.NewTool("list_indexed_files",
		mcp.WithDescription("List all files in the index with their language and whether they were indexed without symbols."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("language",
			mcp.Description("Optional language filter (e.g. 'go', 'python'). Aliases such as 'golang' or 'py' are accepted."),
		),
	)
}

func getProjectOverviewTool() mcp.Tool {
	return mcp.NewTool("get_project_overview",
		mcp.WithDescription("Get a project overview built from the index: files and symbols per language, the most-called definitions, and files indexed as text only."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithNumber("top",
			mcp.Description("Number of most-called definitions to list (default 10)"),
		),
	)
}

func findCallersTool() mcp.Tool {
	return mcp.NewTool("find_callers",
		mcp.WithDescription("List call sites of a function or method, with the enclosing caller and the file defining the callee."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Function or method name; a qualified name like Type.method uses its last part"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of call sites (default from config)"),
		),
	)
}

func findCalleesTool() mcp.Tool {
	return mcp.NewTool("find_callees",
		mcp.WithDescription("List the calls made inside a function or method."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the calling function or method"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of calls (default from config)"),
		),
	)
}

// --- Handler factories ---

func makeSearchHandler(eng *index.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw := req.GetString("query", "")
		if strings.TrimSpace(raw) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		mode, err := query.ParseMode(req.GetString("mode", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		results, err := eng.Query(ctx, raw, query.Options{Limit: req.GetInt("limit", 0), Mode: mode})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcp.NewToolResultText(query.Markdown(raw, results)), nil
	}
}

func makeStatusHandler(eng *index.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := eng.Status(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("status failed: %v", err)), nil
		}
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func makeListFilesHandler(eng *index.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lang := req.GetString("language", "")

		files, err := eng.Files(ctx, lang)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list files failed: %v", err)), nil
		}

		var sb strings.Builder
		if lang != "" {
			fmt.Fprintf(&sb, "## Indexed files (%d, language: %s)\n\n", len(files), lang)
		} else {
			fmt.Fprintf(&sb, "## Indexed files (%d)\n\n", len(files))
		}
		for _, f := range files {
			language := f.Language
			if language == "" {
				language = "text"
			}
			fmt.Fprintf(&sb, "- **%s** (%s, %d bytes)", f.Path, language, f.SizeBytes)
			if f.Degraded {
				fmt.Fprintf(&sb, ", text only: %s", f.ParseError)
			}
			sb.WriteString("\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeOverviewHandler(eng *index.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ov, err := eng.Overview(ctx, req.GetInt("top", 10))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("overview failed: %v", err)), nil
		}
		return mcp.NewToolResultText(ov.Markdown()), nil
	}
}

type callLookup func(ctx context.Context, name string, limit int) ([]store.CallHit, error)

func makeCallsHandler(lookup callLookup) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := req.GetString("name", "")
		if name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}
		hits, err := lookup(ctx, name, req.GetInt("limit", 0))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatCalls(name, hits)), nil
	}
}

// --- Formatting helpers ---

func formatCalls(name string, hits []store.CallHit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No calls found for %q", name)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Calls for %q (%d)\n\n", name, len(hits))
	for _, h := range hits {
		caller := h.Caller
		if caller == "" {
			caller = "(top level)"
		}
		fmt.Fprintf(&sb, "- `%s:%d` %s → %s", h.Path, h.Line, caller, h.Callee)
		if h.CalleePath != "" {
			fmt.Fprintf(&sb, " (defined in `%s`)", h.CalleePath)
		}
		if ex := strings.TrimSpace(h.Excerpt); ex != "" {
			fmt.Fprintf(&sb, "\n  `%s`", ex)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
