package server

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/polymath-app/polymath-go/internal/apptype"
	"github.com/polymath-app/polymath-go/internal/buildinfo"
	"github.com/polymath-app/polymath-go/internal/metrics"
	"github.com/polymath-app/polymath-go/pkg/polymath"
)

// MCPServer exposes the service over the MCP protocol.
type MCPServer struct {
	server *mcp.Server
	svc    *polymath.Service
}

// NewMCPServer creates an MCP server wrapping the service.
func NewMCPServer(svc *polymath.Service) *MCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "polymath-go",
		Version: buildinfo.Version,
	}, nil)

	s := &MCPServer{server: server, svc: svc}
	s.setupToolHandlers()
	return s
}

// setupToolHandlers registers all MCP tools
func (s *MCPServer) setupToolHandlers() {
	createItemInputSchema, err := jsonschema.For[apptype.CreateItemArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for CreateItemArgs: %v", err))
	}
	suggestInputSchema, err := jsonschema.For[apptype.SuggestConnectionsArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for SuggestConnectionsArgs: %v", err))
	}
	suggestOutputSchema, err := jsonschema.For[apptype.SuggestionsResult]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for SuggestionsResult (suggest): %v", err))
	}
	detectInputSchema, err := jsonschema.For[apptype.DetectBridgesArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for DetectBridgesArgs: %v", err))
	}
	detectOutputSchema, err := jsonschema.For[apptype.BridgesResult]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for BridgesResult: %v", err))
	}
	searchInputSchema, err := jsonschema.For[apptype.SearchSimilarArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for SearchSimilarArgs: %v", err))
	}
	searchOutputSchema, err := jsonschema.For[apptype.SearchResult]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for SearchResult: %v", err))
	}
	readSuggestionsInputSchema, err := jsonschema.For[apptype.ReadSuggestionsArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for ReadSuggestionsArgs: %v", err))
	}
	// A fresh SuggestionsResult schema avoids re-resolving the same root.
	readSuggestionsOutputSchema, err := jsonschema.For[apptype.SuggestionsResult]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for SuggestionsResult (read): %v", err))
	}
	resolveInputSchema, err := jsonschema.For[apptype.ResolveSuggestionArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for ResolveSuggestionArgs: %v", err))
	}
	healthInputSchema, err := jsonschema.For[apptype.HealthArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for HealthArgs: %v", err))
	}
	healthOutputSchema, err := jsonschema.For[polymath.Health]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for Health: %v", err))
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_item",
		Title:       "Create Item",
		Description: "Create or update a knowledge item (project, thought, or article). Content is embedded when a provider is configured.",
		InputSchema: createItemInputSchema,
	}, s.handleCreateItem)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "suggest_connections",
		Title:        "Suggest Connections",
		Description:  "Suggest cross-type connections for one item, ranked by similarity, with AI reasoning.",
		InputSchema:  suggestInputSchema,
		OutputSchema: suggestOutputSchema,
	}, s.handleSuggestConnections)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "detect_bridges",
		Title:        "Detect Bridges",
		Description:  "Detect entity, semantic, and temporal bridges between one thought and other thoughts.",
		InputSchema:  detectInputSchema,
		OutputSchema: detectOutputSchema,
	}, s.handleDetectBridges)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "search_similar",
		Title:        "Search Similar",
		Description:  "Search items of one type by semantic similarity to a free-text query.",
		InputSchema:  searchInputSchema,
		OutputSchema: searchOutputSchema,
	}, s.handleSearchSimilar)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "read_suggestions",
		Title:        "Read Suggestions",
		Description:  "List stored connection suggestions, optionally filtered by status.",
		InputSchema:  readSuggestionsInputSchema,
		OutputSchema: readSuggestionsOutputSchema,
	}, s.handleReadSuggestions)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "resolve_suggestion",
		Title:       "Resolve Suggestion",
		Description: "Accept or dismiss a suggestion. Accepting materializes a connection.",
		InputSchema: resolveInputSchema,
	}, s.handleResolveSuggestion)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "health_check",
		Title:        "Health Check",
		Description:  "Report provider wiring and connection pool usage.",
		InputSchema:  healthInputSchema,
		OutputSchema: healthOutputSchema,
	}, s.handleHealthCheck)
}

func (s *MCPServer) handleCreateItem(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.CreateItemArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeEngine("tool_create_item")
	var success bool
	defer func() { done(success) }()

	args := params.Arguments
	item, err := s.svc.CreateItem(ctx, apptype.KnowledgeItem{
		UserID:   args.UserArgs.UserID,
		Type:     args.Type,
		ID:       args.ID,
		Title:    args.Title,
		Body:     args.Body,
		Entities: args.Entities,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	success = true

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Stored %s %s for user %s", item.Type, item.ID, item.UserID),
			},
		},
	}, nil
}

func (s *MCPServer) handleSuggestConnections(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.SuggestConnectionsArgs],
) (*mcp.CallToolResultFor[apptype.SuggestionsResult], error) {
	done := metrics.TimeEngine("tool_suggest_connections")
	var success bool
	defer func() { done(success) }()

	args := params.Arguments
	source := apptype.KnowledgeItem{
		UserID: args.UserArgs.UserID,
		Type:   args.Type,
		ID:     args.ID,
		Title:  args.Title,
		Body:   args.Body,
	}
	if source.Content() == "" && source.ID != "" {
		stored, err := s.svc.GetItem(ctx, args.UserArgs.UserID, args.Type, args.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load source item: %w", err)
		}
		source = *stored
	}

	suggestions, err := s.svc.SuggestConnections(ctx, args.UserArgs.UserID, source)
	if err != nil {
		return nil, fmt.Errorf("suggestion run failed: %w", err)
	}
	success = true

	return &mcp.CallToolResultFor[apptype.SuggestionsResult]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Generated %d suggestions", len(suggestions)),
			},
		},
		StructuredContent: apptype.SuggestionsResult{Suggestions: suggestions},
	}, nil
}

func (s *MCPServer) handleDetectBridges(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.DetectBridgesArgs],
) (*mcp.CallToolResultFor[apptype.BridgesResult], error) {
	done := metrics.TimeEngine("tool_detect_bridges")
	var success bool
	defer func() { done(success) }()

	args := params.Arguments
	result, err := s.svc.DetectBridges(ctx, args.UserArgs.UserID, args.Type, args.ID)
	if err != nil {
		return nil, fmt.Errorf("bridge detection failed: %w", err)
	}
	success = true

	return &mcp.CallToolResultFor[apptype.BridgesResult]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Found %d bridges, persisted %d", len(result.Bridges), result.Persisted),
			},
		},
		StructuredContent: apptype.BridgesResult{
			Bridges:   result.Bridges,
			Persisted: result.Persisted,
		},
	}, nil
}

func (s *MCPServer) handleSearchSimilar(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.SearchSimilarArgs],
) (*mcp.CallToolResultFor[apptype.SearchResult], error) {
	done := metrics.TimeEngine("tool_search_similar")
	var success bool
	defer func() { done(success) }()

	args := params.Arguments
	limit := args.Limit
	if limit <= 0 {
		limit = 5
	}
	results, err := s.svc.SearchSimilar(ctx, args.UserArgs.UserID, args.Type, args.Query, args.Threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	success = true

	return &mcp.CallToolResultFor[apptype.SearchResult]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: "Search completed successfully",
			},
		},
		StructuredContent: apptype.SearchResult{Results: results},
	}, nil
}

func (s *MCPServer) handleReadSuggestions(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.ReadSuggestionsArgs],
) (*mcp.CallToolResultFor[apptype.SuggestionsResult], error) {
	done := metrics.TimeEngine("tool_read_suggestions")
	var success bool
	defer func() { done(success) }()

	args := params.Arguments
	suggestions, err := s.svc.ListSuggestions(ctx, args.UserArgs.UserID, args.Status, args.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	success = true

	return &mcp.CallToolResultFor[apptype.SuggestionsResult]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Found %d suggestions", len(suggestions)),
			},
		},
		StructuredContent: apptype.SuggestionsResult{Suggestions: suggestions},
	}, nil
}

func (s *MCPServer) handleResolveSuggestion(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.ResolveSuggestionArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeEngine("tool_resolve_suggestion")
	var success bool
	defer func() { done(success) }()

	args := params.Arguments
	sg, err := s.svc.ResolveSuggestion(ctx, args.UserArgs.UserID, args.ID, args.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve suggestion: %w", err)
	}
	success = true

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Suggestion %s is now %s", sg.ID, sg.Status),
			},
		},
	}, nil
}

func (s *MCPServer) handleHealthCheck(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.HealthArgs],
) (*mcp.CallToolResultFor[polymath.Health], error) {
	health := s.svc.HealthCheck(ctx)
	return &mcp.CallToolResultFor[polymath.Health]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: "Service is " + health.Status,
			},
		},
		StructuredContent: health,
	}, nil
}

// Run serves MCP over stdio until ctx is canceled.
func (s *MCPServer) Run(ctx context.Context) error {
	// periodic pool stats reporting
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				inUse, idle := s.svc.Store().PoolStats()
				metrics.Default().ObservePoolStats(inUse, idle)
			}
		}
	}()
	transport := mcp.NewStdioTransport()
	return s.server.Run(ctx, transport)
}
