package apptype

// UserArgs provides a standard way to pass tenant context to tools. Every
// tool takes an explicit user id; there is no ambient default user.
type UserArgs struct {
	UserID string `json:"userId" jsonschema:"The id of the user whose knowledge base to operate on."`
}

// CreateItemArgs represents the arguments for the create_item tool
type CreateItemArgs struct {
	UserArgs UserArgs  `json:"userArgs" jsonschema:"User context for the operation."`
	Type     ItemType  `json:"type" jsonschema:"The item type: project, thought, or article."`
	ID       string    `json:"id" jsonschema:"The item id, unique within its type."`
	Title    string    `json:"title" jsonschema:"The item title."`
	Body     string    `json:"body,omitempty" jsonschema:"The item body text."`
	Entities EntitySet `json:"entities,omitempty" jsonschema:"Extracted entities grouped by category (people, places, topics)."`
}

// SuggestConnectionsArgs represents the arguments for the suggest_connections tool
type SuggestConnectionsArgs struct {
	UserArgs UserArgs `json:"userArgs" jsonschema:"User context for the operation."`
	Type     ItemType `json:"type" jsonschema:"The source item type."`
	ID       string   `json:"id" jsonschema:"The source item id."`
	Title    string   `json:"title,omitempty" jsonschema:"The source item title. When omitted, the stored item is used."`
	Body     string   `json:"body,omitempty" jsonschema:"The source item body."`
}

// SuggestionsResult is the structured output of suggest_connections and
// read_suggestions.
type SuggestionsResult struct {
	Suggestions []ConnectionSuggestion `json:"suggestions"`
}

// DetectBridgesArgs represents the arguments for the detect_bridges tool
type DetectBridgesArgs struct {
	UserArgs UserArgs `json:"userArgs" jsonschema:"User context for the operation."`
	Type     ItemType `json:"type" jsonschema:"The source item type. Only thoughts produce bridges."`
	ID       string   `json:"id" jsonschema:"The source memory id."`
}

// BridgesResult is the structured output of detect_bridges.
type BridgesResult struct {
	Bridges   []Bridge `json:"bridges"`
	Persisted int      `json:"persisted"`
}

// SearchSimilarArgs represents the arguments for the search_similar tool
type SearchSimilarArgs struct {
	UserArgs  UserArgs `json:"userArgs" jsonschema:"User context for the operation."`
	Type      ItemType `json:"type" jsonschema:"The item type to search within."`
	Query     string   `json:"query" jsonschema:"Free text to embed and match against stored items."`
	Threshold float64  `json:"threshold,omitempty" jsonschema:"Minimum cosine similarity (default: the engine's suggestion threshold)."`
	Limit     int      `json:"limit,omitempty" jsonschema:"Maximum number of results (default 5)."`
}

// SearchResult is the structured output of search_similar.
type SearchResult struct {
	Results []SimilarItem `json:"results"`
}

// ReadSuggestionsArgs represents the arguments for the read_suggestions tool
type ReadSuggestionsArgs struct {
	UserArgs UserArgs         `json:"userArgs" jsonschema:"User context for the operation."`
	Status   SuggestionStatus `json:"status,omitempty" jsonschema:"Optional status filter: pending, accepted, or dismissed."`
	Limit    int              `json:"limit,omitempty" jsonschema:"Maximum number of suggestions to return (default 50)."`
}

// ResolveSuggestionArgs represents the arguments for the resolve_suggestion tool
type ResolveSuggestionArgs struct {
	UserArgs UserArgs         `json:"userArgs" jsonschema:"User context for the operation."`
	ID       string           `json:"id" jsonschema:"The suggestion id."`
	Status   SuggestionStatus `json:"status" jsonschema:"The resolution: accepted or dismissed."`
}

// HealthArgs represents the arguments for the health_check tool
type HealthArgs struct{}
