package apptype

import "time"

// ItemType identifies one of the three knowledge item kinds.
type ItemType string

const (
	ItemTypeProject ItemType = "project"
	ItemTypeThought ItemType = "thought"
	ItemTypeArticle ItemType = "article"
)

// Valid reports whether t is one of the known item types.
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeProject, ItemTypeThought, ItemTypeArticle:
		return true
	}
	return false
}

// OtherTypes returns the two item types that are not t. Suggestions are only
// ever made across types, never within one.
func (t ItemType) OtherTypes() []ItemType {
	switch t {
	case ItemTypeProject:
		return []ItemType{ItemTypeThought, ItemTypeArticle}
	case ItemTypeThought:
		return []ItemType{ItemTypeProject, ItemTypeArticle}
	case ItemTypeArticle:
		return []ItemType{ItemTypeProject, ItemTypeThought}
	}
	return nil
}

// ItemRef identifies a knowledge item. Ids are unique within a type but not
// globally, so cross-type references always carry the pair.
type ItemRef struct {
	Type ItemType `json:"type"`
	ID   string   `json:"id"`
}

// EntitySet maps an entity category (people, places, topics) to its values.
type EntitySet map[string][]string

// Flatten collapses all categories into a single list, category order fixed
// so repeated calls over the same set produce the same sequence.
func (s EntitySet) Flatten() []string {
	if len(s) == 0 {
		return nil
	}
	var out []string
	for _, category := range []string{"people", "places", "topics"} {
		out = append(out, s[category]...)
	}
	return out
}

// KnowledgeItem is a project, thought (voice note/memory), or saved article.
type KnowledgeItem struct {
	UserID    string    `json:"userId"`
	Type      ItemType  `json:"type"`
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Entities  EntitySet `json:"entities,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Content builds the flat text used for embedding: title and body joined by
// a single space, empty-safe on either side.
func (k KnowledgeItem) Content() string {
	if k.Title == "" {
		return k.Body
	}
	if k.Body == "" {
		return k.Title
	}
	return k.Title + " " + k.Body
}

// SuggestionStatus is the lifecycle state of a connection suggestion.
type SuggestionStatus string

const (
	SuggestionPending   SuggestionStatus = "pending"
	SuggestionAccepted  SuggestionStatus = "accepted"
	SuggestionDismissed SuggestionStatus = "dismissed"
)

// ConnectionSuggestion is an AI-proposed edge awaiting user review.
type ConnectionSuggestion struct {
	ID           string           `json:"id"`
	UserID       string           `json:"userId"`
	From         ItemRef          `json:"from"`
	To           ItemRef          `json:"to"`
	Reasoning    string           `json:"reasoning"`
	Confidence   float64          `json:"confidence"`
	Status       SuggestionStatus `json:"status"`
	ModelVersion string           `json:"modelVersion,omitempty"`
	Degraded     bool             `json:"degraded,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	ResolvedAt   *time.Time       `json:"resolvedAt,omitempty"`
}

// BridgeType names the strategy that produced a bridge.
type BridgeType string

const (
	BridgeEntityMatch        BridgeType = "entity_match"
	BridgeSemanticSimilarity BridgeType = "semantic_similarity"
	BridgeTemporalProximity  BridgeType = "temporal_proximity"
)

// Bridge is an undirected edge between two thoughts. MemoryA and MemoryB are
// stored in canonical (sorted) order so an unordered pair has at most one
// row.
type Bridge struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	MemoryA        string     `json:"memoryA"`
	MemoryB        string     `json:"memoryB"`
	BridgeType     BridgeType `json:"bridgeType"`
	Strength       float64    `json:"strength"`
	EntitiesShared []string   `json:"entitiesShared,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Connection is a persisted edge ("Spark"), created either manually by the
// user or by accepting an AI suggestion.
type Connection struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Source         ItemRef   `json:"source"`
	Target         ItemRef   `json:"target"`
	ConnectionType string    `json:"connectionType"`
	CreatedBy      string    `json:"createdBy"` // "user" or "ai"
	AIReasoning    string    `json:"aiReasoning,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SimilarItem is one row from a provider-side vector similarity search.
type SimilarItem struct {
	Item       KnowledgeItem `json:"item"`
	Similarity float64       `json:"similarity"`
}
