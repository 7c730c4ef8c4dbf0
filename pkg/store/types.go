package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Item types stored in context_items.
const (
	ItemTypeFile         = "file"
	ItemTypeEntity       = "entity"
	ItemTypeConversation = "conversation_history"
	ItemTypeProjectInfo  = "project_info"
)

// Entity kinds stored in code_entities.
const (
	EntityKindFunction = "function"
	EntityKindClass    = "class"
)

// ContextItem is a unit of retrievable information offered to the assistant.
type ContextItem struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Name            string    `json:"name"`
	Path            string    `json:"path,omitempty"`
	Language        string    `json:"language,omitempty"`
	Content         string    `json:"content"`
	LineStart       int       `json:"line_start,omitempty"`
	LineEnd         int       `json:"line_end,omitempty"`
	Size            int64     `json:"size"`
	LastAccessed    time.Time `json:"last_accessed"`
	ImportanceScore float64   `json:"importance_score"`
	VectorID        *int64    `json:"vector_id,omitempty"`
	Metadata        Meta      `json:"metadata,omitempty"`

	// Relevance is computed per query and never persisted.
	Relevance float64 `json:"-"`
}

// CodeEntity is an extracted function or class with its source span.
type CodeEntity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	FilePath  string `json:"file_path"`
	Code      string `json:"code"`
	FirstSeen int64  `json:"first_seen"`
	LastSeen  int64  `json:"last_seen"`
	Frequency int    `json:"frequency"`
	VectorID  *int64 `json:"vector_id,omitempty"`
}

// Conversation is an ordered exchange owned by the memory manager.
type Conversation struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Messages     []ConversationMessage `json:"messages"`
	ModelID      string                `json:"model_id,omitempty"`
	SystemPrompt string                `json:"system_prompt,omitempty"`
	Temperature  float64               `json:"temperature,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// ConversationMessage is a single conversation turn.
// Importance, Relevance and CombinedScore are computed per query and never persisted.
type ConversationMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // user, assistant, system
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	Importance    float64 `json:"-"`
	Relevance     float64 `json:"-"`
	CombinedScore float64 `json:"-"`
}

// UsagePattern is a recorded user behavior pattern.
type UsagePattern struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Pattern   string `json:"pattern"`
	Examples  string `json:"examples"`
	Frequency int    `json:"frequency"`
	FirstSeen int64  `json:"first_seen"`
	LastSeen  int64  `json:"last_seen"`
}

// VectorMatch is a similarity search hit hydrated from the relational tables.
type VectorMatch struct {
	VectorID   int64        `json:"vector_id"`
	Similarity float64      `json:"similarity"`
	Item       *ContextItem `json:"item,omitempty"`
	Entity     *CodeEntity  `json:"entity,omitempty"`
	Meta       Meta         `json:"meta,omitempty"`
}

// Meta is the tagged union over the known vector metadata shapes.
type Meta interface {
	metaKind() string
	refID() string
}

// FileMeta links a vector to a file context item.
type FileMeta struct {
	ItemID   string `json:"item_id"`
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
}

func (FileMeta) metaKind() string { return "file" }
func (m FileMeta) refID() string  { return m.ItemID }

// EntityMeta links a vector to a code entity.
type EntityMeta struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	FilePath string `json:"file_path"`
}

func (EntityMeta) metaKind() string { return "entity" }
func (m EntityMeta) refID() string  { return m.EntityID }

// ProjectMeta links a vector to project-level metadata.
type ProjectMeta struct {
	ItemID string `json:"item_id"`
	Name   string `json:"name"`
}

func (ProjectMeta) metaKind() string { return "project" }
func (m ProjectMeta) refID() string  { return m.ItemID }

type metaEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodeMeta serializes a metadata value with its kind tag.
func EncodeMeta(m Meta) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("nil metadata")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return json.Marshal(metaEnvelope{Kind: m.metaKind(), Data: data})
}

// DecodeMeta deserializes a tagged metadata envelope.
func DecodeMeta(raw []byte) (Meta, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var env metaEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata envelope: %w", err)
	}

	switch env.Kind {
	case "file":
		var m FileMeta
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "entity":
		var m EntityMeta
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "project":
		var m ProjectMeta
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown metadata kind: %s", env.Kind)
	}
}
