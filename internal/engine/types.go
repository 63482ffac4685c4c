package engine

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to or received from a backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Schema is the JSON schema a structured reply must follow. Backends that
// cannot enforce it pass it along as a hint.
type Schema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty describes a single field within a Schema. Object-typed
// properties nest their own Properties.
type SchemaProperty struct {
	Type        string                    `json:"type"`
	Description string                    `json:"description,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
}

// ObjectSchema returns an object Schema over props.
func ObjectSchema(props map[string]SchemaProperty) *Schema {
	return &Schema{Type: "object", Properties: props}
}

// Object returns an object-typed property. props may be nil.
func Object(description string, props map[string]SchemaProperty) SchemaProperty {
	return SchemaProperty{Type: "object", Description: description, Properties: props}
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
