package dialogue

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversational turn. Immutable once appended.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
