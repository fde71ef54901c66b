package models

// SourceTextLimit is the number of characters of a chunk shown in a citation.
const SourceTextLimit = 150

// Source is a citation returned alongside an answer.
type Source struct {
	FileName   string `json:"fileName"`
	ChunkIndex int    `json:"chunkIndex"`
	Text       string `json:"text"`
}

// ChatRequest is the body accepted by the chat endpoint. Stream defaults to true.
type ChatRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Message   string `json:"message" binding:"required,min=1,max=4000"`
	Stream    *bool  `json:"stream,omitempty"`
}

// CleanupRequest is the body accepted by the cleanup endpoint.
type CleanupRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// ChatResult is a complete (or, after a mid-stream failure, truncated) answer.
type ChatResult struct {
	Response string   `json:"response"`
	Sources  []Source `json:"sources"`
}

// StreamFrame is the JSON payload of one server-sent event.
type StreamFrame struct {
	Success  bool     `json:"success"`
	Response string   `json:"response,omitempty"`
	Sources  []Source `json:"sources,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// NewSource projects a chunk into its citation form. The text is cut to
// SourceTextLimit characters with an ellipsis when longer.
func NewSource(c Chunk) Source {
	text := c.Text
	if r := []rune(text); len(r) > SourceTextLimit {
		text = string(r[:SourceTextLimit]) + "..."
	}
	return Source{FileName: c.FileName, ChunkIndex: c.ChunkIndex, Text: text}
}
