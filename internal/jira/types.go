package jira

// Attachment is the subset of a Jira attachment needed to fetch it.
type Attachment struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	ContentURL string `json:"content"`
	MimeType   string `json:"mimeType,omitempty"`
	Size       int64  `json:"size,omitempty"`
}

type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

type IssueFields struct {
	Summary     string       `json:"summary"`
	Description string       `json:"description"`
	Attachment  []Attachment `json:"attachment"`
}
