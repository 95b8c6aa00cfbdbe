package fileqa

// AskRequest is the parsed ask_files arguments
type AskRequest struct {
	// Question is the question to answer from the files
	Question string `json:"question"`

	// Files are absolute paths to text or PDF files
	Files []string `json:"files"`

	// AskIndividually answers each file separately instead of combining them
	AskIndividually bool `json:"ask_individually"`
}

// ExtractRequest is the parsed extract_text arguments
type ExtractRequest struct {
	// Files are absolute paths to text or PDF files
	Files []string `json:"files"`

	// MaxCharacters truncates each document's text; zero returns it all
	MaxCharacters int `json:"max_characters,omitempty"`
}

// ExtractResponse is the extract_text result
type ExtractResponse struct {
	Documents []ExtractedDocument `json:"documents"`
	Issues    []string            `json:"issues,omitempty"`
}

// ExtractedDocument is one successfully extracted file
type ExtractedDocument struct {
	Name       string `json:"name"`
	Characters int    `json:"characters"`
	Truncated  bool   `json:"truncated,omitempty"`
	Text       string `json:"text"`
}
