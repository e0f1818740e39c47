package models

// These structs define the JSON payloads exchanged with callers of the
// extract and search functions, and the GCS event consumed by the upload
// extractor.

// ExtractResponse is the data returned for a successful extraction.
type ExtractResponse struct {
	RecordID      string `json:"recordId"`
	DisplayName   string `json:"displayName"`
	ExtractedData any    `json:"extractedData"`
}

// SearchRequest is the input for the search function.
type SearchRequest struct {
	Query    string `json:"query"`
	RecordID string `json:"recordId,omitempty"`
}

// SearchResult is one document's answer.
type SearchResult struct {
	RecordID   string `json:"recordId"`
	RecordName string `json:"recordName"`
	Answer     any    `json:"answer"`
}

// SearchResponse is the aggregated output of the search function.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// GCSEvent is the payload of a storage object finalized event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        string `json:"size"`
}
