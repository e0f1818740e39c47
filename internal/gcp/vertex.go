package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/documentquery/internal/inference"
)

// --- Extraction Model Prompts ---
const ExtractionSystemPrompt = "You are a document analysis engine. You convert the content of a PDF document into structured JSON without losing information."
const ExtractionUserPrompt = `You will be provided with a PDF document.

Convert the whole document into one JSON object with this shape:

{
  "pdf_title": "<title of the document, or the file name if none is visible>",
  "pages": [
    {
      "page_number": 1,
      "content": [
        { "type": "heading", "text": "..." },
        { "type": "text", "text": "..." },
        { "type": "list", "items": ["...", "..."] },
        { "type": "table", "headers": ["..."], "rows": [["..."]] },
        { "type": "image", "description": "..." }
      ]
    }
  ]
}

Rules:
1.  Produce one entry in "pages" for every page of the document, in order.
2.  Keep the reading order of each page inside its "content" array.
3.  Describe images in words; never omit a table or a list.
4.  Ignore running headers, footers and page numbers that are not part of the content.
5.  Return ONLY the JSON object. Do not wrap it in backtick fences or add any commentary.`

// --- Search Model Prompts ---
const SearchSystemPrompt = "You answer questions about a single document using only the structured data you are given."
const SearchUserPrompt = `Answer the query below using only the extracted document data that follows it.

Rules:
1.  If the answer is a list of values, return a JSON array.
2.  If the answer has several named parts, return a JSON object.
3.  Otherwise return a short plain-text answer.
4.  If the data does not contain the answer, say so in one sentence.
5.  Do not wrap the answer in backtick fences.`

// ExtractionInstructions returns the extraction prompt, mentioning the page
// count when it is known.
func ExtractionInstructions(pageCount int) string {
	if pageCount <= 0 {
		return ExtractionUserPrompt
	}
	return fmt.Sprintf("%s\n\nThe document has %d page(s); \"pages\" must contain exactly %d entries.", ExtractionUserPrompt, pageCount, pageCount)
}

// SearchInstructions builds the per-document search prompt from the literal
// query and the serialized extracted data.
func SearchInstructions(query, extractedData string) string {
	var b strings.Builder
	b.WriteString(SearchUserPrompt)
	b.WriteString("\n\nQuery: ")
	b.WriteString(query)
	b.WriteString("\n\nExtracted document data:\n")
	b.WriteString(extractedData)
	return b.String()
}

// VertexConfig selects the Gemini model and where it runs.
type VertexConfig struct {
	ProjectID string
	Region    string
	Model     string
}

// VertexClient holds the pre-configured generative models used by the pipeline.
type VertexClient struct {
	ExtractionModel *genai.GenerativeModel
	SearchModel     *genai.GenerativeModel
	baseClient      *genai.Client
}

// NewVertexClient creates a new client holding both models.
func NewVertexClient(ctx context.Context, cfg VertexConfig) (*VertexClient, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("NewVertexClient: model name cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the extraction model ---
	extractionModel := baseClient.GenerativeModel(cfg.Model)
	extractionModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ExtractionSystemPrompt)},
	}
	extractionModel.GenerationConfig = generationConfig(8192)
	extractionModel.SafetySettings = safetySettings()

	// --- Configure the search model ---
	searchModel := baseClient.GenerativeModel(cfg.Model)
	searchModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SearchSystemPrompt)},
	}
	searchModel.GenerationConfig = generationConfig(2048)
	searchModel.SafetySettings = safetySettings()

	return &VertexClient{
		ExtractionModel: extractionModel,
		SearchModel:     searchModel,
		baseClient:      baseClient,
	}, nil
}

// Close releases the underlying connection.
func (c *VertexClient) Close() error {
	if c == nil || c.baseClient == nil {
		return nil
	}
	return c.baseClient.Close()
}

// Extractor returns a generator bound to the extraction model.
func (c *VertexClient) Extractor() inference.Generator {
	return &ModelGenerator{Model: c.ExtractionModel}
}

// Searcher returns a generator bound to the search model.
func (c *VertexClient) Searcher() inference.Generator {
	return &ModelGenerator{Model: c.SearchModel}
}

func generationConfig(maxOutputTokens int32) genai.GenerationConfig {
	return genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](0.7),
		TopK:            genai.Ptr[int32](40),
		TopP:            genai.Ptr[float32](0.95),
		MaxOutputTokens: genai.Ptr(maxOutputTokens),
	}
}

func safetySettings() []*genai.SafetySetting {
	return []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockMediumAndAbove},
	}
}

// ModelGenerator adapts a Gemini model to inference.Generator.
type ModelGenerator struct {
	Model *genai.GenerativeModel
}

// Generate sends the payload followed by the instructions and returns the
// concatenated text of the first candidate.
func (g *ModelGenerator) Generate(ctx context.Context, instructions string, payload inference.Payload) (string, error) {
	parts := make([]genai.Part, 0, 2)
	switch {
	case len(payload.Data) > 0:
		parts = append(parts, genai.Blob{MIMEType: payload.MIMEType, Data: payload.Data})
	case payload.Text != "":
		parts = append(parts, genai.Text(payload.Text))
	}
	parts = append(parts, genai.Text(instructions))

	resp, err := g.Model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	text, ok := responseText(resp)
	if !ok {
		return "", fmt.Errorf("gemini returned no text candidates")
	}
	return text, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	var b strings.Builder
	found := false
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
			found = true
		}
	}
	return b.String(), found
}
