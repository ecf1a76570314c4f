// Package inquiry categorises incoming support inquiries with a language
// model. The model is a black box: one request, one structured JSON answer.
// Any failure degrades to a "needs a human" analysis instead of an error so
// the caller never depends on the model being up.
package inquiry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const systemPrompt = `You are an AI assistant specialized in analyzing customer inquiries for data teams.

Common data team inquiry categories:
- Data Access: Permissions, warehouse access, table schemas
- Pipeline Issues: ETL failures, data quality problems, monitoring
- Report Generation: Dashboard creation, custom reports, data exports
- Schema Questions: Table structures, data definitions, relationships
- Performance: Query optimization, slow reports, resource usage

Analyze the inquiry and respond with JSON in this exact format:
{
  "category": "string (one of the categories above)",
  "intent": "string (brief description of what user wants)",
  "urgency": "low|medium|high",
  "confidence": number (0-1, how confident you are in the analysis),
  "suggestedResponse": "string (helpful response if confidence > 0.7)",
  "requiresHuman": boolean (true if too complex or confidence < 0.6)
}`

// Analysis is the structured verdict for one inquiry.
type Analysis struct {
	Category          string  `json:"category"`
	Intent            string  `json:"intent"`
	Urgency           string  `json:"urgency"`
	Confidence        float64 `json:"confidence"`
	SuggestedResponse string  `json:"suggestedResponse,omitempty"`
	RequiresHuman     bool    `json:"requiresHuman"`
}

// Analyzer sends inquiries to a Gemini model in JSON mode.
type Analyzer struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

// NewAnalyzer builds a client for the given API key and model.
func NewAnalyzer(ctx context.Context, apiKey, model string, log *zap.Logger) (*Analyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Analyzer{client: client, model: model, log: log}, nil
}

// Analyze categorises one inquiry. It never returns an error: upstream
// failures and unparseable answers come back as the fallback analysis.
func (a *Analyzer) Analyze(ctx context.Context, content string) Analysis {
	resp, err := a.client.Models.GenerateContent(ctx, a.model,
		genai.Text(fmt.Sprintf("Analyze this inquiry: %q", content)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr[float32](0.3),
		})
	if err != nil {
		a.log.Error("inquiry analysis failed", zap.Error(err))
		return fallbackAnalysis()
	}
	return parseAnalysis(resp.Text(), a.log)
}

// parseAnalysis decodes and clamps the model's JSON answer.
func parseAnalysis(raw string, log *zap.Logger) Analysis {
	var out Analysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		log.Error("unparseable analysis from model", zap.Error(err))
		return fallbackAnalysis()
	}

	if out.Category == "" {
		out.Category = "Unknown"
	}
	if out.Intent == "" {
		out.Intent = "Unclear intent"
	}
	switch out.Urgency {
	case "low", "medium", "high":
	default:
		out.Urgency = "medium"
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	if out.Confidence < 0.6 {
		out.RequiresHuman = true
	}
	return out
}

func fallbackAnalysis() Analysis {
	return Analysis{
		Category:      "Unknown",
		Intent:        "Analysis failed",
		Urgency:       "medium",
		RequiresHuman: true,
	}
}
