package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
)

// Prompt is sent alongside every recording.
const Prompt = `
Analyze this audio recording and determine if it describes an equal split or unequal split bill, then extract the appropriate information:

FOR EQUAL SPLIT (when people share items equally):
- Example: "John paid 250 rupees for pizza and it was shared between Alice, Bob, Charlie"
- Response format:
{
  "item": "name of the item",
  "amount": numeric_amount,
  "paidBy": "name of person who paid",
  "sharedWith": ["name1", "name2", "name3"],
  "isEqualSplit": true
}

FOR UNEQUAL SPLIT (when specific items/costs are mentioned for individuals):
- Example: "Aryan paid 60rs for drinks which had lemon drink for arun which costed 10rs and a soda for mohit which costed 20rs and a mojito for gurjot which costed 30rs"
- Response format:
{
  "item": "main category name",
  "amount": total_numeric_amount,
  "paidBy": "name of person who paid",
  "sharedWith": [],
  "isEqualSplit": false,
  "itemizedCosts": [
    {"person": "name1", "item": "item1", "cost": cost1},
    {"person": "name2", "item": "item2", "cost": cost2}
  ]
}

INSTRUCTIONS:
1. First determine if this is an equal split (people sharing equally) or unequal split (specific items/costs mentioned)
2. Extract the information according to the appropriate format above
3. For equal splits, list all people who will share the cost in "sharedWith"
4. For unequal splits, list individual items and costs in "itemizedCosts"
5. Return ONLY valid JSON, no additional text

Analyze the audio and respond with the appropriate JSON format.
`

const (
	DefaultModel    = "gemini-1.5-flash"
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	defaultMimeType = "audio/wav"
	requestTimeout  = 60 * time.Second
	maxResponseSize = 1 << 20
)

var ErrMissingAPIKey = errors.New("gemini API key is required")

type GeminiConfig struct {
	APIKey   string
	Model    string
	Endpoint string
	// HTTPClient defaults to a client with a 60s timeout.
	HTTPClient *http.Client
}

// Gemini extracts drafts with the generateContent REST method of Google's
// generative language API.
type Gemini struct {
	client   *http.Client
	endpoint string
	model    string
	apiKey   string
}

var _ Extractor = (*Gemini)(nil)

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}

	slog.InfoContext(ctx, "Gemini extractor ready", "component", "extract", "model", model)
	return &Gemini{client: client, endpoint: endpoint, model: model, apiKey: cfg.APIKey}, nil
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Extract(ctx context.Context, audio Audio, mode Mode) (Draft, error) {
	mime := audio.MimeType
	if mime == "" {
		mime = defaultMimeType
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: Prompt},
				{InlineData: &geminiBlob{
					MimeType: mime,
					Data:     base64.StdEncoding.EncodeToString(audio.Data),
				}},
			},
		}},
	})
	if err != nil {
		return Draft{}, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Draft{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return Draft{}, &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	// CheckResponse decodes Google's JSON error envelope for non-2xx replies.
	if err := googleapi.CheckResponse(resp); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return Draft{}, &Error{Kind: KindAPI, Err: fmt.Errorf("status %d: %w", apiErr.Code, err)}
		}
		return Draft{}, &Error{Kind: KindAPI, Err: err}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Draft{}, &Error{Kind: KindNetwork, Err: fmt.Errorf("read response: %w", err)}
	}

	text, err := responseText(raw)
	if err != nil {
		return Draft{}, err
	}

	slog.DebugContext(ctx, "Gemini response received",
		"component", "extract",
		"mode", mode,
		"audio_bytes", len(audio.Data),
		"duration_ms", time.Since(start).Milliseconds())

	return ParseDraft(text, mode)
}

func responseText(raw []byte) (string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &Error{Kind: KindAPI, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(resp.Candidates) == 0 {
		return "", newError(KindAPI, "invalid response: no candidates")
	}
	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return "", newError(KindAPI, "invalid response: empty content")
	}
	return parts[0].Text, nil
}
