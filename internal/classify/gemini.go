package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// DefaultGeminiEndpoint is the production Gemini API base URL.
const DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com"

// theftPrompt instructs the model to analyze a batch of security camera
// frames and answer in a strict JSON shape.
const theftPrompt = `Analyze these images from a backpack security camera.

Look for:
1. Hands reaching toward or into the backpack
2. Suspicious proximity to the bag
3. Attempts to open zippers or access contents
4. Any behavior that suggests theft or unauthorized access

For each image, determine if there's suspicious activity.
Then provide an overall assessment.

Respond in this exact JSON format:
{
    "suspicious": true/false,
    "confidence": <number between 0-100>,
    "explanation": "<detailed explanation>"
}`

// GeminiClassifier calls the Gemini generateContent API over HTTPS.
type GeminiClassifier struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// GeminiOption customizes a GeminiClassifier.
type GeminiOption func(*GeminiClassifier)

// WithEndpoint overrides the API base URL. Used by tests.
func WithEndpoint(endpoint string) GeminiOption {
	return func(g *GeminiClassifier) { g.endpoint = strings.TrimRight(endpoint, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) GeminiOption {
	return func(g *GeminiClassifier) { g.client = client }
}

// NewGeminiClassifier creates a classifier backed by the Gemini API.
func NewGeminiClassifier(apiKey, model string, opts ...GeminiOption) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.5-pro"
	}

	g := &GeminiClassifier{
		apiKey:   apiKey,
		model:    model,
		endpoint: DefaultGeminiEndpoint,
		client:   &http.Client{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// geminiRequest mirrors the generateContent request body.
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// geminiResponse mirrors the subset of the response body we consume.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Classify sends the frame batch to Gemini and parses the verdict.
func (g *GeminiClassifier) Classify(ctx context.Context, frames []Frame) (*Result, error) {
	parts := []geminiPart{{Text: theftPrompt}}
	for _, f := range frames {
		if len(f.Image) == 0 {
			continue
		}
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: "image/jpeg",
				Data:     base64.StdEncoding.EncodeToString(f.Image),
			},
		})
	}

	// Text-only fallback when no frame carried an image: describe the batch.
	if len(parts) == 1 {
		parts = append(parts, geminiPart{Text: describeFrames(frames)})
	}

	body, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Parts: parts}}})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.endpoint, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("gemini error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini status %d", resp.StatusCode)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	text := parsed.Candidates[0].Content.Parts[0].Text
	result := parseVerdict(text)
	result.Raw = text
	result.Latency = time.Since(start)
	result.TokensUsed = parsed.UsageMetadata.TotalTokenCount

	return result, nil
}

// Close is a no-op; the classifier holds no persistent resources.
func (g *GeminiClassifier) Close() error {
	return nil
}

func describeFrames(frames []Frame) string {
	var b strings.Builder
	b.WriteString("No images available. Frame metadata:\n")
	for _, f := range frames {
		fmt.Fprintf(&b, "frame %d: %d hand(s), detection confidence %.2f\n",
			f.Seq, f.HandCount, f.Confidence)
	}
	return b.String()
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// parseVerdict extracts a structured verdict from model output. The model is
// asked for strict JSON but sometimes wraps it in prose or markdown fences;
// fall back to scanning for labeled lines.
func parseVerdict(text string) *Result {
	if m := jsonObjectPattern.FindString(text); m != "" {
		var v struct {
			Suspicious  bool        `json:"suspicious"`
			Confidence  json.Number `json:"confidence"`
			Explanation string      `json:"explanation"`
		}
		if err := json.Unmarshal([]byte(m), &v); err == nil {
			conf, _ := v.Confidence.Float64()
			explanation := v.Explanation
			if explanation == "" {
				explanation = text
			}
			return &Result{
				ThreatDetected: v.Suspicious,
				Confidence:     conf,
				Explanation:    explanation,
			}
		}
	}

	// Line-by-line fallback.
	result := &Result{Explanation: "No analysis available"}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "SUSPICIOUS:"):
			result.ThreatDetected = strings.Contains(strings.ToUpper(line), "YES")
		case strings.HasPrefix(line, "CONFIDENCE:"):
			fmt.Sscanf(strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:")), "%f", &result.Confidence)
		case strings.HasPrefix(line, "EXPLANATION:"):
			result.Explanation = strings.TrimSpace(strings.TrimPrefix(line, "EXPLANATION:"))
		}
	}
	return result
}
