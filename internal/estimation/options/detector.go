// internal/estimation/options/detector.go

// Package options flags premium trim lines and packages in a vehicle's text
// and estimates their value uplift. Detection never fails an estimation: any
// error degrades to the rule-based result, or to no options at all.
package options

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"carprice-estimator/internal/common/config"
	"carprice-estimator/internal/common/logger"
	"carprice-estimator/internal/estimation/model"
)

const (
	// ruleConfidence is attached when only the keyword table fired.
	ruleConfidence = 0.7
	// ruleOptionConfidence is the per-option confidence of a table hit.
	ruleOptionConfidence = 0.8
)

// premiumMarker is one known premium trim/package: a brand allowlist (or
// wildcard) and the keyword spellings that identify it.
type premiumMarker struct {
	name        string
	brands      []string // "*" matches any brand
	valueImpact float64
	keywords    []string
}

var premiumMarkers = []premiumMarker{
	// German premium lines
	{"S-Line", []string{"AUDI"}, 0.08, []string{"s line", "sline", "s-line"}},
	{"RS", []string{"AUDI"}, 0.25, []string{"rs", "rs3", "rs4", "rs5", "rs6", "rs7"}},
	{"AMG", []string{"MERCEDES", "MERCEDES-BENZ"}, 0.20, []string{"amg", "mercedes-amg"}},
	{"M-Sport", []string{"BMW"}, 0.10, []string{"m sport", "m-sport", "msport"}},
	{"M Performance", []string{"BMW"}, 0.25, []string{"m3", "m4", "m5", "m6", "m8", "m performance"}},

	// Volume-brand sport lines
	{"GT-Line", []string{"KIA"}, 0.06, []string{"gt line", "gt-line", "gtline"}},
	{"R-Line", []string{"VOLKSWAGEN"}, 0.07, []string{"r line", "r-line", "rline"}},
	{"ST-Line", []string{"FORD"}, 0.08, []string{"st line", "st-line", "stline"}},

	// Brand-agnostic packages
	{"Executive", []string{"*"}, 0.05, []string{"executive", "luxury", "premium"}},
	{"Sport Package", []string{"*"}, 0.06, []string{"sport package", "sport pack", "pack sport"}},
	{"Technology Package", []string{"*"}, 0.04, []string{"tech pack", "technology", "tech package"}},

	// Specific model variants
	{"GTI", []string{"VOLKSWAGEN"}, 0.15, []string{"gti", "golf gti"}},
	{"Type R", []string{"HONDA"}, 0.20, []string{"type r", "type-r", "civic type r"}},
	{"Cooper S", []string{"MINI"}, 0.12, []string{"cooper s", "john cooper works", "jcw"}},
}

// aiResponseSchema validates the model's structured output before anything
// from it is merged.
const aiResponseSchema = `{
	"type": "object",
	"properties": {
		"options": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"valueImpact": {"type": "number"},
					"confidence": {"type": "number"}
				},
				"required": ["name", "valueImpact"]
			}
		},
		"searchKeywords": {"type": "array", "items": {"type": "string"}},
		"confidence": {"type": "number"}
	},
	"required": ["options"]
}`

type Detector struct {
	config config.OptionsConfig
	client *http.Client
	logger logger.Logger
	schema *gojsonschema.Schema
}

func NewDetector(cfg config.OptionsConfig, log logger.Logger) *Detector {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(aiResponseSchema))
	if err != nil {
		// The schema is a compile-time constant; failing here is a build bug.
		panic(fmt.Sprintf("options: invalid AI response schema: %v", err))
	}
	return &Detector{
		config: cfg,
		client: &http.Client{},
		logger: log.With(map[string]interface{}{
			"component": "option-detector",
		}),
		schema: schema,
	}
}

// Detect runs the rule table and, when an API key is configured, the AI pass
// on the combined free text of a vehicle.
func (d *Detector) Detect(ctx context.Context, carText, brand string) model.Detection {
	text := strings.ToLower(carText)

	detection := d.detectRuleBased(text, brand)
	detection.Confidence = ruleConfidence

	if d.config.AIAPIKey != "" && len(text) > 10 {
		aiResult, err := d.detectWithAI(ctx, text, brand)
		if err != nil {
			d.logger.WithError(err).Warn("AI detection failed, using rule-based only", map[string]interface{}{
				"brand": brand,
			})
		} else {
			detection.Options = append(detection.Options, aiResult.Options...)
			detection.TotalValueImpact += aiResult.TotalValueImpact
			detection.EnhancedKeywords = aiResult.EnhancedKeywords
			if aiResult.Confidence > 0 {
				detection.Confidence = aiResult.Confidence
			}
		}
	}

	return detection
}

func (d *Detector) detectRuleBased(text, brand string) model.Detection {
	var detection model.Detection
	brandUpper := strings.ToUpper(brand)

	for _, marker := range premiumMarkers {
		if !brandMatches(marker.brands, brandUpper) {
			continue
		}
		for _, kw := range marker.keywords {
			if strings.Contains(text, kw) {
				detection.Options = append(detection.Options, model.DetectedOption{
					Name:        marker.name,
					ValueImpact: marker.valueImpact,
					Confidence:  ruleOptionConfidence,
					Source:      "rule-based",
				})
				detection.TotalValueImpact += marker.valueImpact
				break
			}
		}
	}
	return detection
}

func brandMatches(allowed []string, brand string) bool {
	for _, b := range allowed {
		if b == "*" || strings.Contains(brand, b) {
			return true
		}
	}
	return false
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type aiPayload struct {
	Options []struct {
		Name        string  `json:"name"`
		ValueImpact float64 `json:"valueImpact"`
		Confidence  float64 `json:"confidence"`
	} `json:"options"`
	SearchKeywords []string `json:"searchKeywords"`
	Confidence     float64  `json:"confidence"`
}

func (d *Detector) detectWithAI(ctx context.Context, text, brand string) (model.Detection, error) {
	var out model.Detection

	timeout := time.Duration(d.config.Timeout) * time.Millisecond
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, _ := json.Marshal(chatRequest{
		Model: d.config.AIModel,
		Messages: []chatMessage{
			{Role: "user", Content: buildPrompt(text, brand)},
		},
		MaxTokens:   500,
		Temperature: 0.3,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.AIBaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.config.AIAPIKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("ai api status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return out, fmt.Errorf("decode ai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return out, fmt.Errorf("ai response had no choices")
	}

	jsonBlob, ok := extractJSONObject(parsed.Choices[0].Message.Content)
	if !ok {
		return out, fmt.Errorf("ai response contained no JSON object")
	}

	result, err := d.schema.Validate(gojsonschema.NewStringLoader(jsonBlob))
	if err != nil {
		return out, fmt.Errorf("validate ai response: %w", err)
	}
	if !result.Valid() {
		return out, fmt.Errorf("ai response failed schema validation: %v", result.Errors())
	}

	var payload aiPayload
	if err := json.Unmarshal([]byte(jsonBlob), &payload); err != nil {
		return out, fmt.Errorf("decode ai payload: %w", err)
	}

	for _, opt := range payload.Options {
		out.Options = append(out.Options, model.DetectedOption{
			Name:        opt.Name,
			ValueImpact: opt.ValueImpact,
			Confidence:  opt.Confidence,
			Source:      "ai",
		})
		out.TotalValueImpact += opt.ValueImpact
	}
	out.EnhancedKeywords = payload.SearchKeywords
	out.Confidence = payload.Confidence
	return out, nil
}

func buildPrompt(text, brand string) string {
	return fmt.Sprintf(`Analyze this car description and identify premium options/packages:

Brand: %s
Description: %s

Identify premium trim levels, performance packages, luxury options, technology packages and special editions. For each option found, estimate its market value impact as a fraction (0.05 = 5%% price increase). Also suggest search keywords that would help find similar cars on French marketplace sites.

Return JSON only, in this format:
{"options": [{"name": "option name", "valueImpact": 0.05, "confidence": 0.9}], "searchKeywords": ["keyword1"], "confidence": 0.8}`, brand, text)
}

// extractJSONObject pulls the first top-level {...} block out of a model
// answer that may wrap it in prose or code fences.
func extractJSONObject(content string) (string, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

// EnhancedSearchTerms generates marketplace search phrases for a vehicle and
// its detected options, including de-hyphenated spellings.
func EnhancedSearchTerms(brand, modelName string, detection model.Detection) []string {
	base := strings.TrimSpace(brand + " " + modelName)
	terms := []string{base}

	for _, opt := range detection.Options {
		terms = append(terms, base+" "+opt.Name)
		if strings.Contains(opt.Name, "-") {
			terms = append(terms, base+" "+strings.ReplaceAll(opt.Name, "-", " "))
			terms = append(terms, base+" "+strings.ReplaceAll(opt.Name, "-", ""))
		}
	}
	return terms
}

// Adjusted is the option-aware price view shown next to the raw estimate.
type Adjusted struct {
	OriginalPrice    int     `json:"originalPrice"`
	AdjustedPrice    int     `json:"adjustedPrice"`
	TotalValueImpact float64 `json:"totalValueImpact"`
	AdjustmentAmount int     `json:"adjustmentAmount"`
	Confidence       float64 `json:"confidence"`
}

// AdjustedPrice applies the detected options' total uplift to a base price.
func AdjustedPrice(basePrice int, detection model.Detection) Adjusted {
	adjusted := int(float64(basePrice)*(1+detection.TotalValueImpact) + 0.5)
	return Adjusted{
		OriginalPrice:    basePrice,
		AdjustedPrice:    adjusted,
		TotalValueImpact: detection.TotalValueImpact,
		AdjustmentAmount: adjusted - basePrice,
		Confidence:       detection.Confidence,
	}
}
