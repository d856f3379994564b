package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"

	"travelorch/internal/cache"
	"travelorch/internal/config"
	"travelorch/internal/ratelimit"
)

// ChatRequest is the shape every LLM call takes, mirroring §6's contract.
type ChatRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

const minInputTokenHeadroom = 1000

// clampMaxTokens reduces MaxTokens when the prompt is long enough that the
// model's context would otherwise leave less than minInputTokenHeadroom of
// input headroom. A crude 4-chars-per-token estimate stands in for a real
// tokenizer, matching the teacher's absence of one.
func clampMaxTokens(promptLen, requested, contextWindow int) int {
	estimatedInputTokens := promptLen / 4
	headroom := contextWindow - estimatedInputTokens
	if headroom < minInputTokenHeadroom+requested {
		reduced := headroom - minInputTokenHeadroom
		if reduced < 1 {
			reduced = 1
		}
		if reduced < requested {
			return reduced
		}
	}
	return requested
}

// LLM fronts the fast (Gemini HTTP) and quality (Vertex AI) model tiers
// behind one identical-prompt response cache.
type LLM struct {
	fastAPIKey   string
	fastModel    string
	httpClient   *http.Client
	vertex       *aiplatform.PredictionClient
	vertexModel  string
	projectID    string
	region       string
	limiter      *ratelimit.Registry
	fastRPS      float64
	qualityRPS   float64
	cache        *cache.TTLCache[string]
	log          *zap.SugaredLogger
}

// NewLLM constructs the LLM client. The Vertex AI (quality) client is
// optional: construction failures are logged and the quality tier falls
// back to the fast tier, preserving the teacher's graceful-degradation
// idiom from services.go.
func NewLLM(ctx context.Context, cfg *config.Config, limiter *ratelimit.Registry, log *zap.SugaredLogger) *LLM {
	l := &LLM{
		fastAPIKey: cfg.GeminiAPIKey,
		fastModel:  cfg.GeminiModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		vertexModel: cfg.VertexModel,
		projectID:  cfg.GoogleCloudProjectID,
		region:     cfg.GoogleCloudRegion,
		limiter:    limiter,
		fastRPS:    cfg.LLMFastRPS,
		qualityRPS: cfg.LLMQualityRPS,
		cache:      cache.New[string](cfg.LLMCacheSize, cfg.LLMCacheTTL),
		log:        log,
	}
	if cfg.GoogleCloudProjectID != "" {
		var opts []option.ClientOption
		if cfg.GoogleApplicationCredentials != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GoogleApplicationCredentials))
		}
		client, err := aiplatform.NewPredictionClient(ctx, opts...)
		if err != nil {
			log.Warnw("vertex ai unavailable, quality tier falls back to fast tier", "error", err)
		} else {
			l.vertex = client
		}
	}
	return l
}

// Fast issues a ≤200-output-token structured call (intent classification,
// edit-command parsing).
func (l *LLM) Fast(ctx context.Context, req ChatRequest) (string, error) {
	if req.MaxTokens == 0 || req.MaxTokens > 200 {
		req.MaxTokens = 200
	}
	return l.call(ctx, "fast", req)
}

// Quality issues a ≤3000-output-token generation (itinerary prose,
// explanations).
func (l *LLM) Quality(ctx context.Context, req ChatRequest) (string, error) {
	if req.MaxTokens == 0 || req.MaxTokens > 3000 {
		req.MaxTokens = 3000
	}
	return l.call(ctx, "quality", req)
}

func (l *LLM) call(ctx context.Context, tier string, req ChatRequest) (string, error) {
	req.MaxTokens = clampMaxTokens(len(req.Prompt), req.MaxTokens, 30000)
	key := fmt.Sprintf("%s|%d|%s", tier, req.MaxTokens, req.Prompt)
	if cached, ok := l.cache.Get(key); ok {
		return cached, nil
	}

	var (
		result string
		err    error
	)
	op := func() (string, error) {
		limiterKey, rps := "llm_fast", l.fastRPS
		if tier == "quality" {
			limiterKey, rps = "llm_quality", l.qualityRPS
		}
		if werr := l.limiter.Wait(ctx, limiterKey, rps); werr != nil {
			return "", werr
		}
		if tier == "quality" && l.vertex != nil {
			return l.callVertex(ctx, req)
		}
		return l.callGemini(ctx, req)
	}
	result, err = backoff.Retry(ctx, op, backoff.WithMaxTries(3))
	if err != nil {
		l.log.Warnw("llm call failed after retries", "tier", tier, "error", err)
		return "", err
	}
	l.cache.Put(key, result)
	return result, nil
}

// --- fast tier: Gemini raw HTTP client, adapted from the teacher's gemini.go ---

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (l *LLM) callGemini(ctx context.Context, req ChatRequest) (string, error) {
	if l.fastAPIKey == "" {
		return "", fmt.Errorf("no gemini api key configured")
	}
	body := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", l.fastModel, l.fastAPIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", fmt.Errorf("gemini transient status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", backoff.Permanent(fmt.Errorf("gemini status %d", resp.StatusCode))
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", backoff.Permanent(err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", backoff.Permanent(fmt.Errorf("gemini returned no candidates"))
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

// --- quality tier: Vertex AI PredictionClient, adapted from the teacher's vertex.go ---

func (l *LLM) callVertex(ctx context.Context, req ChatRequest) (string, error) {
	instance, err := structpb.NewStruct(map[string]any{
		"prompt": req.Prompt,
	})
	if err != nil {
		return "", err
	}
	params, err := structpb.NewStruct(map[string]any{
		"temperature":     req.Temperature,
		"maxOutputTokens": req.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", l.projectID, l.region, l.vertexModel)
	predictReq := &aiplatformpb.PredictRequest{
		Endpoint:   endpoint,
		Instances:  []*structpb.Value{structpb.NewStructValue(instance)},
		Parameters: structpb.NewStructValue(params),
	}
	resp, err := l.vertex.Predict(ctx, predictReq)
	if err != nil {
		return "", err
	}
	if len(resp.Predictions) == 0 {
		return "", fmt.Errorf("vertex returned no predictions")
	}
	if s := resp.Predictions[0].GetStructValue(); s != nil {
		if v, ok := s.Fields["content"]; ok {
			return v.GetStringValue(), nil
		}
	}
	return "", fmt.Errorf("vertex prediction missing content field")
}

// Close releases the Vertex AI client, if one was constructed.
func (l *LLM) Close() error {
	if l.vertex != nil {
		return l.vertex.Close()
	}
	return nil
}
