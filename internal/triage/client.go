package triage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"medilink-server/internal/models"
)

var (
	ErrEmptySymptoms   = errors.New("symptoms were not provided")
	ErrRateLimited     = errors.New("triage rate limit exceeded")
	ErrQuotaExceeded   = errors.New("triage service quota exhausted")
	ErrNotConfigured   = errors.New("triage gateway API key is not configured")
	ErrGatewayResponse = errors.New("triage gateway returned an unusable response")
)

const systemPrompt = `Você é um assistente médico especializado em triagem de sintomas.
Sua função é analisar os sintomas descritos pelo paciente e fornecer:
1. Classificação de urgência: leve, moderado, grave ou emergencia
2. Análise detalhada dos sintomas
3. Recomendações de ação (procurar atendimento imediato, consultar médico em breve, cuidados domiciliares)
4. Na última linha, a especialidade médica indicada no formato "Especialidade: <nome>"

IMPORTANTE: Sempre deixe claro que você não substitui uma consulta médica real.
Forneça informações úteis mas seguras.

Responda em português do Brasil, de forma clara e empática.`

// Result is the outcome of one symptom analysis.
type Result struct {
	Urgency              models.UrgencyClass `json:"urgencyClass"`
	Narrative            string              `json:"narrative"`
	RecommendedSpecialty string              `json:"recommendedSpecialty,omitempty"`
}

// Analyzer classifies free-text symptoms.
type Analyzer interface {
	Analyze(ctx context.Context, symptoms string) (Result, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Client calls an OpenAI-compatible chat completions gateway.
type Client struct {
	httpClient *resty.Client
	url        string
	apiKey     string
	model      string
	logger     *zap.Logger
}

func NewClient(url, apiKey, model string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: httpClient,
		url:        url,
		apiKey:     apiKey,
		model:      model,
		logger:     logger,
	}
}

func (c *Client) Analyze(ctx context.Context, symptoms string) (Result, error) {
	symptoms = strings.TrimSpace(symptoms)
	if symptoms == "" {
		return Result{}, ErrEmptySymptoms
	}
	if c.apiKey == "" {
		return Result{}, ErrNotConfigured
	}

	request := completionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(`Paciente relata os seguintes sintomas: %s

Por favor, forneça:
1. Classificação de urgência (leve/moderado/grave/emergencia)
2. Análise dos sintomas
3. Recomendações específicas
4. Especialidade indicada`, symptoms)},
		},
	}

	c.logger.Info("Calling triage gateway", zap.String("model", c.model), zap.Int("symptoms_len", len(symptoms)))

	var response completionResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(request).
		SetResult(&response).
		Post(c.url)
	if err != nil {
		c.logger.Error("Triage gateway call failed", zap.Error(err))
		return Result{}, fmt.Errorf("call triage gateway: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusTooManyRequests:
		c.logger.Warn("Triage gateway rate limited")
		return Result{}, ErrRateLimited
	case http.StatusPaymentRequired:
		c.logger.Warn("Triage gateway quota exhausted")
		return Result{}, ErrQuotaExceeded
	}
	if resp.IsError() {
		c.logger.Error("Triage gateway returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", truncate(resp.String(), 512)),
		)
		return Result{}, fmt.Errorf("%w: status %d", ErrGatewayResponse, resp.StatusCode())
	}
	if len(response.Choices) == 0 || strings.TrimSpace(response.Choices[0].Message.Content) == "" {
		return Result{}, fmt.Errorf("%w: no choices", ErrGatewayResponse)
	}

	narrative := response.Choices[0].Message.Content
	result := Result{
		Urgency:              Classify(narrative),
		Narrative:            narrative,
		RecommendedSpecialty: ParseSpecialty(narrative),
	}
	c.logger.Info("Triage analysis received", zap.String("urgency", string(result.Urgency)))
	return result, nil
}

// Classify extracts the urgency class from the narrative. Emergency mentions
// win over severe, severe over mild; anything else is moderate.
func Classify(narrative string) models.UrgencyClass {
	text := strings.ToLower(narrative)
	switch {
	case strings.Contains(text, "emergência"), strings.Contains(text, "emergencia"):
		return models.UrgencyEmergency
	case strings.Contains(text, "grave"):
		return models.UrgencySevere
	case strings.Contains(text, "leve"):
		return models.UrgencyMild
	default:
		return models.UrgencyModerate
	}
}

var specialtyLine = regexp.MustCompile(`(?im)^[\s*_#-]*(?:especialidade(?: indicada| recomendada)?|specialty)\s*[*_]*\s*:\s*[*_]*\s*(.+?)[\s*_.]*$`)

// ParseSpecialty returns the specialty named on the narrative's
// "Especialidade:" line, or "" if there is none.
func ParseSpecialty(narrative string) string {
	matches := specialtyLine.FindAllStringSubmatch(narrative, -1)
	if len(matches) == 0 {
		return ""
	}
	return strings.TrimSpace(matches[len(matches)-1][1])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
