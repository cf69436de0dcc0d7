package analysis

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"fraud_scoring/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	requestTimeout = 30 * time.Second
)

// OpenAIProvider generates the fraud and AML analyses through a chat
// completion API. Both requests run in parallel.
type OpenAIProvider struct {
	apiKey     string
	fraudModel string
	amlModel   string
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
}

func NewOpenAIProvider(apiKey, fraudModel, amlModel string, logger *slog.Logger) *OpenAIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIProvider{
		apiKey:     apiKey,
		fraudModel: fraudModel,
		amlModel:   amlModel,
		baseURL:    defaultBaseURL,
		client:     &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

func (p *OpenAIProvider) Available() bool {
	return p.apiKey != ""
}

func (p *OpenAIProvider) Analyze(ctx context.Context, tx *domain.TransactionFeatures, probability float64, level domain.RiskLevel, factors []domain.AttributionFactor) (*Result, error) {
	if !p.Available() {
		return nil, nil
	}

	var (
		wg        sync.WaitGroup
		fraudText string
		amlText   string
		fraudErr  error
		amlErr    error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		fraudText, fraudErr = p.complete(ctx, p.fraudModel,
			"You are a fraud analysis expert for mobile banking. Analyze transactions briefly and precisely.",
			p.fraudPrompt(tx, probability, level, factors), 500)
	}()
	go func() {
		defer wg.Done()
		amlText, amlErr = p.complete(ctx, p.amlModel,
			"You are an AML (Anti-Money Laundering) expert. Identify money laundering patterns.",
			p.amlPrompt(tx, level), 600)
	}()
	wg.Wait()

	if fraudErr != nil {
		return nil, fmt.Errorf("fraud analysis failed: %w", fraudErr)
	}
	if amlErr != nil {
		return nil, fmt.Errorf("aml analysis failed: %w", amlErr)
	}

	analysis, recommendation := splitRecommendation(fraudText)

	return &Result{
		FraudAnalysis:  analysis,
		AMLAnalysis:    amlText,
		Recommendation: recommendation,
		Fingerprint:    Fingerprint(tx.Amount, tx.Hour, probability, level, analysis, amlText),
	}, nil
}

func (p *OpenAIProvider) fraudPrompt(tx *domain.TransactionFeatures, probability float64, level domain.RiskLevel, factors []domain.AttributionFactor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following transaction:\n\n")
	fmt.Fprintf(&b, "Transaction data:\n")
	fmt.Fprintf(&b, "- Amount: %.2f\n", tx.Amount)
	fmt.Fprintf(&b, "- Time: %d:00, day of week: %d\n", tx.Hour, tx.DayOfWeek)
	fmt.Fprintf(&b, "- Logins last 7 days: %s\n", optionalIntString(tx.LoginsLast7Days))
	fmt.Fprintf(&b, "- Logins last 30 days: %s\n", optionalIntString(tx.LoginsLast30Days))
	fmt.Fprintf(&b, "- Device changes this month: %s\n", optionalIntString(tx.MonthlyPhoneModelChanges))
	fmt.Fprintf(&b, "- OS changes this month: %s\n\n", optionalIntString(tx.MonthlyOSChanges))
	fmt.Fprintf(&b, "ML model results:\n")
	fmt.Fprintf(&b, "- Fraud probability: %.1f%%\n", probability*100)
	fmt.Fprintf(&b, "- Risk level: %s\n\n", level)
	fmt.Fprintf(&b, "Top risk factors:\n")
	for i, f := range factors {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "- %s: %.3f\n", f.Feature, f.Impact)
	}
	fmt.Fprintf(&b, "\nProvide:\n")
	fmt.Fprintf(&b, "1. **Summary** (2-3 sentences): why does this transaction have this risk level?\n")
	fmt.Fprintf(&b, "2. **Recommendation** (1-2 sentences): what should the analyst do?\n")
	return b.String()
}

func (p *OpenAIProvider) amlPrompt(tx *domain.TransactionFeatures, level domain.RiskLevel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Check the transaction for money laundering indicators:\n\n")
	fmt.Fprintf(&b, "- Amount: %.2f\n", tx.Amount)
	fmt.Fprintf(&b, "- Time: %d:00, day of week: %d\n", tx.Hour, tx.DayOfWeek)
	fmt.Fprintf(&b, "- Direction: %s\n", tx.Direction)
	fmt.Fprintf(&b, "- Logins last 7 days: %s\n", optionalIntString(tx.LoginsLast7Days))
	fmt.Fprintf(&b, "- Logins last 30 days: %s\n", optionalIntString(tx.LoginsLast30Days))
	fmt.Fprintf(&b, "- ML risk level: %s\n\n", level)
	fmt.Fprintf(&b, "Provide:\n")
	fmt.Fprintf(&b, "1. AML risk score (LOW/MEDIUM/HIGH/CRITICAL)\n")
	fmt.Fprintf(&b, "2. Suspicious indicators (2-3 bullet points)\n")
	fmt.Fprintf(&b, "3. Follow-up actions\n")
	return b.String()
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

func (p *OpenAIProvider) complete(ctx context.Context, model, system, user string, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion API returned %d: %s", resp.StatusCode, payload)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion API returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// splitRecommendation separates the recommendation section from the fraud
// analysis text.
func splitRecommendation(text string) (analysis, recommendation string) {
	parts := strings.SplitN(text, "**Recommendation", 2)
	analysis = strings.TrimSpace(strings.ReplaceAll(parts[0], "**Summary**", ""))
	if len(parts) > 1 {
		recommendation = strings.TrimSpace(strings.TrimLeft(parts[1], ":*"))
	}
	return analysis, recommendation
}

// Fingerprint is a short opaque digest of the analysis inputs, used by
// callers to detect stale or duplicated narratives.
func Fingerprint(amount float64, hour int, probability float64, level domain.RiskLevel, fraudAnalysis, amlAnalysis string) string {
	input := fmt.Sprintf("%v_%v_%v_%v_%v_%v", amount, hour, probability, level, fraudAnalysis, amlAnalysis)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:16]
}

func optionalIntString(v *int) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d", *v)
}
