// Bitrix24 webhook [CRMClient] implementation
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/partwheel/garsync/internal/models"
	"github.com/partwheel/garsync/internal/shared"
	"golang.org/x/time/rate"
)

// BitrixService implements CRMClient against a Bitrix24 inbound webhook URL
// of the form https://portal.bitrix24.ru/rest/<user>/<token>/.
type BitrixService struct {
	webhookURL string
	categoryID int64
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewBitrixService creates a new Bitrix24 client from configuration.
func NewBitrixService(cfg shared.BitrixConfig, logger *log.Logger) *BitrixService {
	webhookURL := cfg.WebhookURL
	if webhookURL != "" && !strings.HasSuffix(webhookURL, "/") {
		webhookURL += "/"
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 2.0
	}

	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &BitrixService{
		webhookURL: webhookURL,
		categoryID: cfg.CategoryID,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     shared.WithLogger(logger, "client", "bitrix"),
	}
}

// CreateDeal creates a deal in the configured category and returns its id.
func (b *BitrixService) CreateDeal(ctx context.Context, fields models.DealFields) (int64, error) {
	payload := map[string]any{
		"TITLE":       fields.Title,
		"CATEGORY_ID": b.categoryID,
	}
	for code, value := range fields.Fields {
		payload[code] = value
	}

	params := map[string]any{
		"fields": payload,
		"params": map[string]string{"REGISTER_SONET_EVENT": "N"},
	}

	var id json.Number
	if err := b.call(ctx, "crm.deal.add", params, &id); err != nil {
		return 0, err
	}

	dealID, err := id.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: unexpected deal id %q", shared.ErrPermanentAPI, id.String())
	}

	b.logger.Info("deal created", "deal_id", dealID)
	return dealID, nil
}

// UpdateDeal overwrites the mapped user fields of an existing deal. The deal
// title is left alone so manual renames in the CRM survive resyncs.
func (b *BitrixService) UpdateDeal(ctx context.Context, dealID int64, fields models.DealFields) error {
	if len(fields.Fields) == 0 {
		return nil
	}

	payload := make(map[string]any, len(fields.Fields))
	for code, value := range fields.Fields {
		payload[code] = value
	}

	params := map[string]any{
		"id":     dealID,
		"fields": payload,
		"params": map[string]string{"REGISTER_SONET_EVENT": "N"},
	}

	if err := b.call(ctx, "crm.deal.update", params, nil); err != nil {
		return err
	}

	b.logger.Info("deal updated", "deal_id", dealID, "fields", len(payload))
	return nil
}

// bitrixEnvelope is the standard REST response wrapper.
type bitrixEnvelope struct {
	Result           json.RawMessage `json:"result"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// call POSTs one REST method and decodes the result envelope into out.
func (b *BitrixService) call(ctx context.Context, method string, params any, out any) error {
	if b.webhookURL == "" {
		return fmt.Errorf("%w: Bitrix24 webhook URL not set", shared.ErrMissingCredentials)
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter interrupted: %v", shared.ErrTransientAPI, err)
	}

	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal %s params: %v", shared.ErrPermanentAPI, method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.webhookURL+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", shared.ErrPermanentAPI, err)
	}
	req.Header.Set("Content-Type", "application/json")

	b.logger.Debug("bitrix call", "method", method, "url", maskWebhook(b.webhookURL)+method)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if isTimeoutOrConnError(err) {
			return fmt.Errorf("%w: %s request failed: %v", shared.ErrTransientAPI, method, err)
		}
		return fmt.Errorf("%w: %s request failed: %v", shared.ErrPermanentAPI, method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read %s response: %v", shared.ErrTransientAPI, method, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: Bitrix24 rejected webhook (status %d)", shared.ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: Bitrix24 status %d on %s", shared.ErrTransientAPI, resp.StatusCode, method)
	}

	var envelope bitrixEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("%w: non-JSON Bitrix24 response (status %d)", shared.ErrPermanentAPI, resp.StatusCode)
	}

	if envelope.Error != "" {
		return classifyBitrixError(method, envelope.Error, envelope.ErrorDescription)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: Bitrix24 status %d on %s", shared.ErrPermanentAPI, resp.StatusCode, method)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("%w: failed to decode %s result: %v", shared.ErrPermanentAPI, method, err)
		}
	}

	return nil
}

// classifyBitrixError maps API error codes onto the shared taxonomy.
func classifyBitrixError(method, code, description string) error {
	switch strings.ToUpper(code) {
	case "QUERY_LIMIT_EXCEEDED", "OPERATION_TIME_LIMIT":
		return fmt.Errorf("%w: %s: %s (%s)", shared.ErrTransientAPI, method, code, description)
	case "EXPIRED_TOKEN", "INVALID_TOKEN", "INVALID_CREDENTIALS", "ACCESS_DENIED":
		return fmt.Errorf("%w: %s: %s (%s)", shared.ErrAuthFailed, method, code, description)
	default:
		return fmt.Errorf("%w: %s: %s (%s)", shared.ErrPermanentAPI, method, code, description)
	}
}

// maskWebhook hides the secret token segment of a webhook URL
// (…/rest/<user>/<token>/ → …/rest/<user>/********/).
func maskWebhook(webhookURL string) string {
	head, rest, found := strings.Cut(webhookURL, "/rest/")
	if !found {
		return webhookURL
	}
	parts := strings.Split(rest, "/")
	if len(parts) >= 2 {
		parts[1] = "********"
	}
	return head + "/rest/" + strings.Join(parts, "/")
}
