package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/partwheel/garsync/internal/models"
	"github.com/partwheel/garsync/internal/shared"
)

func bitrixConfig(webhookURL string) shared.BitrixConfig {
	return shared.BitrixConfig{
		WebhookURL: webhookURL,
		CategoryID: 14,
		RateLimit:  1000,
	}
}

func sampleFields() models.DealFields {
	return models.DealFields{
		Title: "ABCP Registration: Daily driver",
		Fields: map[string]string{
			"UF_CRM_DEAL_GARAGE_ID":  "42",
			"UF_CRM_DEAL_GARAGE_VIN": "WVW123",
		},
	}
}

func TestBitrixService(t *testing.T) {
	ctx := context.Background()
	logger := shared.NewLogger(io.Discard)

	t.Run("MissingWebhook", func(t *testing.T) {
		svc := NewBitrixService(shared.BitrixConfig{}, logger)
		_, err := svc.CreateDeal(ctx, sampleFields())
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected missing credentials error, got %v", err)
		}
	})

	t.Run("CreateDeal", func(t *testing.T) {
		var captured map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "crm.deal.add") {
				t.Errorf("unexpected method path %s", r.URL.Path)
			}
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
			w.Write([]byte(`{"result": 1001}`))
		}))
		defer server.Close()

		svc := NewBitrixService(bitrixConfig(server.URL+"/rest/1/token"), logger)

		dealID, err := svc.CreateDeal(ctx, sampleFields())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dealID != 1001 {
			t.Errorf("expected deal id 1001, got %d", dealID)
		}

		fields, ok := captured["fields"].(map[string]any)
		if !ok {
			t.Fatalf("request missing fields payload: %v", captured)
		}
		if fields["TITLE"] != "ABCP Registration: Daily driver" {
			t.Errorf("unexpected title %v", fields["TITLE"])
		}
		if fields["CATEGORY_ID"] != float64(14) {
			t.Errorf("expected category 14, got %v", fields["CATEGORY_ID"])
		}
		if fields["UF_CRM_DEAL_GARAGE_VIN"] != "WVW123" {
			t.Errorf("user fields missing: %v", fields)
		}

		params, ok := captured["params"].(map[string]any)
		if !ok || params["REGISTER_SONET_EVENT"] != "N" {
			t.Errorf("expected REGISTER_SONET_EVENT=N, got %v", captured["params"])
		}
	})

	t.Run("CreateDealStringResult", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"result": "1002"}`))
		}))
		defer server.Close()

		svc := NewBitrixService(bitrixConfig(server.URL+"/rest/1/token"), logger)

		dealID, err := svc.CreateDeal(ctx, sampleFields())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dealID != 1002 {
			t.Errorf("expected deal id 1002, got %d", dealID)
		}
	})

	t.Run("UpdateDeal", func(t *testing.T) {
		var captured map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "crm.deal.update") {
				t.Errorf("unexpected method path %s", r.URL.Path)
			}
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
			w.Write([]byte(`{"result": true}`))
		}))
		defer server.Close()

		svc := NewBitrixService(bitrixConfig(server.URL+"/rest/1/token"), logger)

		if err := svc.UpdateDeal(ctx, 1001, sampleFields()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if captured["id"] != float64(1001) {
			t.Errorf("expected deal id in request, got %v", captured["id"])
		}
		fields, _ := captured["fields"].(map[string]any)
		if _, ok := fields["TITLE"]; ok {
			t.Error("updates must not overwrite the deal title")
		}
	})

	t.Run("UpdateDealNoFieldsIsNoop", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected for an empty update")
		}))
		defer server.Close()

		svc := NewBitrixService(bitrixConfig(server.URL+"/rest/1/token"), logger)

		if err := svc.UpdateDeal(ctx, 1001, models.DealFields{Title: "only title"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("ErrorClassification", func(t *testing.T) {
		tests := []struct {
			name string
			body string
			want error
		}{
			{"QueryLimit", `{"error": "QUERY_LIMIT_EXCEEDED", "error_description": "Too many requests"}`, shared.ErrTransientAPI},
			{"ExpiredToken", `{"error": "expired_token", "error_description": "The access token has expired"}`, shared.ErrAuthFailed},
			{"AccessDenied", `{"error": "ACCESS_DENIED", "error_description": "REST is blocked"}`, shared.ErrAuthFailed},
			{"BadField", `{"error": "INVALID_ARG_VALUE", "error_description": "Field not found"}`, shared.ErrPermanentAPI},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Write([]byte(tt.body))
				}))
				defer server.Close()

				svc := NewBitrixService(bitrixConfig(server.URL+"/rest/1/token"), logger)
				_, err := svc.CreateDeal(ctx, sampleFields())
				if !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}
	})

	t.Run("HTTPStatusClassification", func(t *testing.T) {
		tests := []struct {
			name   string
			status int
			want   error
		}{
			{"Unauthorized", http.StatusUnauthorized, shared.ErrAuthFailed},
			{"TooManyRequests", http.StatusTooManyRequests, shared.ErrTransientAPI},
			{"BadGateway", http.StatusBadGateway, shared.ErrTransientAPI},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
				}))
				defer server.Close()

				svc := NewBitrixService(bitrixConfig(server.URL+"/rest/1/token"), logger)
				_, err := svc.CreateDeal(ctx, sampleFields())
				if !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}
	})
}

func TestMaskWebhook(t *testing.T) {
	masked := maskWebhook("https://portal.bitrix24.ru/rest/17/abc123secret/")
	if strings.Contains(masked, "abc123secret") {
		t.Errorf("token leaked: %s", masked)
	}
	if !strings.Contains(masked, "/rest/17/") {
		t.Errorf("user segment should survive: %s", masked)
	}
}
