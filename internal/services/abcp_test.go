package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/partwheel/garsync/internal/shared"
)

func abcpConfig(baseURL string) shared.ABCPConfig {
	return shared.ABCPConfig{
		BaseURL:   baseURL,
		Login:     "apiuser",
		Password:  "secret",
		RateLimit: 1000,
	}
}

func abcpRange() (time.Time, time.Time) {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)
}

func TestABCPService(t *testing.T) {
	ctx := context.Background()
	logger := shared.NewLogger(io.Discard)

	t.Run("MissingCredentials", func(t *testing.T) {
		svc := NewABCPService(shared.ABCPConfig{BaseURL: "http://localhost"}, logger)
		from, to := abcpRange()
		_, err := svc.ListGarageRecords(ctx, from, to, 0)
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected missing credentials error, got %v", err)
		}
	})

	t.Run("DecodesPerUserPayload", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("userlogin") != "apiuser" {
				t.Errorf("missing userlogin parameter")
			}
			if r.URL.Query().Get("dateUpdatedStart") == "" {
				t.Errorf("missing dateUpdatedStart parameter")
			}
			w.Write([]byte(`{
				"7": [
					{"id": 42, "name": "Daily driver", "vin": "WVW123", "dateUpdated": "2024-03-10 12:00:00"},
					{"id": 43, "userId": 7, "name": "Weekend car", "dateUpdated": "2024-06-01 09:30:00"}
				],
				"9": [
					{"id": 50, "userId": 9, "name": "Van", "dateUpdated": "2024-07-01 08:00:00"}
				]
			}`))
		}))
		defer server.Close()

		svc := NewABCPService(abcpConfig(server.URL), logger)
		from, to := abcpRange()

		records, err := svc.ListGarageRecords(ctx, from, to, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}

		for _, r := range records {
			if r.ID == 42 {
				// userId omitted in the entry, taken from the owner key
				if r.UserID != 7 {
					t.Errorf("expected owner fallback user 7, got %d", r.UserID)
				}
				if len(r.Raw) == 0 {
					t.Error("expected raw JSON to be kept")
				}
			}
		}
	})

	t.Run("UserFilter", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{
				"7": [{"id": 42, "dateUpdated": "2024-03-10 12:00:00"}],
				"9": [{"id": 50, "dateUpdated": "2024-07-01 08:00:00"}]
			}`))
		}))
		defer server.Close()

		svc := NewABCPService(abcpConfig(server.URL), logger)
		from, to := abcpRange()

		records, err := svc.ListGarageRecords(ctx, from, to, 9)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 1 || records[0].ID != 50 {
			t.Errorf("expected only user 9's record, got %v", records)
		}
	})

	t.Run("EmptyInterval", func(t *testing.T) {
		tests := []struct {
			name   string
			status int
			body   string
		}{
			{"NotFoundWithNumericCode", http.StatusNotFound, `{"errorCode": 301, "errorMessage": "Cars not found"}`},
			{"NotFoundWithStringCode", http.StatusNotFound, `{"errorCode": "404", "errorMessage": "Cars not found"}`},
			{"OKWithEnvelope", http.StatusOK, `{"errorCode": 301, "errorMessage": "Cars not found"}`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					w.Write([]byte(tt.body))
				}))
				defer server.Close()

				svc := NewABCPService(abcpConfig(server.URL), logger)
				from, to := abcpRange()

				records, err := svc.ListGarageRecords(ctx, from, to, 0)
				if err != nil {
					t.Fatalf("empty interval must not be an error: %v", err)
				}
				if records != nil {
					t.Errorf("expected nil records, got %v", records)
				}
			})
		}
	})

	t.Run("AuthFailure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		svc := NewABCPService(abcpConfig(server.URL), logger)
		from, to := abcpRange()

		_, err := svc.ListGarageRecords(ctx, from, to, 0)
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected auth failure, got %v", err)
		}
	})

	t.Run("ServerErrorIsTransient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		svc := NewABCPService(abcpConfig(server.URL), logger)
		from, to := abcpRange()

		_, err := svc.ListGarageRecords(ctx, from, to, 0)
		if !errors.Is(err, shared.ErrTransientAPI) {
			t.Errorf("expected transient error, got %v", err)
		}
	})

	t.Run("FallsBackToListSuffix", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/list") {
				// Bare 404 without the empty-interval envelope
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("<html>not here</html>"))
				return
			}
			w.Write([]byte(`{"7": [{"id": 42, "dateUpdated": "2024-03-10 12:00:00"}]}`))
		}))
		defer server.Close()

		svc := NewABCPService(abcpConfig(server.URL+"/garage"), logger)
		from, to := abcpRange()

		records, err := svc.ListGarageRecords(ctx, from, to, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 1 {
			t.Errorf("expected the /list fallback to answer, got %v", records)
		}
	})

	t.Run("AllCandidatesExhausted", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("nope"))
		}))
		defer server.Close()

		svc := NewABCPService(abcpConfig(server.URL), logger)
		from, to := abcpRange()

		_, err := svc.ListGarageRecords(ctx, from, to, 0)
		if !errors.Is(err, shared.ErrPermanentAPI) {
			t.Errorf("expected permanent error after all candidates, got %v", err)
		}
	})
}

func TestCandidateURLs(t *testing.T) {
	got := candidateURLs("https://host/cp/garage/")
	want := []string{"https://host/cp/garage", "https://host/cp/garage/", "https://host/cp/garage/list"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestMaskCredentials(t *testing.T) {
	masked := maskCredentials("https://host/cp/garage?userlogin=apiuser&userpsw=secret&dateUpdatedStart=2024-01-01")
	if strings.Contains(masked, "apiuser") || strings.Contains(masked, "secret") {
		t.Errorf("credentials leaked: %s", masked)
	}
	if !strings.Contains(masked, "dateUpdatedStart=2024-01-01") {
		t.Errorf("non-secret parameters should survive: %s", masked)
	}
}
