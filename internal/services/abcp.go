// ABCP garage endpoint [SourceClient] implementation
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/partwheel/garsync/internal/models"
	"github.com/partwheel/garsync/internal/shared"
	"golang.org/x/time/rate"
)

const defaultABCPBaseURL = "https://abcp61741.public.api.abcp.ru/cp/garage/"

// ABCPService implements SourceClient against the ABCP public garage API.
type ABCPService struct {
	baseURL    string
	login      string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewABCPService creates a new ABCP client from configuration.
func NewABCPService(cfg shared.ABCPConfig, logger *log.Logger) *ABCPService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultABCPBaseURL
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 5.0
	}

	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &ABCPService{
		baseURL:    baseURL,
		login:      cfg.Login,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     shared.WithLogger(logger, "client", "abcp"),
	}
}

// ListGarageRecords fetches all garage records updated within [from, to].
//
// The endpoint answers with {"<userId>": [cars...], ...}. A 404 carrying
// errorCode 301/404 (or a 200 carrying the same envelope) means "no cars in
// interval" and yields a nil slice. userID 0 returns every user's records.
func (s *ABCPService) ListGarageRecords(ctx context.Context, from, to time.Time, userID int64) ([]models.GarageRecord, error) {
	if s.login == "" || s.password == "" {
		return nil, fmt.Errorf("%w: ABCP login/password not set", shared.ErrMissingCredentials)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter interrupted: %v", shared.ErrTransientAPI, err)
	}

	params := url.Values{}
	params.Set("userlogin", s.login)
	params.Set("userpsw", s.password)
	params.Set("dateUpdatedStart", from.Format(shared.APITimeLayout))
	params.Set("dateUpdatedEnd", to.Format(shared.APITimeLayout))

	s.logger.Debug("fetching garage records",
		"from", params.Get("dateUpdatedStart"), "to", params.Get("dateUpdatedEnd"))

	var lastStatus int
	for _, candidate := range candidateURLs(s.baseURL) {
		fullURL := candidate + "?" + params.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create request: %v", shared.ErrPermanentAPI, err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if isTimeoutOrConnError(err) {
				return nil, fmt.Errorf("%w: ABCP request failed: %v", shared.ErrTransientAPI, err)
			}
			return nil, fmt.Errorf("%w: ABCP request failed: %v", shared.ErrPermanentAPI, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read ABCP response: %v", shared.ErrTransientAPI, err)
		}

		s.logger.Debug("ABCP response", "status", resp.StatusCode, "len", len(body), "url", maskCredentials(fullURL))

		switch {
		case resp.StatusCode == http.StatusOK:
			if isEmptyResultEnvelope(body) {
				s.logger.Info("ABCP fetch empty (errorCode envelope)")
				return nil, nil
			}
			records, err := decodeGaragePayload(body, userID)
			if err != nil {
				return nil, err
			}
			s.logger.Info("ABCP fetch ok", "records", len(records))
			return records, nil

		case isEmptyNotFound(resp.StatusCode, body):
			// A 404 with errorCode 301/404 is an empty interval, not an error.
			s.logger.Info("ABCP fetch empty", "status", resp.StatusCode)
			return nil, nil

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: ABCP rejected credentials (status %d)", shared.ErrAuthFailed, resp.StatusCode)

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: ABCP status %d", shared.ErrTransientAPI, resp.StatusCode)

		case resp.StatusCode == http.StatusNotFound ||
			resp.StatusCode == http.StatusMovedPermanently ||
			resp.StatusCode == http.StatusFound:
			// Endpoint spelling mismatch, try the next candidate.
			lastStatus = resp.StatusCode
			s.logger.Warn("ABCP candidate URL rejected", "status", resp.StatusCode, "url", maskCredentials(candidate))

		default:
			return nil, fmt.Errorf("%w: ABCP status %d", shared.ErrPermanentAPI, resp.StatusCode)
		}
	}

	return nil, fmt.Errorf("%w: all ABCP candidate URLs failed (last status %d)", shared.ErrPermanentAPI, lastStatus)
}

// candidateURLs returns endpoint spellings to try in order: the configured
// base, with a trailing slash, and with a /list suffix. Deployed ABCP stands
// are inconsistent about which one answers.
func candidateURLs(base string) []string {
	b := base
	for len(b) > 0 && b[len(b)-1] == '/' {
		b = b[:len(b)-1]
	}
	if b == "" {
		b = defaultABCPBaseURL[:len(defaultABCPBaseURL)-1]
	}
	return []string{b, b + "/", b + "/list"}
}

// errorEnvelope is the ABCP "no data" / error response shape. errorCode is a
// number on some stands and a string on others.
type errorEnvelope struct {
	ErrorCode    any    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (e errorEnvelope) isEmptyCode() bool {
	if e.ErrorCode == nil {
		return false
	}
	code := fmt.Sprint(e.ErrorCode)
	return code == "301" || code == "404"
}

// isEmptyResultEnvelope detects a 200 response that still carries the
// "cars not found" envelope.
func isEmptyResultEnvelope(body []byte) bool {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	return env.isEmptyCode()
}

// isEmptyNotFound detects the 404-with-errorCode "empty interval" answer.
func isEmptyNotFound(status int, body []byte) bool {
	if status != http.StatusNotFound {
		return false
	}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	return env.isEmptyCode() || env.ErrorMessage != ""
}

// decodeGaragePayload flattens the per-user payload into records, keeping
// the raw JSON of each car for the local cache. Records of other users are
// dropped when userID is non-zero.
func decodeGaragePayload(body []byte, userID int64) ([]models.GarageRecord, error) {
	var payload map[string][]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: unexpected ABCP payload: %v", shared.ErrPermanentAPI, err)
	}

	var records []models.GarageRecord
	for owner, cars := range payload {
		ownerID, _ := strconv.ParseInt(owner, 10, 64)
		for _, raw := range cars {
			var record models.GarageRecord
			if err := json.Unmarshal(raw, &record); err != nil {
				return nil, fmt.Errorf("%w: malformed garage entry: %v", shared.ErrPermanentAPI, err)
			}
			record.Raw = raw
			if record.UserID == 0 {
				record.UserID = ownerID
			}
			if userID != 0 && record.UserID != userID {
				continue
			}
			records = append(records, record)
		}
	}

	return records, nil
}

// maskCredentials hides the userlogin/userpsw query values so URLs are safe
// to log.
func maskCredentials(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for _, key := range []string{"userlogin", "userpsw"} {
		if q.Has(key) {
			q.Set(key, "********")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
