package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"clientportal/config"
	"clientportal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Typed upstream failures. Sync decides retry/abort behavior from these.
var (
	// ErrUpstreamUnavailable is retryable; cached leads keep serving reads.
	ErrUpstreamUnavailable = errors.New("call tracking provider unavailable")
	// ErrUpstreamAuth is fatal for the tenant until re-authorized.
	ErrUpstreamAuth = errors.New("call tracking provider rejected credentials")
	// ErrBudgetExceeded stops the current sync tick.
	ErrBudgetExceeded = errors.New("call tracking request budget exceeded")
)

const activityPageSize = 100

// ProviderActivity is one record as the provider reports it.
type ProviderActivity struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"` // call, sms, form, voicemail
	Direction     string    `json:"direction"`
	CallerName    string    `json:"caller_name"`
	CallerNumber  string    `json:"caller_number"`
	CallerEmail   string    `json:"caller_email"`
	Source        string    `json:"source"`
	SourceKey     string    `json:"source_key"`
	Region        string    `json:"region"`
	StartedAt     time.Time `json:"started_at"`
	DurationSec   int       `json:"duration_sec"`
	Transcript    string    `json:"transcript"`
	RecordingURL  string    `json:"recording_url"`
	TranscriptURL string    `json:"transcript_url"`
	Message       string    `json:"message"`
	ContactID     string    `json:"contact_id"`
}

// ActivityPage is one page of provider records.
type ActivityPage struct {
	Activities []ProviderActivity `json:"activities"`
	Page       int                `json:"page"`
	TotalPages int                `json:"total_pages"`
}

// ActivitySource abstracts the provider so the sync service can be tested
// against a fake.
type ActivitySource interface {
	FetchActivities(ctx context.Context, accountID string, since time.Time, page int) (*ActivityPage, error)
}

// CallTrackingClient talks to the provider's REST API. The HTTP client is
// built from an oauth2 token source so expired access tokens refresh
// transparently; refresh failures surface as ErrUpstreamAuth.
type CallTrackingClient struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Entry
}

// NewCallTrackingClient builds a client for one tenant from its decrypted
// refresh token.
func NewCallTrackingClient(refreshToken string) *CallTrackingClient {
	conf := &oauth2.Config{
		ClientID:     config.AppConfig.Tracking.ClientID,
		ClientSecret: config.AppConfig.Tracking.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: config.AppConfig.Tracking.TokenURL},
	}
	token := &oauth2.Token{RefreshToken: refreshToken}
	httpClient := conf.Client(context.Background(), token)
	httpClient.Timeout = 30 * time.Second

	return &CallTrackingClient{
		baseURL: config.AppConfig.Tracking.APIURL,
		http:    httpClient,
		logger:  logrus.WithField("component", "calltracking"),
	}
}

// NewTenantActivitySource is the default source factory used by the sync
// service: decrypt the tenant's stored refresh token and build a client.
func NewTenantActivitySource(user *models.User) (ActivitySource, error) {
	if user.TrackingAccountID == "" || user.TrackingRefreshToken == "" {
		return nil, ErrUpstreamAuth
	}
	refreshToken, err := Decrypt(user.TrackingRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt tracking token: %w", err)
	}
	return NewCallTrackingClient(refreshToken), nil
}

func (ct *CallTrackingClient) FetchActivities(ctx context.Context, accountID string, since time.Time, page int) (*ActivityPage, error) {
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/activities", ct.baseURL, url.PathEscape(accountID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("per_page", fmt.Sprintf("%d", activityPageSize))
	req.URL.RawQuery = q.Encode()

	resp, err := ct.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Token refresh failures come back wrapped as URL errors.
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, ErrUpstreamAuth
		}
		ct.logger.WithError(err).Warn("provider request failed")
		return nil, ErrUpstreamUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUpstreamAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrBudgetExceeded
	case resp.StatusCode >= 500:
		return nil, ErrUpstreamUnavailable
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var result ActivityPage
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	if result.TotalPages < 1 {
		result.TotalPages = 1
	}
	return &result, nil
}
