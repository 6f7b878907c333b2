package usage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bnema/agentmon/internal/domain"
	"github.com/bnema/agentmon/internal/ports"
)

const (
	usagePath       = "/wham/usage"
	userAgent       = "agentmon/usage"
	maxResponseSize = 1 << 20
)

var (
	ErrSessionExpired = errors.New("usage session expired")
	ErrEmptyToken     = errors.New("usage access token is empty")
	ErrNoWindows      = errors.New("usage payload has no rate-limit windows")
)

type Options struct {
	BaseURL    string
	SecretRef  string
	HTTPClient *http.Client
	Now        func() time.Time
}

type Fetcher struct {
	secrets    ports.SecretStore
	baseURL    string
	secretRef  string
	httpClient *http.Client
	now        func() time.Time
}

var _ ports.UsageFetcher = (*Fetcher)(nil)

func NewFetcher(secrets ports.SecretStore, opts Options) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Fetcher{
		secrets:    secrets,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		secretRef:  opts.SecretRef,
		httpClient: client,
		now:        now,
	}
}

type tokens struct {
	AccessToken string
	IDToken     string
}

type tokenClaims struct {
	ChatGPTAccountID string `json:"chatgpt_account_id"`
	APIAuth          struct {
		ChatGPTAccountID string `json:"chatgpt_account_id"`
	} `json:"https://api.openai.com/auth"`
}

type usageWindow struct {
	UsedPercent        float64 `json:"used_percent"`
	LimitWindowSeconds int64   `json:"limit_window_seconds"`
	ResetAt            int64   `json:"reset_at"`
}

type usageRateLimit struct {
	PrimaryWindow   *usageWindow `json:"primary_window"`
	SecondaryWindow *usageWindow `json:"secondary_window"`
}

type usageAdditionalRateLimit struct {
	RateLimit *usageRateLimit `json:"rate_limit"`
}

type usagePayload struct {
	PlanType             string                     `json:"plan_type"`
	RateLimit            *usageRateLimit            `json:"rate_limit"`
	AdditionalRateLimits []usageAdditionalRateLimit `json:"additional_rate_limits"`
}

func (f *Fetcher) Fetch(ctx context.Context) (domain.Usage, error) {
	secret, err := f.secrets.Get(ctx, f.secretRef)
	if err != nil {
		return domain.Usage{}, fmt.Errorf("load usage token: %w", err)
	}

	toks, err := parseTokens(secret)
	if err != nil {
		return domain.Usage{}, err
	}

	payload, err := f.fetchPayload(ctx, toks)
	if err != nil {
		return domain.Usage{}, err
	}

	windows := collectWindows(payload)
	if len(windows) == 0 {
		return domain.Usage{}, ErrNoWindows
	}

	return domain.Usage{
		PlanType:   strings.TrimSpace(payload.PlanType),
		Windows:    windows,
		CapturedAt: f.now().UTC(),
	}, nil
}

// parseTokens accepts either a stored OAuth token bundle ({"access_token", "id_token"}) or a
// bare access token.
func parseTokens(secret string) (tokens, error) {
	secret = strings.TrimSpace(secret)
	if gjson.Valid(secret) && gjson.Parse(secret).IsObject() {
		parsed := gjson.GetMany(secret, "access_token", "id_token")
		toks := tokens{
			AccessToken: strings.TrimSpace(parsed[0].String()),
			IDToken:     strings.TrimSpace(parsed[1].String()),
		}
		if toks.AccessToken == "" {
			return tokens{}, ErrEmptyToken
		}
		return toks, nil
	}

	if secret == "" {
		return tokens{}, ErrEmptyToken
	}
	return tokens{AccessToken: secret}, nil
}

func (f *Fetcher) fetchPayload(ctx context.Context, toks tokens) (usagePayload, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+usagePath, nil)
	if err != nil {
		return usagePayload{}, fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+toks.AccessToken)
	request.Header.Set("User-Agent", userAgent)
	if accountID := accountIDFromToken(toks.IDToken); accountID != "" {
		request.Header.Set("ChatGPT-Account-Id", accountID)
	}

	response, err := f.httpClient.Do(request)
	if err != nil {
		return usagePayload{}, fmt.Errorf("perform request: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return usagePayload{}, fmt.Errorf("read response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		if response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden {
			return usagePayload{}, fmt.Errorf("%w: status %d", ErrSessionExpired, response.StatusCode)
		}
		return usagePayload{}, fmt.Errorf("status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload usagePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return usagePayload{}, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

func accountIDFromToken(token string) string {
	claims := parseTokenClaims(token)
	if claims.ChatGPTAccountID != "" {
		return claims.ChatGPTAccountID
	}
	return claims.APIAuth.ChatGPTAccountID
}

func parseTokenClaims(token string) tokenClaims {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return tokenClaims{}
	}

	decoded, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return tokenClaims{}
	}

	var claims tokenClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return tokenClaims{}
	}
	return claims
}

func collectWindows(payload usagePayload) []domain.UsageWindow {
	byLength := make(map[int64]usageWindow)
	add := func(limit *usageRateLimit) {
		if limit == nil {
			return
		}
		for _, window := range []*usageWindow{limit.PrimaryWindow, limit.SecondaryWindow} {
			if window == nil || window.LimitWindowSeconds <= 0 {
				continue
			}
			if existing, ok := byLength[window.LimitWindowSeconds]; ok && existing.UsedPercent >= window.UsedPercent {
				continue
			}
			byLength[window.LimitWindowSeconds] = *window
		}
	}

	add(payload.RateLimit)
	for _, additional := range payload.AdditionalRateLimits {
		add(additional.RateLimit)
	}

	windows := make([]domain.UsageWindow, 0, len(byLength))
	for seconds, window := range byLength {
		var resetsAt time.Time
		if window.ResetAt > 0 {
			resetsAt = time.Unix(window.ResetAt, 0).UTC()
		}
		windows = append(windows, domain.UsageWindow{
			Label:         domain.WindowLabel(seconds),
			UsedPercent:   window.UsedPercent,
			WindowSeconds: seconds,
			ResetsAt:      resetsAt,
		})
	}
	sort.Slice(windows, func(i, j int) bool {
		return windows[i].WindowSeconds < windows[j].WindowSeconds
	})
	return windows
}
