package withings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"w2wcli/internal/config"
	"w2wcli/internal/errors"
)

const (
	defaultAuthURL    = "https://account.withings.com/oauth2_user/authorize2"
	defaultTokenURL   = "https://wbsapi.withings.net/v2/oauth2"
	defaultMeasureURL = "https://wbsapi.withings.net/measure"

	// Refresh slightly early so a token never expires mid-request.
	expiryWindow = 30 * time.Second
)

// Tokens is the persisted OAuth token set. The file layout matches the
// original token store (epoch-seconds expiry, flat JSON).
type Tokens struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresAt    float64 `json:"expires_at"`
	Scope        string  `json:"scope"`
	UserID       int64   `json:"userid"`
}

// Expired reports whether the access token is expired or about to expire.
func (t Tokens) Expired(now time.Time) bool {
	return float64(now.Unix()) >= t.ExpiresAt-expiryWindow.Seconds()
}

// Client talks to the Withings OAuth and measure endpoints.
type Client struct {
	cfg        config.WithingsConfig
	tokenPath  string
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter

	// Endpoint URLs, overridable in tests.
	authURL    string
	tokenURL   string
	measureURL string
}

// NewClient creates a Withings client. Tokens are persisted at tokenPath.
func NewClient(cfg config.WithingsConfig, tokenPath string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageRate := cfg.PageRate
	if pageRate <= 0 {
		pageRate = 2
	}
	return &Client{
		cfg:        cfg,
		tokenPath:  tokenPath,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(pageRate), 1),
		authURL:    defaultAuthURL,
		tokenURL:   defaultTokenURL,
		measureURL: defaultMeasureURL,
	}
}

// oauthConfig builds the x/oauth2 config. Withings expects the scope list
// comma-separated in a single parameter, so the scopes collapse to one entry.
func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  c.cfg.RedirectURI,
		Scopes:       []string{strings.Join(c.cfg.Scopes, ",")},
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.authURL,
			TokenURL: c.tokenURL,
		},
	}
}

// AuthCodeURL returns the browser URL for the authorization step.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauthConfig().AuthCodeURL(state)
}

// tokenEnvelope is the nonstandard Withings token response.
type tokenEnvelope struct {
	Status int       `json:"status"`
	Error  string    `json:"error"`
	Body   tokenBody `json:"body"`
}

type tokenBody struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	UserID       int64  `json:"userid"`
}

// requestToken POSTs to the token endpoint and unwraps the envelope.
func (c *Client) requestToken(ctx context.Context, form url.Values) (*Tokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.NewNetworkError("failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewNetworkError("token endpoint request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewNetworkError(fmt.Sprintf("token endpoint HTTP %d", resp.StatusCode), nil)
	}

	var envelope tokenEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, errors.NewNetworkError("failed to decode token response", err)
	}
	if envelope.Status != 0 {
		return nil, errors.NewAuthError(fmt.Sprintf("token request failed with status %d", envelope.Status), nil).
			WithContext("api_error", envelope.Error)
	}
	if envelope.Body.AccessToken == "" {
		return nil, errors.NewAuthError("token response contained no access token", nil)
	}

	tokens := &Tokens{
		AccessToken:  envelope.Body.AccessToken,
		RefreshToken: envelope.Body.RefreshToken,
		ExpiresAt:    float64(time.Now().Unix() + envelope.Body.ExpiresIn),
		Scope:        envelope.Body.Scope,
		UserID:       envelope.Body.UserID,
	}
	return tokens, nil
}

// ExchangeCode exchanges an authorization code for tokens and persists them.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Tokens, error) {
	form := url.Values{
		"action":        {"requesttoken"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.cfg.RedirectURI},
	}
	tokens, err := c.requestToken(ctx, form)
	if err != nil {
		return nil, err
	}
	if err := c.SaveTokens(tokens); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "exchanged authorization code for tokens",
		slog.Int64("userid", tokens.UserID))
	return tokens, nil
}

// RefreshTokens obtains a fresh access token and persists the result.
func (c *Client) RefreshTokens(ctx context.Context, tokens *Tokens) (*Tokens, error) {
	form := url.Values{
		"action":        {"requesttoken"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {tokens.RefreshToken},
	}
	fresh, err := c.requestToken(ctx, form)
	if err != nil {
		return nil, err
	}
	// The endpoint may omit fields on refresh; carry the old values forward.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tokens.RefreshToken
	}
	if fresh.Scope == "" {
		fresh.Scope = tokens.Scope
	}
	if fresh.UserID == 0 {
		fresh.UserID = tokens.UserID
	}
	if err := c.SaveTokens(fresh); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "refreshed access token")
	return fresh, nil
}

// ValidAccessToken loads stored tokens, refreshing them when expired.
func (c *Client) ValidAccessToken(ctx context.Context) (string, error) {
	tokens, err := c.LoadTokens()
	if err != nil {
		return "", err
	}
	if tokens == nil {
		return "", errors.NewAuthError("no stored tokens; run the authorize command first", nil)
	}
	if tokens.Expired(time.Now()) {
		tokens, err = c.RefreshTokens(ctx, tokens)
		if err != nil {
			return "", err
		}
	}
	return tokens.AccessToken, nil
}

// AuthorizeInteractive runs the full authorization-code flow: it prints the
// authorization URL, waits for the redirect on the local callback server and
// exchanges the received code for tokens.
func (c *Client) AuthorizeInteractive(ctx context.Context, timeout time.Duration) (*Tokens, error) {
	if !c.cfg.HasCredentials() {
		return nil, errors.NewConfigError("withings client_id and client_secret are not configured", nil)
	}

	state := uuid.NewString()
	authURL := c.AuthCodeURL(state)

	fmt.Println("Open this URL in a browser to authorize:")
	fmt.Println(authURL)

	code, err := c.waitForCode(ctx, state, timeout)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "received authorization code")

	return c.ExchangeCode(ctx, code)
}

// waitForCode serves the redirect URI until the authorization code arrives
// or the timeout elapses.
func (c *Client) waitForCode(ctx context.Context, state string, timeout time.Duration) (string, error) {
	redirect, err := url.Parse(c.cfg.RedirectURI)
	if err != nil {
		return "", errors.NewConfigError("invalid redirect URI", err)
	}
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	codeCh := make(chan string, 1)
	router := chi.NewRouter()
	router.Get(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "State mismatch.", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "No authorization code found.", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "Authorization successful. You can close this window.")
		select {
		case codeCh <- code:
		default:
		}
	})

	server := &http.Server{Addr: redirect.Host, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	var code string
	var waitErr error
	select {
	case code = <-codeCh:
	case <-time.After(timeout):
		waitErr = errors.NewAuthError("did not receive authorization code in time", nil)
	case <-gctx.Done():
		waitErr = errors.NewNetworkError("callback server failed", gctx.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	if err := g.Wait(); err != nil && waitErr == nil {
		return "", errors.NewNetworkError("callback server failed", err)
	}
	if waitErr != nil {
		return "", waitErr
	}
	return code, nil
}

// SaveTokens writes the token file with owner-only permissions.
func (c *Client) SaveTokens(tokens *Tokens) error {
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return errors.NewStorageError("failed to encode tokens", err)
	}
	if err := os.WriteFile(c.tokenPath, data, 0o600); err != nil {
		return errors.NewStorageError("failed to write token file", err).
			WithContext("path", c.tokenPath)
	}
	return nil
}

// LoadTokens reads the token file. A missing file yields (nil, nil).
func (c *Client) LoadTokens() (*Tokens, error) {
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStorageError("failed to read token file", err).
			WithContext("path", c.tokenPath)
	}
	var tokens Tokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, errors.NewStorageError("failed to decode token file", err).
			WithContext("path", c.tokenPath)
	}
	return &tokens, nil
}
