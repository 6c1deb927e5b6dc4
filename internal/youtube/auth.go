package youtube

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"
)

// ErrNoToken is returned when no cached OAuth token exists yet
var ErrNoToken = errors.New("no cached YouTube token; run `prayerlog auth` first")

// LoadOAuthConfig reads a client secrets file downloaded from Google Cloud Console
// ("installed" or "web" application). The read-only YouTube scope is always requested.
func LoadOAuthConfig(path string, extraScopes ...string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client secrets: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, append([]string{youtube.YoutubeReadonlyScope}, extraScopes...)...)
	if err != nil {
		return nil, fmt.Errorf("parse client secrets: %w", err)
	}
	return cfg, nil
}

// DefaultTokenPath returns the token cache location under the user's home directory
func DefaultTokenPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "youtube-token.json"
	}
	return filepath.Join(homeDir, ".prayerlog", "token.json")
}

// LoadToken loads a cached token
func LoadToken(path string) (*oauth2.Token, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("open token: %w", err)
	}
	defer file.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(file).Decode(token); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return token, nil
}

// SaveToken writes a token to the cache, creating the directory if needed
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open token: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(token); err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return nil
}

// savingTokenSource persists every token that differs from the last one seen,
// so refreshed access tokens survive restarts
type savingTokenSource struct {
	base   oauth2.TokenSource
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := SaveToken(s.path, token); err != nil {
			s.logger.Warn("failed to save refreshed token", "error", err)
		} else {
			s.logger.Debug("saved refreshed YouTube token", "path", s.path)
		}
	}
	return token, nil
}

// HTTPClient returns an authorized client that refreshes and re-caches the token
func HTTPClient(ctx context.Context, cfg *oauth2.Config, tokenPath string, logger *slog.Logger) (*http.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	token, err := LoadToken(tokenPath)
	if err != nil {
		return nil, err
	}
	if !token.Valid() && token.RefreshToken == "" {
		return nil, fmt.Errorf("cached token expired and has no refresh token: %w", ErrNoToken)
	}

	ts := &savingTokenSource{
		base:   cfg.TokenSource(ctx, token),
		path:   tokenPath,
		logger: logger,
		last:   token.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, ts)), nil
}

// Authorize runs the installed-app flow: a loopback server receives the
// authorization code after the user approves access in the browser.
// openURL is called with the consent URL; it may print it or launch a browser.
func Authorize(ctx context.Context, cfg *oauth2.Config, openURL func(string)) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for redirect: %w", err)
	}

	flowCfg := *cfg
	flowCfg.RedirectURL = fmt.Sprintf("http://%s/", listener.Addr().String())

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		listener.Close()
		return nil, fmt.Errorf("generate state: %w", err)
	}
	state := hex.EncodeToString(stateBytes)

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res result
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		default:
			res.code = q.Get("code")
		}

		fmt.Fprintln(w, "Authorization complete. You can close this window.")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		select {
		case results <- res:
		default:
		}
	})}
	go srv.Serve(listener)
	defer srv.Close()

	openURL(flowCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		token, err := flowCfg.Exchange(ctx, res.code)
		if err != nil {
			return nil, fmt.Errorf("exchange code for token: %w", err)
		}
		return token, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
