package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

const clientSecrets = `{"installed": {
  "client_id": "id.apps.googleusercontent.com",
  "client_secret": "secret",
  "auth_uri": "https://accounts.google.com/o/oauth2/auth",
  "token_uri": "https://oauth2.googleapis.com/token",
  "redirect_uris": ["http://localhost"]
}}`

func TestLoadOAuthConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client_secret.json")
	if err := os.WriteFile(path, []byte(clientSecrets), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadOAuthConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ClientID != "id.apps.googleusercontent.com" || len(cfg.Scopes) != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	cfg, err = LoadOAuthConfig(path, "https://www.googleapis.com/auth/spreadsheets")
	if err != nil || len(cfg.Scopes) != 2 {
		t.Fatalf("extra scopes not applied: %v %v", cfg, err)
	}

	if _, err := LoadOAuthConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")

	if _, err := LoadToken(path); !errors.Is(err, ErrNoToken) {
		t.Fatalf("want ErrNoToken, got %v", err)
	}

	want := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour).Round(time.Second)}
	if err := SaveToken(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadToken(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken || !got.Expiry.Equal(want.Expiry) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

type staticSource struct{ token *oauth2.Token }

func (s staticSource) Token() (*oauth2.Token, error) { return s.token, nil }

func TestSavingTokenSourcePersistsNewTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	ts := &savingTokenSource{
		base:   staticSource{&oauth2.Token{AccessToken: "fresh"}},
		path:   path,
		logger: testLogger(),
		last:   "stale",
	}

	if _, err := ts.Token(); err != nil {
		t.Fatalf("token: %v", err)
	}
	saved, err := LoadToken(path)
	if err != nil || saved.AccessToken != "fresh" {
		t.Fatalf("saved = %+v, %v", saved, err)
	}

	// unchanged token is not rewritten
	os.Remove(path)
	ts.Token()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("token rewritten without change: %v", err)
	}
}

func TestHTTPClientWithoutToken(t *testing.T) {
	cfg := &oauth2.Config{}
	_, err := HTTPClient(context.Background(), cfg, filepath.Join(t.TempDir(), "token.json"), testLogger())
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("want ErrNoToken, got %v", err)
	}
}

func TestAuthorizeLoopback(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("code") != "the-code" {
			http.Error(w, "bad code", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "access", "refresh_token": "refresh", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer tokenSrv.Close()

	cfg := &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{AuthURL: "https://example.invalid/auth", TokenURL: tokenSrv.URL},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	openURL := func(authURL string) {
		u, err := url.Parse(authURL)
		if err != nil {
			t.Errorf("parse auth url: %v", err)
			return
		}
		q := u.Query()
		redirect := q.Get("redirect_uri") + "?code=the-code&state=" + url.QueryEscape(q.Get("state"))
		go func() {
			if resp, err := http.Get(redirect); err == nil {
				resp.Body.Close()
			}
		}()
	}

	token, err := Authorize(ctx, cfg, openURL)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if token.AccessToken != "access" || token.RefreshToken != "refresh" {
		t.Fatalf("unexpected token: %+v", token)
	}
}
