package facebook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/estatepost/internal/workflow"
)

// rewriteTransport sends every request to the test server, keeping the path.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	out.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

func newGraphServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, path string)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler(w, r, strings.TrimPrefix(r.URL.Path, "/"+DefaultVersion))
	}))
	t.Cleanup(srv.Close)

	target, _ := url.Parse(srv.URL)
	return NewClient("app-id", "app-secret", "https://estatepost.test/facebook/callback",
		WithHTTPClient(&http.Client{Transport: rewriteTransport{target: target}, Timeout: 5 * time.Second}))
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

func graphError(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusBadRequest)
	writeJSON(w, map[string]any{"error": map[string]any{"message": msg, "type": "OAuthException", "code": 190}})
}

func TestLoginURL(t *testing.T) {
	t.Parallel()

	c := NewClient("app-id", "secret", "https://estatepost.test/cb")
	u, err := url.Parse(c.LoginURL("agent-7"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Host != "www.facebook.com" || u.Path != "/v18.0/dialog/oauth" {
		t.Errorf("Unexpected dialog URL %s", u)
	}
	q := u.Query()
	if q.Get("state") != "agent-7" || q.Get("client_id") != "app-id" {
		t.Errorf("Unexpected query %v", q)
	}
	if q.Get("scope") != "pages_manage_posts,pages_read_engagement" {
		t.Errorf("Unexpected scope %q", q.Get("scope"))
	}
	if q.Get("redirect_uri") != "https://estatepost.test/cb" {
		t.Errorf("Unexpected redirect %q", q.Get("redirect_uri"))
	}
}

func TestExchangeCode(t *testing.T) {
	t.Parallel()

	c := newGraphServer(t, func(w http.ResponseWriter, r *http.Request, path string) {
		if path != "/oauth/access_token" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		switch {
		case q.Get("code") == "good-code-123":
			writeJSON(w, map[string]any{"access_token": "short-token", "token_type": "bearer"})
		case q.Get("grant_type") == "fb_exchange_token" && q.Get("fb_exchange_token") == "short-token":
			writeJSON(w, map[string]any{"access_token": "long-token", "expires_in": 3600})
		default:
			graphError(w, "Invalid verification code format.")
		}
	})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	tok, err := c.ExchangeCode(context.Background(), "good-code-123")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if tok.AccessToken != "long-token" {
		t.Errorf("Expected long-lived token, got %q", tok.AccessToken)
	}
	if !tok.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("Unexpected expiry %v", tok.ExpiresAt)
	}

	if _, err := c.ExchangeCode(context.Background(), "bad-code-000"); err == nil {
		t.Error("Expected error for rejected code")
	} else if ErrorMessage(err) != "Invalid verification code format." {
		t.Errorf("Unexpected error message %q", ErrorMessage(err))
	}
}

func TestExchangeCodeDefaultLifetime(t *testing.T) {
	t.Parallel()

	c := newGraphServer(t, func(w http.ResponseWriter, r *http.Request, path string) {
		writeJSON(w, map[string]any{"access_token": "tok"})
	})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	tok, err := c.ExchangeCode(context.Background(), "good-code-123")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if !tok.ExpiresAt.Equal(now.Add(DefaultTokenLifetime)) {
		t.Errorf("Expected 60 day default, got %v", tok.ExpiresAt.Sub(now))
	}
}

func TestExchangeCodeRequiresAppCredentials(t *testing.T) {
	t.Parallel()

	c := NewClient("", "", "")
	if _, err := c.ExchangeCode(context.Background(), "good-code-123"); err != ErrMissingAppCredentials {
		t.Errorf("Expected ErrMissingAppCredentials, got %v", err)
	}
}

func TestPages(t *testing.T) {
	t.Parallel()

	c := newGraphServer(t, func(w http.ResponseWriter, r *http.Request, path string) {
		if path != "/me/accounts" || r.URL.Query().Get("access_token") != "user-token" {
			graphError(w, "bad request")
			return
		}
		writeJSON(w, map[string]any{"data": []map[string]any{
			{"id": "1001", "name": "Sunrise Realty", "access_token": "page-token-1"},
			{"id": "1002", "name": "Harbor Homes", "access_token": "page-token-2"},
		}})
	})

	pages, err := c.Pages(context.Background(), "user-token")
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 2 || pages[1].Name != "Harbor Homes" || pages[0].AccessToken != "page-token-1" {
		t.Errorf("Unexpected pages %+v", pages)
	}
}

func TestPublishFeed(t *testing.T) {
	t.Parallel()

	var gotMessage, gotLink string
	c := newGraphServer(t, func(w http.ResponseWriter, r *http.Request, path string) {
		if r.Method != http.MethodPost || path != "/1001/feed" {
			graphError(w, "unexpected call")
			return
		}
		gotMessage = r.FormValue("message")
		gotLink = r.FormValue("link")
		writeJSON(w, map[string]any{"id": "1001_55"})
	})

	post, err := c.PublishFeed(context.Background(), "1001", "page-token", "Open house Sunday", "https://listing.test/1")
	if err != nil {
		t.Fatalf("PublishFeed: %v", err)
	}
	if post.ID != "1001_55" || post.PostID != "1001_55" {
		t.Errorf("Unexpected post %+v", post)
	}
	if gotMessage != "Open house Sunday" || gotLink != "https://listing.test/1" {
		t.Errorf("Unexpected form message=%q link=%q", gotMessage, gotLink)
	}
}

func TestRevokePermissions(t *testing.T) {
	t.Parallel()

	var method, path string
	c := newGraphServer(t, func(w http.ResponseWriter, r *http.Request, p string) {
		method, path = r.Method, p
		writeJSON(w, map[string]any{"success": true})
	})

	if err := c.RevokePermissions(context.Background(), "user-token"); err != nil {
		t.Fatalf("RevokePermissions: %v", err)
	}
	if method != http.MethodDelete || path != "/me/permissions" {
		t.Errorf("Unexpected call %s %s", method, path)
	}
}

func TestPhotoPublisher(t *testing.T) {
	t.Parallel()

	var gotCaption string
	var gotImage []byte
	c := newGraphServer(t, func(w http.ResponseWriter, r *http.Request, path string) {
		if path != "/1001/photos" {
			graphError(w, "unexpected call")
			return
		}
		gotCaption = r.FormValue("caption")
		f, _, err := r.FormFile("source")
		if err != nil {
			graphError(w, "missing source")
			return
		}
		defer func() { _ = f.Close() }()
		gotImage, _ = io.ReadAll(f)
		writeJSON(w, map[string]any{"id": "photo-9", "post_id": "1001_9"})
	})

	res := NewPhotoPublisher(c, "1001", "page-token").
		Publish(context.Background(), "Cozy 3BR in Austin", "client_image.png", []byte("png-bytes"))

	if res.Status != workflow.PostStatusSuccess || res.Message != MsgPosted || res.PostID != "photo-9" {
		t.Errorf("Unexpected result %+v", res)
	}
	if gotCaption != "Cozy 3BR in Austin" || string(gotImage) != "png-bytes" {
		t.Errorf("Unexpected upload caption=%q image=%q", gotCaption, gotImage)
	}
}

func TestPhotoPublisherGraphError(t *testing.T) {
	t.Parallel()

	c := newGraphServer(t, func(w http.ResponseWriter, r *http.Request, path string) {
		graphError(w, "Error validating access token")
	})

	res := NewPhotoPublisher(c, "1001", "expired").
		Publish(context.Background(), "caption", "img.png", []byte("x"))
	if res.Status != workflow.PostStatusError || res.Message != MsgFailed {
		t.Errorf("Unexpected result %+v", res)
	}
	if res.Details != "Error validating access token" {
		t.Errorf("Unexpected details %q", res.Details)
	}
}

func TestPhotoPublisherMissingCredentials(t *testing.T) {
	t.Parallel()

	res := NewPhotoPublisher(NewClient("", "", ""), "", "").
		Publish(context.Background(), "caption", "img.png", []byte("x"))
	if res.Status != workflow.PostStatusError || res.Message != MsgMissingCredentials {
		t.Errorf("Unexpected result %+v", res)
	}
}
