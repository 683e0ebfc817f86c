// Package facebook wraps the Graph API calls used by estatepost: the OAuth
// code exchange, page discovery, page publishing and permission revocation.
package facebook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	fb "github.com/huandu/facebook/v2"
)

// Graph API defaults.
const (
	DefaultVersion = "v18.0"
	DefaultTimeout = 30 * time.Second

	// DefaultTokenLifetime applies when the exchange response omits expires_in.
	DefaultTokenLifetime = 5184000 * time.Second

	// Scopes requested in the OAuth dialog.
	Scopes = "pages_manage_posts,pages_read_engagement"

	dialogBase = "https://www.facebook.com/"
)

var (
	// ErrMissingAppCredentials is returned by OAuth calls when the app id or
	// secret is not configured.
	ErrMissingAppCredentials = errors.New("facebook: app id and secret are required")

	// ErrMissingToken is returned when a response carries no access token.
	ErrMissingToken = errors.New("facebook: no access token in response")

	// ErrMissingPostID is returned when a publish response carries no id.
	ErrMissingPostID = errors.New("facebook: no post id in response")
)

// Token is a user access token with its absolute expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Page is a Facebook Page the user can manage.
type Page struct {
	ID          string `facebook:"id" json:"id"`
	Name        string `facebook:"name" json:"name"`
	AccessToken string `facebook:"access_token" json:"access_token"`
}

// PhotoPost identifies a published photo.
type PhotoPost struct {
	ID     string `facebook:"id"`
	PostID string `facebook:"post_id"`
}

// FeedPost identifies a published feed post.
type FeedPost struct {
	ID          string `facebook:"id"`
	PostID      string `facebook:"post_id"`
	CreatedTime string `facebook:"created_time"`
}

type tokenResponse struct {
	AccessToken string `facebook:"access_token"`
	ExpiresIn   int64  `facebook:"expires_in"`
}

// Client calls the Graph API through huandu/facebook sessions.
type Client struct {
	app         *fb.App
	redirectURI string
	version     string
	httpClient  *http.Client
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every Graph call.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithVersion overrides the Graph API version.
func WithVersion(v string) Option {
	return func(cl *Client) {
		if v != "" {
			cl.version = v
		}
	}
}

// NewClient creates a Graph client. appID and appSecret may be empty when
// only page publishing with an existing page token is needed.
func NewClient(appID, appSecret, redirectURI string, opts ...Option) *Client {
	c := &Client{
		app:         fb.New(appID, appSecret),
		redirectURI: redirectURI,
		version:     DefaultVersion,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) session(ctx context.Context, token string) *fb.Session {
	s := c.app.Session(token)
	s.HttpClient = c.httpClient
	s.Version = c.version
	return s.WithContext(ctx)
}

func (c *Client) hasAppCredentials() bool {
	return c.app.AppId != "" && c.app.AppSecret != ""
}

// LoginURL returns the OAuth dialog URL for the given state.
func (c *Client) LoginURL(state string) string {
	v := url.Values{}
	v.Set("client_id", c.app.AppId)
	v.Set("redirect_uri", c.redirectURI)
	v.Set("state", state)
	v.Set("scope", Scopes)
	return dialogBase + c.version + "/dialog/oauth?" + v.Encode()
}

// ExchangeCode trades an OAuth code for a short-lived token and then for a
// long-lived one.
func (c *Client) ExchangeCode(ctx context.Context, code string) (Token, error) {
	if !c.hasAppCredentials() {
		return Token{}, ErrMissingAppCredentials
	}

	short, err := c.accessToken(ctx, fb.Params{
		"client_id":     c.app.AppId,
		"client_secret": c.app.AppSecret,
		"redirect_uri":  c.redirectURI,
		"code":          code,
	})
	if err != nil {
		return Token{}, fmt.Errorf("exchange code: %w", err)
	}

	long, err := c.accessToken(ctx, fb.Params{
		"grant_type":        "fb_exchange_token",
		"client_id":         c.app.AppId,
		"client_secret":     c.app.AppSecret,
		"fb_exchange_token": short.AccessToken,
	})
	if err != nil {
		return Token{}, fmt.Errorf("exchange long-lived token: %w", err)
	}

	lifetime := DefaultTokenLifetime
	if long.ExpiresIn > 0 {
		lifetime = time.Duration(long.ExpiresIn) * time.Second
	}
	return Token{AccessToken: long.AccessToken, ExpiresAt: c.now().Add(lifetime)}, nil
}

func (c *Client) accessToken(ctx context.Context, params fb.Params) (tokenResponse, error) {
	res, err := c.session(ctx, "").Get("/oauth/access_token", params)
	if err != nil {
		return tokenResponse{}, err
	}
	var tok tokenResponse
	if err := res.Decode(&tok); err != nil {
		return tokenResponse{}, fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return tokenResponse{}, ErrMissingToken
	}
	return tok, nil
}

// Pages lists the pages the user token can manage.
func (c *Client) Pages(ctx context.Context, userToken string) ([]Page, error) {
	res, err := c.session(ctx, userToken).Get("/me/accounts", fb.Params{
		"fields": "id,name,access_token",
	})
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	pages := []Page{}
	if res.Get("data") == nil {
		return pages, nil
	}
	if err := res.DecodeField("data", &pages); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}
	return pages, nil
}

// PublishPhoto uploads an image with a caption to a page.
func (c *Client) PublishPhoto(ctx context.Context, pageID, pageToken, caption, filename string, image []byte) (PhotoPost, error) {
	res, err := c.session(ctx, pageToken).Post("/"+pageID+"/photos", fb.Params{
		"source":  fb.Data(filename, bytes.NewReader(image)),
		"caption": caption,
	})
	if err != nil {
		return PhotoPost{}, fmt.Errorf("publish photo: %w", err)
	}
	var post PhotoPost
	if err := res.Decode(&post); err != nil {
		return PhotoPost{}, fmt.Errorf("decode photo post: %w", err)
	}
	if post.ID == "" {
		return PhotoPost{}, ErrMissingPostID
	}
	return post, nil
}

// PublishFeed creates a text post on a page feed, optionally with a link.
func (c *Client) PublishFeed(ctx context.Context, pageID, pageToken, message, link string) (FeedPost, error) {
	params := fb.Params{
		"message":   message,
		"published": true,
		"fields":    "id,post_id,created_time",
	}
	if link != "" {
		params["link"] = link
	}
	res, err := c.session(ctx, pageToken).Post("/"+pageID+"/feed", params)
	if err != nil {
		return FeedPost{}, fmt.Errorf("publish feed post: %w", err)
	}
	var post FeedPost
	if err := res.Decode(&post); err != nil {
		return FeedPost{}, fmt.Errorf("decode feed post: %w", err)
	}
	if post.ID == "" {
		return FeedPost{}, ErrMissingPostID
	}
	if post.PostID == "" {
		post.PostID = post.ID
	}
	return post, nil
}

// RevokePermissions revokes every permission granted by the user token.
func (c *Client) RevokePermissions(ctx context.Context, userToken string) error {
	if _, err := c.session(ctx, userToken).Delete("/me/permissions", fb.Params{}); err != nil {
		return fmt.Errorf("revoke permissions: %w", err)
	}
	return nil
}

// ErrorMessage extracts the Graph error message from err, falling back to
// err's text.
func ErrorMessage(err error) string {
	var fbErr *fb.Error
	if errors.As(err, &fbErr) && fbErr.Message != "" {
		return fbErr.Message
	}
	return err.Error()
}
