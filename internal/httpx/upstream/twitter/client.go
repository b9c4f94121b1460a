package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL    = "https://api.twitter.com"
	defaultMaxResults = 100
	defaultTimeout    = 30 * time.Second
)

// ErrUnauthorized is returned on HTTP 401 from a data endpoint
var ErrUnauthorized = errors.New("twitter: access token rejected")

// Client is an X API v2 client for reading mentions and posting replies
type Client struct {
	baseURL    string
	maxResults int
	httpClient *http.Client
}

// ClientOption is a function that configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMaxResults sets the page size for mention listing (5..100)
func WithMaxResults(n int) ClientOption {
	return func(c *Client) {
		if n >= 5 && n <= 100 {
			c.maxResults = n
		}
	}
}

// New creates a new X API client
func New(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		maxResults: defaultMaxResults,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an error response from the X API
type APIError struct {
	StatusCode int    `json:"-"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Type       string `json:"type"`
	Errors     []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Title
	}
	if msg == "" && len(e.Errors) > 0 {
		msg = e.Errors[0].Message
	}
	return fmt.Sprintf("twitter API error: %s (status: %d)", msg, e.StatusCode)
}

// Temporary reports whether retrying later may succeed
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusRequestTimeout
}

// RateLimitError is returned on HTTP 429
type RateLimitError struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func (e *RateLimitError) Error() string {
	if e.ResetAt.IsZero() {
		return "twitter: rate limit exceeded"
	}
	return fmt.Sprintf("twitter: rate limit exceeded, resets at %s", e.ResetAt.UTC().Format(time.RFC3339))
}

// User is a user object from the includes section
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

// Tweet is a post returned by the API
type Tweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MentionsPage is one page of the mention timeline with authors resolved
type MentionsPage struct {
	Tweets   []Tweet
	Authors  map[string]User
	NewestID string
}

type mentionsResponse struct {
	Data     []Tweet `json:"data"`
	Includes struct {
		Users []User `json:"users"`
	} `json:"includes"`
	Meta struct {
		NewestID    string `json:"newest_id"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
}

// ListMentionsInput represents input for listing mentions
type ListMentionsInput struct {
	UserID      string
	AccessToken string
	SinceID     string
}

// ListMentions returns mentions of a user newer than SinceID. A single
// request is made; the page holds up to maxResults items.
func (c *Client) ListMentions(ctx context.Context, in ListMentionsInput) (*MentionsPage, error) {
	endpoint := fmt.Sprintf("%s/2/users/%s/mentions", c.baseURL, url.PathEscape(in.UserID))

	params := url.Values{}
	params.Set("max_results", strconv.Itoa(c.maxResults))
	params.Set("tweet.fields", "created_at,author_id,text")
	params.Set("expansions", "author_id")
	params.Set("user.fields", "username,name,profile_image_url")
	if in.SinceID != "" {
		params.Set("since_id", in.SinceID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+in.AccessToken)

	var resp mentionsResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	page := &MentionsPage{
		Tweets:   resp.Data,
		Authors:  make(map[string]User, len(resp.Includes.Users)),
		NewestID: resp.Meta.NewestID,
	}
	for _, u := range resp.Includes.Users {
		page.Authors[u.ID] = u
	}

	return page, nil
}

// ReplyInput represents input for posting a reply
type ReplyInput struct {
	AccessToken string
	InReplyTo   string
	Text        string
}

type replyRequest struct {
	Text  string `json:"text"`
	Reply struct {
		InReplyToTweetID string `json:"in_reply_to_tweet_id"`
	} `json:"reply"`
}

type replyResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// Reply posts a reply to a tweet and returns the id of the new tweet
func (c *Client) Reply(ctx context.Context, in ReplyInput) (string, error) {
	var body replyRequest
	body.Text = in.Text
	body.Reply.InReplyToTweetID = in.InReplyTo

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+in.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	var resp replyResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}

	return resp.Data.ID, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return parseRateLimit(resp.Header)
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, strings.TrimSpace(string(body)))
	case resp.StatusCode >= 400:
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || (apiErr.Title == "" && apiErr.Detail == "" && len(apiErr.Errors) == 0) {
			apiErr.Detail = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

func parseRateLimit(h http.Header) *RateLimitError {
	e := &RateLimitError{}
	if v, err := strconv.Atoi(h.Get("x-rate-limit-limit")); err == nil {
		e.Limit = v
	}
	if v, err := strconv.Atoi(h.Get("x-rate-limit-remaining")); err == nil {
		e.Remaining = v
	}
	if v, err := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64); err == nil && v > 0 {
		e.ResetAt = time.Unix(v, 0)
	}
	return e
}
