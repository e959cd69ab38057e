package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is the Graph API error envelope.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("instagram API error %d (%s, code %d): %s", e.StatusCode, e.Type, e.Code, e.Message)
}

type ContainerStatusCode string

const (
	StatusInProgress ContainerStatusCode = "IN_PROGRESS"
	StatusFinished   ContainerStatusCode = "FINISHED"
	StatusError      ContainerStatusCode = "ERROR"
	StatusExpired    ContainerStatusCode = "EXPIRED"
	StatusPublished  ContainerStatusCode = "PUBLISHED"
)

type ContainerStatus struct {
	ID      string              `json:"id"`
	Code    ContainerStatusCode `json:"status_code"`
	Message string              `json:"status"`
}

type RefreshedToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Client talks to the Instagram Graph API. The access token always travels
// as the access_token parameter, never as a header.
type Client struct {
	graphURL   string
	refreshURL string
	httpClient *http.Client
}

func NewClient(graphURL, refreshURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		graphURL:   strings.TrimSuffix(graphURL, "/"),
		refreshURL: strings.TrimSuffix(refreshURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) CreateImageContainer(ctx context.Context, igUserID, token, imageURL, caption string) (string, error) {
	form := url.Values{}
	form.Set("image_url", imageURL)
	if caption != "" {
		form.Set("caption", caption)
	}
	return c.createContainer(ctx, igUserID, token, form)
}

func (c *Client) CreateCarouselItem(ctx context.Context, igUserID, token, imageURL string) (string, error) {
	form := url.Values{}
	form.Set("image_url", imageURL)
	form.Set("is_carousel_item", "true")
	return c.createContainer(ctx, igUserID, token, form)
}

// CreateCarouselContainer creates the parent container. Children order is
// the order the carousel is shown in.
func (c *Client) CreateCarouselContainer(ctx context.Context, igUserID, token string, children []string, caption string) (string, error) {
	form := url.Values{}
	form.Set("media_type", "CAROUSEL")
	form.Set("children", strings.Join(children, ","))
	if caption != "" {
		form.Set("caption", caption)
	}
	return c.createContainer(ctx, igUserID, token, form)
}

func (c *Client) createContainer(ctx context.Context, igUserID, token string, form url.Values) (string, error) {
	form.Set("access_token", token)

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.graphURL+"/"+url.PathEscape(igUserID)+"/media", form, &resp); err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create container: empty id in response")
	}
	return resp.ID, nil
}

func (c *Client) ContainerStatus(ctx context.Context, containerID, token string) (*ContainerStatus, error) {
	query := url.Values{}
	query.Set("fields", "status_code,status")
	query.Set("access_token", token)

	var status ContainerStatus
	endpoint := c.graphURL + "/" + url.PathEscape(containerID) + "?" + query.Encode()
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &status); err != nil {
		return nil, fmt.Errorf("container status: %w", err)
	}
	return &status, nil
}

func (c *Client) Publish(ctx context.Context, igUserID, token, creationID string) (string, error) {
	form := url.Values{}
	form.Set("creation_id", creationID)
	form.Set("access_token", token)

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.graphURL+"/"+url.PathEscape(igUserID)+"/media_publish", form, &resp); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("publish: empty id in response")
	}
	return resp.ID, nil
}

// RefreshToken exchanges a long-lived token for a fresh one.
func (c *Client) RefreshToken(ctx context.Context, token string) (*RefreshedToken, error) {
	query := url.Values{}
	query.Set("grant_type", "ig_refresh_token")
	query.Set("access_token", token)

	var refreshed RefreshedToken
	if err := c.do(ctx, http.MethodGet, c.refreshURL+"/refresh_access_token?"+query.Encode(), nil, &refreshed); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if refreshed.AccessToken == "" {
		return nil, fmt.Errorf("refresh token: empty access_token in response")
	}
	return &refreshed, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Error != nil {
			envelope.Error.StatusCode = resp.StatusCode
			return envelope.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data)), Type: "http", Code: resp.StatusCode}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}
