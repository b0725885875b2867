package zalo

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const defaultBaseURL = "https://graph.zalo.me/v2.0"

// Profile is the normalized identity returned by the Zalo Open API.
type Profile struct {
	ID        string
	Name      string
	AvatarURL string
}

// APIError is a rejection reported by the Zalo API itself, as opposed to a
// transport failure reaching it.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zalo api error %d: %s", e.Code, e.Message)
}

type Client struct {
	appID      string
	appSecret  string
	baseURL    string
	httpClient *http.Client
}

func NewClient(appID, appSecret string) *Client {
	return NewClientWithHTTP(appID, appSecret, defaultBaseURL, &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		},
	})
}

func NewClientWithHTTP(appID, appSecret, baseURL string, httpClient *http.Client) *Client {
	return &Client{appID: appID, appSecret: appSecret, baseURL: baseURL, httpClient: httpClient}
}

type profileResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// UserProfile fetches the profile behind a mini-app access token. The
// appsecret_proof header has been mandatory on this endpoint since 2024.
func (c *Client) UserProfile(ctx context.Context, accessToken string) (Profile, error) {
	url := c.baseURL + "/me?fields=id,name,picture"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("build zalo request: %w", err)
	}
	req.Header.Set("access_token", accessToken)
	req.Header.Set("appsecret_proof", c.appSecretProof(accessToken))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("call zalo api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Profile{}, fmt.Errorf("read zalo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("zalo api status %d", resp.StatusCode)
	}

	var decoded profileResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Profile{}, fmt.Errorf("decode zalo response: %w", err)
	}
	if decoded.Error != 0 {
		return Profile{}, &APIError{Code: decoded.Error, Message: decoded.Message}
	}
	if decoded.ID == "" {
		return Profile{}, &APIError{Code: -1, Message: "profile has no id"}
	}
	return Profile{
		ID:        decoded.ID,
		Name:      decoded.Name,
		AvatarURL: decoded.Picture.Data.URL,
	}, nil
}

// ValidateAccessToken reports whether the token resolves to a profile. A
// rejection by the API yields (false, nil); failure to reach the API is
// returned as an error so callers can surface it as an external-service
// problem instead of an invalid credential.
func (c *Client) ValidateAccessToken(ctx context.Context, accessToken string) (bool, error) {
	_, err := c.UserProfile(ctx, accessToken)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) appSecretProof(accessToken string) string {
	mac := hmac.New(sha256.New, []byte(c.appSecret))
	mac.Write([]byte(accessToken))
	return hex.EncodeToString(mac.Sum(nil))
}
