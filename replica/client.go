package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	chathttp "github.com/nanooro/dagnerai/adapters/http"
	"github.com/nanooro/dagnerai/domain"
)

type apiClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
}

func newAPIClient(baseURL, apiKey, apiSecret string) *apiClient {
	return &apiClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) token() (string, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/auth/token", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-API-Secret", c.apiSecret)

	var body struct {
		Token string `json:"token"`
	}
	if err := c.do(req, &body); err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	return body.Token, nil
}

func (c *apiClient) characters() ([]domain.CarouselEntry, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/v1/characters", nil)
	if err != nil {
		return nil, err
	}

	var cards []chathttp.CarouselCard
	if err := c.do(req, &cards); err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	entries := make([]domain.CarouselEntry, len(cards))
	for i, card := range cards {
		entries[i] = card.Entry
	}
	return entries, nil
}

func (c *apiClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// dial opens the chat socket for target, a path like "/ws?character=...".
func (c *apiClient) dial(target, token string) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL + target)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", u.Host+u.Path, err)
	}
	return conn, nil
}
