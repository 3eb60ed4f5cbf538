package payhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/parcelbay/reconbox/internal/integrations/gateway"
	"github.com/pkg/errors"
)

// Client ходит в order-status API платёжного шлюза.
type Client struct {
	baseURL    string
	merchantID string
	apiKey     string
	httpc      *http.Client
}

func New(baseURL, merchantID, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9200"
	}
	return &Client{
		baseURL:    baseURL,
		merchantID: merchantID,
		apiKey:     apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) FetchPaymentStatus(ctx context.Context, gatewayOrderRef string) (gateway.OrderStatus, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return gateway.OrderStatus{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/orders/" + url.PathEscape(gatewayOrderRef) + "/status"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return gateway.OrderStatus{}, errors.Wrap(err, "new request")
	}
	req.SetBasicAuth(c.merchantID, c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return gateway.OrderStatus{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return gateway.OrderStatus{}, fmt.Errorf("gateway api http %d", resp.StatusCode)
	}

	var out gateway.OrderStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return gateway.OrderStatus{}, errors.Wrap(err, "decode")
	}
	return out, nil
}
