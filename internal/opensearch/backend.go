package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Backend is the remote search service.
type Backend interface {
	FetchResults(ctx context.Context, q Query) ([]ResultItem, error)
	FetchCount(ctx context.Context, q Query) (int, error)
	FetchLabel(ctx context.Context, boardID, tracker string) (string, error)
	FetchDetail(ctx context.Context, magnetKey, token string) (DetailRecord, error)
}

// Client talks to the backend over HTTP. Calls are never retried.
type Client struct {
	cfg        BackendConfig
	httpClient *http.Client
}

func NewClient(cfg BackendConfig) *Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.timeoutDur, Transport: tr},
	}
}

type searchRequest struct {
	Query   string `json:"query"`
	Offset  int    `json:"offset"`
	OrderBy string `json:"order_by"`
	Token   string `json:"token"`
}

func (c *Client) searchBody(q Query) searchRequest {
	return searchRequest{Query: q.Text, Offset: q.Offset, OrderBy: q.OrderBy, Token: c.cfg.Token}
}

func (c *Client) FetchResults(ctx context.Context, q Query) ([]ResultItem, error) {
	var resp struct {
		Data []ResultItem `json:"data"`
	}
	if err := c.postJSON(ctx, "search", c.cfg.SearchPost, c.searchBody(q), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) FetchCount(ctx context.Context, q Query) (int, error) {
	var resp struct {
		Size *int `json:"size"`
	}
	if err := c.postJSON(ctx, "count", c.cfg.SearchCount, c.searchBody(q), &resp); err != nil {
		return 0, err
	}
	if resp.Size == nil {
		return 0, &BackendError{Op: "count", URL: c.cfg.SearchCount, Err: fmt.Errorf("response has no size")}
	}
	return *resp.Size, nil
}

func (c *Client) FetchLabel(ctx context.Context, boardID, tracker string) (string, error) {
	endpoint := c.cfg.Board + "/" + url.PathEscape(boardID)
	params := url.Values{"tracker": {tracker}, "token": {c.cfg.Token}}
	var resp struct {
		BoardLabel *string `json:"board_label"`
	}
	if err := c.getJSON(ctx, "label", endpoint, params, &resp); err != nil {
		return "", err
	}
	if resp.BoardLabel == nil {
		return "", &BackendError{Op: "label", URL: endpoint, Err: fmt.Errorf("response has no board_label")}
	}
	return *resp.BoardLabel, nil
}

func (c *Client) FetchDetail(ctx context.Context, magnetKey, token string) (DetailRecord, error) {
	endpoint := c.cfg.Magnet + "/" + url.PathEscape(magnetKey)
	var resp struct {
		Data *DetailRecord `json:"data"`
	}
	if err := c.getJSON(ctx, "detail", endpoint, url.Values{"token": {token}}, &resp); err != nil {
		return DetailRecord{}, err
	}
	if resp.Data == nil {
		return DetailRecord{}, &BackendError{Op: "detail", URL: endpoint, Err: fmt.Errorf("response has no data")}
	}
	return *resp.Data, nil
}

func (c *Client) postJSON(ctx context.Context, op, endpoint string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return &BackendError{Op: op, URL: endpoint, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return &BackendError{Op: op, URL: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op, endpoint, out)
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, params url.Values, out any) error {
	u := endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &BackendError{Op: op, URL: endpoint, Err: err}
	}
	return c.do(req, op, endpoint, out)
}

// do executes req and decodes a 2xx JSON body into out. endpoint is the URL
// without the query string so the token never ends up in errors or logs.
func (c *Client) do(req *http.Request, op, endpoint string, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &BackendError{Op: op, URL: endpoint, Err: stripURL(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &BackendError{
			Op:         op,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(snippet))),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &BackendError{Op: op, URL: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// stripURL drops the *url.Error wrapper, whose message repeats the full
// request URL including the token.
func stripURL(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return ue.Err
	}
	return err
}
