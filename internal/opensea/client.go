package opensea

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brydisanto/smash-the-wall/internal/config"
	"github.com/brydisanto/smash-the-wall/internal/metrics"
	"go.uber.org/zap"
)

// HTTPError carries the upstream status so callers can tell a rate-limit
// signal (retry once) apart from a plain failure (stop, keep partials).
type HTTPError struct {
	Status      int
	URL         string
	Body        string
	RateLimited bool
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.URL, e.Body)
}

func newHTTPError(resp *http.Response, body []byte) *HTTPError {
	msg := strings.TrimSpace(string(body))
	return &HTTPError{
		Status:      resp.StatusCode,
		URL:         resp.Request.URL.String(),
		Body:        truncate(msg, 240),
		RateLimited: resp.StatusCode == http.StatusTooManyRequests || strings.Contains(strings.ToLower(msg), "throttled"),
	}
}

type Client struct {
	cfg  *config.Config
	log  *zap.Logger
	http *http.Client
}

func NewClient(cfg *config.Config, log *zap.Logger) *Client {
	return &Client{cfg: cfg, log: log, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *Client) makeReq(ctx context.Context, pathAndQuery string) (*http.Request, error) {
	u := strings.TrimRight(c.cfg.OpenSea.BaseURL, "/") + pathAndQuery
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	if c.cfg.OpenSea.APIKey != "" {
		req.Header.Set("x-api-key", c.cfg.OpenSea.APIKey)
	}
	return req, nil
}

func doJSON[T any](cli *http.Client, req *http.Request, v *T) error {
	resp, err := cli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		he := newHTTPError(resp, b)
		if he.RateLimited {
			metrics.OpenSeaRateLimited.Inc()
		}
		return he
	}
	metrics.OpenSeaPages.Inc()
	return json.NewDecoder(resp.Body).Decode(v)
}

// ListingsPage fetches one page of active listings for the configured
// collection. An empty cursor requests the first page; next == "" means
// the last page was reached.
func (c *Client) ListingsPage(ctx context.Context, cursor string) ([]RawListing, string, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.cfg.OpenSea.ListingsPageLimit))
	if cursor != "" {
		q.Set("next", cursor)
	}
	path := "/listings/collection/" + url.PathEscape(c.cfg.OpenSea.Collection) + "/all?" + q.Encode()

	req, err := c.makeReq(ctx, path)
	if err != nil {
		return nil, "", err
	}
	var lr listingsResp
	if err := doJSON(c.http, req, &lr); err != nil {
		return nil, "", err
	}
	return lr.Listings, lr.Next, nil
}

// EventsPage fetches one page of account events for the tracked wallet,
// filtered server-side to sales. after == 0 means no time lower bound.
func (c *Client) EventsPage(ctx context.Context, cursor string, after int64) ([]RawEvent, string, error) {
	q := url.Values{}
	q.Set("event_type", "sale")
	q.Set("limit", strconv.Itoa(c.cfg.OpenSea.EventsPageLimit))
	if after > 0 {
		q.Set("after", strconv.FormatInt(after, 10))
	}
	if cursor != "" {
		q.Set("next", cursor)
	}
	path := "/events/accounts/" + url.PathEscape(c.cfg.OpenSea.SellerWallet) + "?" + q.Encode()

	req, err := c.makeReq(ctx, path)
	if err != nil {
		return nil, "", err
	}
	var er eventsResp
	if err := doJSON(c.http, req, &er); err != nil {
		return nil, "", err
	}
	return er.AssetEvents, er.Next, nil
}

// Account resolves the marketplace username for an address. An account
// without a username yields ("", nil).
func (c *Client) Account(ctx context.Context, address string) (string, error) {
	req, err := c.makeReq(ctx, "/accounts/"+url.PathEscape(address))
	if err != nil {
		return "", err
	}
	var ar accountResp
	if err := doJSON(c.http, req, &ar); err != nil {
		return "", err
	}
	return ar.Username, nil
}

// NFT fetches display metadata for a single token of the collection
// contract. Missing fields come back empty; the caller keeps its defaults.
func (c *Client) NFT(ctx context.Context, tokenID string) (name, image string, err error) {
	path := "/chain/ethereum/contract/" + url.PathEscape(c.cfg.OpenSea.NFTContract) + "/nfts/" + url.PathEscape(tokenID)
	req, err := c.makeReq(ctx, path)
	if err != nil {
		return "", "", err
	}
	var nr nftResp
	if err := doJSON(c.http, req, &nr); err != nil {
		return "", "", err
	}
	image = nr.NFT.ImageURL
	if image == "" {
		image = nr.NFT.DisplayImageURL
	}
	return nr.NFT.Name, image, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
