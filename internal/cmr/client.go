// Package cmr searches the NASA Common Metadata Repository for cloud hosted
// granules.
package cmr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultURL is the production CMR search endpoint.
const DefaultURL = "https://cmr.earthdata.nasa.gov/search"

const pageSize = 2000

// Granule is a search hit.
type Granule struct {
	ConceptID string
	Name      string
	// S3URL is the first direct access (s3://) data link.
	S3URL string
}

// Catalog finds granules of a collection within a time window.
type Catalog interface {
	Search(ctx context.Context, shortName string, start, end time.Time) ([]Granule, error)
}

// Client is a CMR search client.
type Client struct {
	logger  zerolog.Logger
	httpCli *http.Client
	baseURL string
}

// NewClient creates a new CMR client for the search endpoint at baseURL.
func NewClient(logger zerolog.Logger, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		logger: logger,
		httpCli: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

type searchResponse struct {
	Hits  int `json:"hits"`
	Items []struct {
		Meta struct {
			ConceptID string `json:"concept-id"`
		} `json:"meta"`
		UMM struct {
			GranuleUR   string `json:"GranuleUR"`
			RelatedUrls []struct {
				URL  string `json:"URL"`
				Type string `json:"Type"`
			} `json:"RelatedUrls"`
		} `json:"umm"`
	} `json:"items"`
}

// Search returns the cloud hosted granules of the collection whose temporal
// extent intersects [start, end]. Granules without a direct access link are
// skipped.
func (c *Client) Search(ctx context.Context, shortName string, start, end time.Time) ([]Granule, error) {
	q := url.Values{}
	q.Set("short_name", shortName)
	q.Set("cloud_hosted", "true")
	q.Set("temporal[]", start.UTC().Format(time.RFC3339)+","+end.UTC().Format(time.RFC3339))
	q.Set("page_size", strconv.Itoa(pageSize))
	q.Set("sort_key", "start_date")
	u := c.baseURL + "/granules.umm_json?" + q.Encode()

	var granules []Granule
	searchAfter := ""
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		if searchAfter != "" {
			req.Header.Set("CMR-Search-After", searchAfter)
		}
		page, next, err := c.page(req)
		if err != nil {
			return nil, fmt.Errorf("cannot search %s: %w", shortName, err)
		}
		for _, it := range page.Items {
			g := Granule{ConceptID: it.Meta.ConceptID, Name: it.UMM.GranuleUR}
			for _, ru := range it.UMM.RelatedUrls {
				if ru.Type == "GET DATA VIA DIRECT ACCESS" && strings.HasPrefix(ru.URL, "s3://") {
					g.S3URL = ru.URL
					break
				}
			}
			if g.S3URL == "" {
				c.logger.Warn().Str("granule", g.Name).Msg("Granule has no direct access link")
				continue
			}
			granules = append(granules, g)
		}
		if next == "" || len(page.Items) < pageSize {
			break
		}
		searchAfter = next
	}
	c.logger.Info().Str("collection", shortName).Int("granules", len(granules)).Msg("Searched CMR")
	return granules, nil
}

func (c *Client) page(req *http.Request) (*searchResponse, string, error) {
	res, err := c.httpCli.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, "", fmt.Errorf("unexpected status %d: %s", res.StatusCode, strings.TrimSpace(string(b)))
	}
	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, "", fmt.Errorf("cannot decode search response: %w", err)
	}
	return &sr, res.Header.Get("CMR-Search-After"), nil
}
