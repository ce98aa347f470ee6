// Package edgar is a client for the SEC EDGAR public endpoints: ticker to
// CIK resolution, per-company submission listings, and filing document
// retrieval. All requests carry the declared User-Agent and go through a
// shared rate limiter per SEC fair-access rules.
package edgar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/findex/internal/db"
	"github.com/kailas-cloud/findex/internal/domain/filing"
	"github.com/kailas-cloud/findex/internal/logger"
)

const (
	defaultTickerURL       = "https://www.sec.gov/files/company_tickers.json"
	defaultSubmissionsBase = "https://data.sec.gov"
	defaultArchivesBase    = "https://www.sec.gov"

	cikCachePrefix = "findex:cik:"
	cikCacheTTL    = 24 * time.Hour
)

// ErrUnsupportedFormat is returned when a filing's primary document is not
// HTML (some older filings are PDF-only).
var ErrUnsupportedFormat = errors.New("edgar: unsupported document format")

// FetchError reports a failed document download. Status is zero when the
// request never produced a response.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("edgar: fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("edgar: fetch %s: status %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Company is a resolved EDGAR registrant.
type Company struct {
	CIK    string `json:"cik"` // zero-padded to 10 digits
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// Config holds EDGAR client settings.
type Config struct {
	UserAgent  string
	RatePerSec float64
	Burst      int
	Timeout    time.Duration
}

// Client talks to the SEC EDGAR endpoints.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	cache     db.KVStore // nil disables CIK caching

	tickerURL       string
	submissionsBase string
	archivesBase    string
}

// NewClient creates an EDGAR client. cache may be nil.
func NewClient(cfg Config, cache db.KVStore) *Client {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 8
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(rps)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		http:            &http.Client{Timeout: timeout},
		limiter:         rate.NewLimiter(rate.Limit(rps), burst),
		userAgent:       cfg.UserAgent,
		cache:           cache,
		tickerURL:       defaultTickerURL,
		submissionsBase: defaultSubmissionsBase,
		archivesBase:    defaultArchivesBase,
	}
}

// Resolve maps a ticker symbol to its EDGAR registrant. The full ticker table
// is one download, so hits are cached per ticker.
// Returns filing.ErrCompanyNotFound for unknown tickers.
func (c *Client) Resolve(ctx context.Context, ticker string) (*Company, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, filing.ErrCompanyNotFound
	}

	if c.cache != nil {
		if data, err := c.cache.Get(ctx, cikCachePrefix+ticker); err == nil {
			var company Company
			if err := json.Unmarshal(data, &company); err == nil {
				return &company, nil
			}
		}
	}

	body, err := c.get(ctx, c.tickerURL)
	if err != nil {
		return nil, fmt.Errorf("fetch ticker table: %w", err)
	}

	// The table is an object keyed by row number, not an array.
	var table map[string]struct {
		CIK    int64  `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(body, &table); err != nil {
		return nil, fmt.Errorf("parse ticker table: %w", err)
	}

	for _, row := range table {
		if strings.EqualFold(row.Ticker, ticker) {
			company := &Company{
				CIK:    fmt.Sprintf("%010d", row.CIK),
				Ticker: ticker,
				Name:   row.Title,
			}
			if c.cache != nil {
				if data, err := json.Marshal(company); err == nil {
					if err := c.cache.SetWithTTL(ctx, cikCachePrefix+ticker, data, cikCacheTTL); err != nil {
						logger.FromContext(ctx).Warn("cik cache write failed", zap.Error(err))
					}
				}
			}
			return company, nil
		}
	}

	return nil, filing.ErrCompanyNotFound
}

// submissionsResponse mirrors the parallel-array layout of the EDGAR
// submissions endpoint: entry i of each array describes the same filing.
type submissionsResponse struct {
	Filings struct {
		Recent struct {
			Form                  []string `json:"form"`
			FilingDate            []string `json:"filingDate"`
			AccessionNumber       []string `json:"accessionNumber"`
			PrimaryDocument       []string `json:"primaryDocument"`
			PrimaryDocDescription []string `json:"primaryDocDescription"`
		} `json:"recent"`
	} `json:"filings"`
}

// ListFilings returns the company's recent filings, newest first, restricted
// to the supported form types.
func (c *Client) ListFilings(ctx context.Context, cik string) ([]filing.Filing, error) {
	url := fmt.Sprintf("%s/submissions/CIK%s.json", c.submissionsBase, cik)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch submissions: %w", err)
	}

	var resp submissionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse submissions: %w", err)
	}

	recent := resp.Filings.Recent
	n := len(recent.Form)
	out := make([]filing.Filing, 0, n)

	for i := 0; i < n; i++ {
		formType, ok := filing.ParseType(recent.Form[i])
		if !ok {
			continue
		}
		if i >= len(recent.AccessionNumber) || i >= len(recent.FilingDate) || i >= len(recent.PrimaryDocument) {
			break
		}

		f := filing.Filing{
			Type:            formType,
			Date:            recent.FilingDate[i],
			AccessionNumber: recent.AccessionNumber[i],
			URL:             c.documentURL(cik, recent.AccessionNumber[i], recent.PrimaryDocument[i]),
		}
		if i < len(recent.PrimaryDocDescription) {
			f.Description = recent.PrimaryDocDescription[i]
		}
		out = append(out, f)
	}

	return out, nil
}

// FetchHTML downloads a filing document and returns its HTML.
// Returns ErrUnsupportedFormat for PDF documents.
func (c *Client) FetchHTML(ctx context.Context, url string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: url, Status: resp.StatusCode}
	}
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "application/pdf") {
		return "", ErrUnsupportedFormat
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}

	return string(data), nil
}

// documentURL builds the archive URL for a filing's primary document.
// The archive path uses the unpadded CIK and the accession number without
// dashes.
func (c *Client) documentURL(cik, accession, doc string) string {
	shortCIK := strings.TrimLeft(cik, "0")
	flatAccession := strings.ReplaceAll(accession, "-", "")
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s", c.archivesBase, shortCIK, flatAccession, doc)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return data, nil
}
