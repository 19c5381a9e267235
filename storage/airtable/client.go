// Package airtable implements records.Store over the Airtable REST API.
package airtable

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"golang.org/x/time/rate"

	"github.com/trezcool/rollbook/core"
	"github.com/trezcool/rollbook/core/records"
)

var formulaEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

type (
	wireRecord struct {
		ID          string                 `json:"id"`
		CreatedTime string                 `json:"createdTime"`
		Fields      map[string]interface{} `json:"fields"`
	}

	wirePage struct {
		Records []wireRecord `json:"records"`
		Offset  string       `json:"offset"`
	}
)

type Client struct {
	http       *rest.Client
	baseURL    string
	apiKey     string
	pageSize   int
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	log        core.Logger
}

var _ records.Store = (*Client)(nil)

// NewClient builds a client for the base of conf. A nil httpClient uses http.DefaultClient.
func NewClient(conf core.StoreConfig, log core.Logger, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	limit := rate.Inf
	if conf.RateLimit > 0 {
		limit = rate.Limit(conf.RateLimit)
	}
	return &Client{
		http:       &rest.Client{HTTPClient: httpClient},
		baseURL:    strings.TrimRight(conf.URL, "/") + "/" + url.PathEscape(conf.BaseID),
		apiKey:     conf.APIKey,
		pageSize:   conf.PageSize,
		limiter:    rate.NewLimiter(limit, 1),
		timeout:    conf.Timeout,
		maxRetries: conf.MaxRetries,
		backoff:    conf.RetryBackoff,
		log:        log,
	}
}

func (c *Client) FetchPage(ctx context.Context, q records.Query, cursor string) (records.Page, error) {
	op := "airtable.FetchPage(" + q.Table + ")"
	res, err := c.send(ctx, op, rest.Request{
		Method:      rest.Get,
		BaseURL:     c.baseURL + "/" + url.PathEscape(q.Table),
		Headers:     c.headers(),
		QueryParams: c.queryParams(q, cursor),
	})
	if err != nil {
		return records.Page{}, err
	}
	if res.StatusCode != http.StatusOK {
		return records.Page{}, &records.FetchError{Op: op, Status: res.StatusCode, Body: res.Body}
	}

	var wp wirePage
	if err := sonic.UnmarshalString(res.Body, &wp); err != nil {
		return records.Page{}, errors.Wrapf(err, "%s: decoding page", op)
	}
	page := records.Page{Records: make([]records.Record, len(wp.Records)), Cursor: wp.Offset}
	for i, wr := range wp.Records {
		page.Records[i] = wr.record()
	}
	return page, nil
}

func (c *Client) Get(ctx context.Context, table, id string) (records.Record, error) {
	op := "airtable.Get(" + table + ")"
	res, err := c.send(ctx, op, rest.Request{
		Method:  rest.Get,
		BaseURL: c.baseURL + "/" + url.PathEscape(table) + "/" + url.PathEscape(id),
		Headers: c.headers(),
	})
	if err != nil {
		return records.Record{}, err
	}
	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return records.Record{}, errors.Wrapf(records.ErrRecordNotFound, "%s/%s", table, id)
	default:
		return records.Record{}, &records.FetchError{Op: op, Status: res.StatusCode, Body: res.Body}
	}

	var wr wireRecord
	if err := sonic.UnmarshalString(res.Body, &wr); err != nil {
		return records.Record{}, errors.Wrapf(err, "%s: decoding record", op)
	}
	return wr.record(), nil
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.apiKey,
		"Accept":        "application/json",
	}
}

func (c *Client) queryParams(q records.Query, cursor string) map[string]string {
	params := make(map[string]string)
	if q.Filter != nil {
		params["filterByFormula"] = Formula(*q.Filter)
	}
	for i, o := range q.Sort {
		prefix := "sort[" + strconv.Itoa(i) + "]"
		params[prefix+"[field]"] = o.Field
		if o.Descending {
			params[prefix+"[direction]"] = "desc"
		} else {
			params[prefix+"[direction]"] = "asc"
		}
	}
	size := q.PageSize
	if size <= 0 {
		size = c.pageSize
	}
	if size > 0 {
		params["pageSize"] = strconv.Itoa(size)
	}
	if cursor != "" {
		params["offset"] = cursor
	}
	return params
}

// Formula renders an equality filter as an Airtable formula.
func Formula(eq records.Equals) string {
	return "{" + eq.Field + "} = '" + formulaEscaper.Replace(eq.Value) + "'"
}

// send issues req, retrying transport failures, 429 and 5xx responses with a doubling backoff.
// Each attempt gets its own timeout. The last response is returned once retries are exhausted.
func (c *Client) send(ctx context.Context, op string, req rest.Request) (*rest.Response, error) {
	backoff := c.backoff
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, op)
		}
		res, err := c.attempt(ctx, req)
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), op)
		}
		if (err == nil && !retryable(res.StatusCode)) || attempt >= c.maxRetries {
			if err != nil {
				return nil, errors.Wrap(err, op)
			}
			return res, nil
		}

		reason := "transport error"
		if err == nil {
			reason = "status " + strconv.Itoa(res.StatusCode)
		}
		c.log.Debug("airtable: retrying", map[string]interface{}{
			"op":      op,
			"attempt": attempt + 1,
			"reason":  reason,
			"backoff": backoff.String(),
		})
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), op)
		}
		backoff *= 2
	}
}

func (c *Client) attempt(ctx context.Context, req rest.Request) (*rest.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.http.SendWithContext(ctx, req)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func (wr wireRecord) record() records.Record {
	rec := records.Record{ID: wr.ID, Fields: wr.Fields}
	if rec.Fields == nil {
		rec.Fields = records.Fields{}
	}
	if t, err := time.Parse(time.RFC3339, wr.CreatedTime); err == nil {
		rec.CreatedTime = t
	}
	return rec
}
