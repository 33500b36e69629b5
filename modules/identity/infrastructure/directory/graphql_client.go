package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"golang.org/x/time/rate"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/person"
)

const personQuery = `query Person($id: ID!) {
  person(nationalId: $id) {
    name { first middle last }
  }
}`

const notFoundCode = "not_found"

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type personResponse struct {
	Data struct {
		Person *struct {
			Name struct {
				First  string `json:"first"`
				Middle string `json:"middle"`
				Last   string `json:"last"`
			} `json:"name"`
		} `json:"person"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type Options struct {
	URL           string
	Authorization string
	// Query overrides the person lookup document. It must take an $id variable
	// and select person.name.
	Query   string
	Timeout time.Duration
	// RequestsPerSecond throttles lookups; zero means unlimited.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// GraphQLClient resolves names from the person directory's GraphQL endpoint.
type GraphQLClient struct {
	endpoint      *url.URL
	query         string
	authorization string
	httpClient    *http.Client
	limiter       *rate.Limiter
}

func NewGraphQLClient(opts Options) (*GraphQLClient, error) {
	u, err := url.Parse(strings.TrimSpace(opts.URL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid directory url: %q", opts.URL)
	}
	query := personQuery
	if strings.TrimSpace(opts.Query) != "" {
		query = opts.Query
	}
	if err := checkQuery(query); err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return &GraphQLClient{
		endpoint:      u,
		query:         query,
		authorization: strings.TrimSpace(opts.Authorization),
		httpClient:    httpClient,
		limiter:       limiter,
	}, nil
}

// Resolve returns the current name for nationalID. Errors wrap domain.ErrNotFound
// when the directory does not know the id and domain.ErrTransient when it could not answer.
func (c *GraphQLClient) Resolve(ctx context.Context, nationalID string) (person.Name, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return person.Name{}, fmt.Errorf("directory rate limit: %w: %w", domain.ErrTransient, err)
	}

	var out personResponse
	if err := c.do(ctx, graphQLRequest{
		Query:     c.query,
		Variables: map[string]any{"id": person.NormalizeID(nationalID)},
	}, &out); err != nil {
		return person.Name{}, err
	}

	for _, e := range out.Errors {
		if strings.EqualFold(e.Extensions.Code, notFoundCode) {
			return person.Name{}, errors.Wrap(domain.ErrNotFound, e.Message)
		}
	}
	if len(out.Errors) > 0 {
		return person.Name{}, fmt.Errorf("directory: %s: %w", out.Errors[0].Message, domain.ErrTransient)
	}
	if out.Data.Person == nil {
		return person.Name{}, domain.ErrNotFound
	}

	n := out.Data.Person.Name
	return person.Name{First: n.First, Middle: n.Middle, Last: n.Last}, nil
}

func (c *GraphQLClient) do(ctx context.Context, reqBody graphQLRequest, out any) error {
	b, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("json marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w: %w", domain.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("http read: %w: %w", domain.ErrTransient, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("json unmarshal response: %w: %w", domain.ErrTransient, err)
	}
	return nil
}

// statusError treats auth, throttling and server failures as retryable and any
// other client error as a verdict on the id itself.
func statusError(status int, body []byte) error {
	switch {
	case status >= 500,
		status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status == http.StatusUnauthorized,
		status == http.StatusForbidden:
		return fmt.Errorf("directory status=%d: %w", status, domain.ErrTransient)
	case status == http.StatusNotFound:
		return domain.ErrNotFound
	default:
		return fmt.Errorf("directory status=%d body=%s: %w", status, strings.TrimSpace(string(body)), domain.ErrNotFound)
	}
}

// checkQuery parses q and makes sure it is a single operation that declares $id
// and selects person.
func checkQuery(q string) error {
	doc, err := parser.ParseQuery(&ast.Source{Name: "person", Input: q})
	if err != nil {
		return fmt.Errorf("invalid directory query: %v", err)
	}
	if len(doc.Operations) != 1 {
		return fmt.Errorf("invalid directory query: want 1 operation, got %d", len(doc.Operations))
	}
	op := doc.Operations[0]
	if op.Operation != ast.Query {
		return fmt.Errorf("invalid directory query: %s is not a query", op.Operation)
	}
	if op.VariableDefinitions.ForName("id") == nil {
		return errors.New("invalid directory query: missing $id variable")
	}
	for _, sel := range op.SelectionSet {
		if f, ok := sel.(*ast.Field); ok && f.Name == "person" {
			return nil
		}
	}
	return errors.New("invalid directory query: person is not selected")
}
