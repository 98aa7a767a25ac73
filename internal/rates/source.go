package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"budgettracker/internal/core"
)

const (
	DefaultPrimaryURL   = "https://api.exchangerate-api.com/v4/latest"
	DefaultSecondaryURL = "https://open.er-api.com/v6/latest"
)

// maxBodyBytes caps the response size read from a rate source.
const maxBodyBytes = 1 << 20

var ErrMalformedResponse = errors.New("malformed rate response")

// Source fetches a rate table relative to a base currency.
type Source interface {
	Name() string
	Fetch(ctx context.Context, base core.Currency) (map[string]float64, error)
}

// FetchError records which source failed and why.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch rates from %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// HTTPSource queries GET <baseURL>/<BASE> and reads {"rates": {...}}.
type HTTPSource struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewHTTPSource(name, baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (s *HTTPSource) Name() string { return s.name }

func (s *HTTPSource) Fetch(ctx context.Context, base core.Currency) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+string(base), nil)
	if err != nil {
		return nil, &FetchError{Source: s.name, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: s.name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &FetchError{Source: s.name, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var body struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, &FetchError{Source: s.name, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if len(body.Rates) == 0 {
		return nil, &FetchError{Source: s.name, Err: fmt.Errorf("%w: no rates", ErrMalformedResponse)}
	}
	return body.Rates, nil
}
