// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating request data:
// query parameters for periods and currencies, JSON bodies and bearer tokens.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"budgettracker/internal/core"
	"budgettracker/internal/stats"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

var (
	ErrInvalidYear  = errors.New("invalid year")
	ErrInvalidMonth = errors.New("invalid month (1-12)")
	ErrInvalidBody  = errors.New("invalid request body")
)

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month time.Month
}

// ParseMonthParams extracts year and month from query parameters, using the
// month containing now for missing values. Malformed values are rejected.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{Year: now.Year(), Month: now.Month()}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1970 || y > 9999 {
			return MonthParams{}, fmt.Errorf("%w: %q", ErrInvalidYear, v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return MonthParams{}, fmt.Errorf("%w: %q", ErrInvalidMonth, v)
		}
		params.Month = time.Month(m)
	}
	return params, nil
}

// ParseDateParam reads a YYYY-MM-DD parameter, defaulting to the day of now.
func ParseDateParam(query url.Values, key string, now time.Time) (core.Date, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return core.DateOf(now), nil
	}
	return core.ParseDate(v)
}

// ParsePeriodParams reads an optional year and month. Both select that
// month, a year alone selects the whole year and neither selects all time.
func ParsePeriodParams(query url.Values) (stats.Period, error) {
	hasYear := strings.TrimSpace(query.Get("year")) != ""
	hasMonth := strings.TrimSpace(query.Get("month")) != ""
	if !hasYear && !hasMonth {
		return stats.Period{}, nil
	}
	if !hasYear {
		return stats.Period{}, fmt.Errorf("%w: month given without year", ErrInvalidYear)
	}
	mp, err := ParseMonthParams(query, time.Now())
	if err != nil {
		return stats.Period{}, err
	}
	if !hasMonth {
		return stats.Period{From: core.NewDate(mp.Year, 1, 1), To: core.NewDate(mp.Year, 12, 31)}, nil
	}
	return stats.MonthPeriod(time.Date(mp.Year, mp.Month, 1, 0, 0, 0, 0, time.UTC)), nil
}

// ParseCurrencyParam returns the currency named by key, or fallback when the
// parameter is absent.
func ParseCurrencyParam(query url.Values, key string, fallback core.Currency) (core.Currency, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return fallback, nil
	}
	return core.ParseCurrency(v)
}

// DecodeJSON reads a single JSON document from the request body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrInvalidBody)
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: field %s", ErrInvalidBody, typeErr.Field)
		}
		if errors.Is(err, core.ErrInvalidDate) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return nil
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// sanitizeInput removes control characters except tab and newlines, and
// trims surrounding whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
