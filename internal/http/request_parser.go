// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.

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

	"github.com/shopspring/decimal"

	"kiptrack/internal/services"
)

// maxBodyBytes bounds request bodies; proof images travel as references.
const maxBodyBytes = 1 << 20

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if p.err == nil && len(p.body) > maxBodyBytes {
			p.err = errors.New("request body too large")
		}
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// Has reports whether key was supplied at all.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	return p.formData != nil && p.formData.Has(key)
}

// Whole parses key as a whole number, such as a rupiah amount or a
// quantity. An "Rp" prefix is accepted.
func (p *RequestBodyParser) Whole(key string) (int64, error) {
	return parseWhole(p.Get(key))
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func parseWhole(s string) (int64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "Rp"))
	if s == "" {
		return 0, errors.New("missing value")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("%q must be a whole number", s)
	}
	if !d.Abs().LessThan(decimal.NewFromInt(1_000_000_000_000_000)) {
		return 0, fmt.Errorf("%q out of range", s)
	}
	return d.IntPart(), nil
}

// ParseNewTransaction reads a submission. Quantity defaults to 1 and date to
// the submission day.
func ParseNewTransaction(p *RequestBodyParser, studentID string) (services.NewTransaction, error) {
	if err := p.Parse(); err != nil {
		return services.NewTransaction{}, fmt.Errorf("invalid request body: %w", err)
	}

	in := services.NewTransaction{
		StudentID:   studentID,
		Date:        p.Get("date"),
		Description: p.Get("description"),
		Category:    p.Get("category"),
		Quantity:    1,
		ProofImage:  p.Get("proof_image"),
	}

	if p.Has("quantity") {
		q, err := p.Whole("quantity")
		if err != nil {
			return in, fmt.Errorf("quantity: %w", err)
		}
		in.Quantity = q
	}
	price, err := p.Whole("unit_price")
	if err != nil {
		return in, fmt.Errorf("unit_price: %w", err)
	}
	in.UnitPrice = price
	return in, nil
}

// ParseDenyAmount returns the explicit violation amount, if one was sent.
func ParseDenyAmount(p *RequestBodyParser) (amount int64, explicit bool, err error) {
	if err := p.Parse(); err != nil {
		return 0, false, fmt.Errorf("invalid request body: %w", err)
	}
	if !p.Has("amount") || p.Get("amount") == "" {
		return 0, false, nil
	}
	amount, err = p.Whole("amount")
	if err != nil {
		return 0, false, fmt.Errorf("amount: %w", err)
	}
	return amount, true, nil
}

// ParseAt reads the optional "at" query parameter (YYYY-MM-DD) in loc,
// defaulting to now. Dates after today in loc are rejected.
func ParseAt(query url.Values, now time.Time, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(query.Get("at"))
	if v == "" {
		return now.In(loc), nil
	}
	at, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid at %q: want YYYY-MM-DD", v)
	}
	y, m, d := now.In(loc).Date()
	if at.After(time.Date(y, m, d, 0, 0, 0, 0, loc)) {
		return time.Time{}, fmt.Errorf("invalid at %q: date is in the future", v)
	}
	return at, nil
}
