// ABOUTME: Lenient parsing of model output into an Intent
// ABOUTME: Accepts wrapped and flat JSON shapes, code fences, and string amounts

package classifier

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Parse decodes model output into an Intent. Accepted shapes:
//
//	{"type":"banking_operation","operation":{"action":...,"user_name":...,"amount":...,"iban":...}}
//	{"type":"general_inquiry","response":"..."}
//	{"action":...,"user_name":...,"amount":...,"iban":...}
//	{"response":"..."}
//
// Surrounding prose and ``` fences are ignored. Anything else is ErrMalformed.
func Parse(text string) (*Intent, error) {
	body, ok := extractObject(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in %q", ErrMalformed, truncate(text, 80))
	}
	res := gjson.Parse(body)

	switch kind := res.Get("type").String(); kind {
	case "banking_operation":
		op := res.Get("operation")
		if !op.IsObject() {
			return nil, fmt.Errorf("%w: banking_operation without operation object", ErrMalformed)
		}
		return parseOperation(op)
	case "general_inquiry":
		return NewInquiry(strings.TrimSpace(res.Get("response").String())), nil
	case "":
		if res.Get("action").Exists() {
			return parseOperation(res)
		}
		if r := res.Get("response"); r.Exists() {
			return NewInquiry(strings.TrimSpace(r.String())), nil
		}
		return nil, fmt.Errorf("%w: object has neither action nor response", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, kind)
	}
}

func parseOperation(obj gjson.Result) (*Intent, error) {
	action := strings.ToUpper(strings.TrimSpace(obj.Get("action").String()))
	if action == "" {
		return nil, fmt.Errorf("%w: operation without action", ErrMalformed)
	}

	op := Operation{
		Action:   Action(action),
		UserName: optionalString(obj.Get("user_name")),
		IBAN:     optionalString(obj.Get("iban")),
	}
	if a := obj.Get("amount"); a.Exists() && a.Type != gjson.Null {
		if n, ok := wholeAmount(a); ok {
			op.Amount = &n
		} else {
			op.RawAmount = strings.TrimSpace(a.String())
		}
	}
	return NewOperation(op), nil
}

func optionalString(r gjson.Result) *string {
	if r.Type != gjson.String {
		return nil
	}
	s := strings.TrimSpace(r.String())
	if s == "" {
		return nil
	}
	return &s
}

// wholeAmount reads a JSON number or numeric string as an int64.
// Fractional and out-of-range values are rejected.
func wholeAmount(r gjson.Result) (int64, bool) {
	var raw string
	switch r.Type {
	case gjson.Number:
		raw = r.Raw
	case gjson.String:
		raw = strings.ReplaceAll(strings.TrimSpace(r.String()), ",", "")
	default:
		return 0, false
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// extractObject strips code fences and returns the outermost {...} span.
func extractObject(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", false
	}
	s = s[start : end+1]
	if !gjson.Valid(s) {
		return "", false
	}
	return s, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
