package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Quota allows Requests per Window.
type Quota struct {
	Requests int
	Window   time.Duration
}

func (q Quota) String() string {
	return fmt.Sprintf("%d/%s", q.Requests, q.Window)
}

var unitWindows = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
}

// ParseQuota parses "10/minute", "10 per minute", "10/2 minutes" or a Go
// duration window such as "10/30s".
func ParseQuota(s string) (Quota, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	var count, window string
	switch {
	case strings.Contains(raw, "/"):
		count, window, _ = strings.Cut(raw, "/")
	case strings.Contains(raw, " per "):
		count, window, _ = strings.Cut(raw, " per ")
	default:
		return Quota{}, fmt.Errorf("%w: %q", ErrInvalidQuota, s)
	}

	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n < 1 {
		return Quota{}, fmt.Errorf("%w: %q: request count must be a positive integer", ErrInvalidQuota, s)
	}

	d, err := parseWindow(strings.TrimSpace(window))
	if err != nil {
		return Quota{}, fmt.Errorf("%w: %q: %w", ErrInvalidQuota, s, err)
	}
	return Quota{Requests: n, Window: d}, nil
}

func parseWindow(w string) (time.Duration, error) {
	if d, ok := unitWindows[w]; ok {
		return d, nil
	}
	// "2 minutes"
	if mult, unit, ok := strings.Cut(w, " "); ok {
		k, err := strconv.Atoi(mult)
		d, known := unitWindows[strings.TrimSpace(unit)]
		if err == nil && known && k > 0 {
			return time.Duration(k) * d, nil
		}
	}
	d, err := time.ParseDuration(w)
	if err != nil {
		return 0, fmt.Errorf("unknown window %q", w)
	}
	if d <= 0 {
		return 0, fmt.Errorf("window must be positive, got %s", d)
	}
	return d, nil
}

// ParseQuotas parses a map of endpoint key to quota string.
func ParseQuotas(in map[string]string) (map[string]Quota, error) {
	out := make(map[string]Quota, len(in))
	for endpoint, raw := range in {
		q, err := ParseQuota(raw)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", endpoint, err)
		}
		out[endpoint] = q
	}
	return out, nil
}
