package chat

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	usageDateLayout = "2006-01-02"
	usageWindowDays = 30
)

// UsageURL appends start_date (now minus 30 days) and end_date (now) to base.
func UsageURL(base string, now time.Time) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("usage url is not set")
	}
	if _, err := url.Parse(base); err != nil {
		return "", fmt.Errorf("parse usage url: %w", err)
	}

	sep := "?"
	switch {
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		sep = ""
	case strings.Contains(base, "?"):
		sep = "&"
	}

	start := now.AddDate(0, 0, -usageWindowDays).Format(usageDateLayout)
	end := now.Format(usageDateLayout)
	return base + sep + "start_date=" + start + "&end_date=" + end, nil
}

// FormatDollars converts an amount in cents to dollars with three decimals.
func FormatDollars(cents float64) string {
	return fmt.Sprintf("$ %.3f", cents/100)
}
