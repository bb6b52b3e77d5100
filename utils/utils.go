package utils

import (
	"fmt"
	"net/url"
	"strings"
)

func UrlQuery(s string) string { return strings.ReplaceAll(s, " ", "+") }

func Str(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// Domain extracts the host portion of a raw URL, empty when unparseable.
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// FaviconURL builds a favicon lookup URL for the domain of raw.
func FaviconURL(raw string) string {
	return "https://www.google.com/s2/favicons?domain=" + Domain(raw)
}
