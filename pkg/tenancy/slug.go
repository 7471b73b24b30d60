package tenancy

import (
	"math/rand"
	"net"
	"regexp"
	"strings"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

const slugAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateSlug derives a subdomain-safe slug from a store name and appends a
// short random suffix.
func GenerateSlug(name string) string {
	base := nonSlug.ReplaceAllString(strings.ToLower(name), "-")
	base = strings.Trim(base, "-")
	if len(base) > 20 {
		base = strings.TrimRight(base[:20], "-")
	}
	if base == "" {
		base = "store"
	}
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = slugAlphabet[rand.Intn(len(slugAlphabet))]
	}
	return base + "-" + string(suffix)
}

// SubdomainFromHost returns the store subdomain of a request host, or "" for
// local hosts, bare domains and www. With a root domain only a single label
// directly under it counts, so multi-part suffixes such as co.uk work;
// without one the first of three or more labels is taken.
func SubdomainFromHost(host, rootDomain string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" || strings.HasPrefix(host, "localhost") || strings.HasPrefix(host, "127.0.0.1") || net.ParseIP(host) != nil {
		return ""
	}

	var label string
	if root := strings.Trim(strings.ToLower(rootDomain), "."); root != "" {
		rest, found := strings.CutSuffix(host, "."+root)
		if !found || strings.Contains(rest, ".") {
			return ""
		}
		label = rest
	} else {
		parts := strings.Split(host, ".")
		if len(parts) <= 2 {
			return ""
		}
		label = parts[0]
	}
	if label == "www" {
		return ""
	}
	return label
}
