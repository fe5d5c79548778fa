package sanitize

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultBlockedUserAgents are CLI clients and scanners rejected outright.
var DefaultBlockedUserAgents = []string{
	"curl", "wget", "sqlmap", "nikto", "python-requests", "masscan", "nmap", "zgrab",
}

type signature struct {
	name    string
	pattern *regexp.Regexp
}

var requestSignatures = []signature{
	{"path_traversal", regexp.MustCompile(`(?i)(\.\./|\.\.\\|%2e%2e|%252e%252e)`)},
	{"sql_injection", regexp.MustCompile(`(?i)(\bunion\b[\s+]+(all[\s+]+)?\bselect\b|'\s*or\s*'?\d+'?\s*=\s*'?\d+|;\s*drop\s+table\b|--\s*$|\bexec(\s|\+)+xp_)`)},
	{"script_tag", regexp.MustCompile(`(?i)(<|%3c)\s*script`)},
	{"null_byte", regexp.MustCompile(`%00`)},
}

// Detector matches requests against a denylist of attack signatures.
type Detector struct {
	blockUserAgents bool
	userAgents      []string
}

// NewDetector returns a Detector. When blockUserAgents is set, requests whose
// User-Agent contains any of userAgents (case-insensitive) are flagged; an
// empty list uses DefaultBlockedUserAgents.
func NewDetector(blockUserAgents bool, userAgents []string) *Detector {
	if len(userAgents) == 0 {
		userAgents = DefaultBlockedUserAgents
	}
	lowered := make([]string, 0, len(userAgents))
	for _, ua := range userAgents {
		if ua = strings.ToLower(strings.TrimSpace(ua)); ua != "" {
			lowered = append(lowered, ua)
		}
	}
	return &Detector{
		blockUserAgents: blockUserAgents,
		userAgents:      lowered,
	}
}

// Inspect returns the name of the first matching signature, or "" if the
// request looks clean. The raw path and query are checked both as received
// and once unescaped.
func (d *Detector) Inspect(rawPath, rawQuery, userAgent string) string {
	candidates := []string{rawPath, rawQuery}
	if p, err := url.PathUnescape(rawPath); err == nil && p != rawPath {
		candidates = append(candidates, p)
	}
	if q, err := url.QueryUnescape(rawQuery); err == nil && q != rawQuery {
		candidates = append(candidates, q)
	}

	for _, sig := range requestSignatures {
		for _, c := range candidates {
			if c != "" && sig.pattern.MatchString(c) {
				return sig.name
			}
		}
	}

	if d.blockUserAgents {
		ua := strings.ToLower(userAgent)
		for _, blocked := range d.userAgents {
			if strings.Contains(ua, blocked) {
				return "user_agent:" + blocked
			}
		}
	}
	return ""
}
