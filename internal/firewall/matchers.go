package firewall

import (
	"net/url"
	"regexp"
	"strings"
)

// Matcher is a lower-case substring tagged with the category it detects.
type Matcher struct {
	Pattern  string `json:"pattern"`
	Category string `json:"category"`
}

// BadBotMatchers are matched against the lower-cased User-Agent.
var BadBotMatchers = []Matcher{
	{"semrush", "seo_crawler"},
	{"ahrefs", "seo_crawler"},
	{"mj12bot", "seo_crawler"},
	{"dotbot", "seo_crawler"},
	{"blexbot", "seo_crawler"},
	{"petalbot", "seo_crawler"},
	{"megaindex", "seo_crawler"},
	{"nikto", "scanner"},
	{"sqlmap", "scanner"},
	{"nmap", "scanner"},
	{"masscan", "scanner"},
	{"zgrab", "scanner"},
	{"nuclei", "scanner"},
	{"wpscan", "scanner"},
	{"dirbuster", "scanner"},
	{"gobuster", "scanner"},
	{"python-requests", "scripted_client"},
	{"python-urllib", "scripted_client"},
	{"libwww-perl", "scripted_client"},
	{"scrapy", "scripted_client"},
	{"httpclient", "scripted_client"},
}

// PathMatchers are matched against the lower-cased request URI.
var PathMatchers = []Matcher{
	{"/wp-admin", "cms_probe"},
	{"/wp-login", "cms_probe"},
	{"/xmlrpc.php", "cms_probe"},
	{"/phpmyadmin", "admin_probe"},
	{"/cgi-bin/", "admin_probe"},
	{"/.env", "secret_file"},
	{"/.git", "secret_file"},
	{"/.svn", "secret_file"},
	{"/.htaccess", "secret_file"},
	{"/etc/passwd", "path_traversal"},
	{"../", "path_traversal"},
	{"..%2f", "path_traversal"},
	{"union+select", "sql_injection"},
	{"union%20select", "sql_injection"},
	{"union select", "sql_injection"},
	{"<script", "xss"},
	{"%3cscript", "xss"},
	{"base64_decode(", "code_injection"},
	{"eval(", "code_injection"},
}

// BodyMatcher is a regular expression applied to POST bodies.
type BodyMatcher struct {
	Pattern  *regexp.Regexp
	Category string
}

var BodyMatchers = []BodyMatcher{
	{regexp.MustCompile(`(?i)union\s+select`), "sql_injection"},
	{regexp.MustCompile(`(?i)<script`), "xss"},
	{regexp.MustCompile(`(?i)javascript:`), "xss"},
	{regexp.MustCompile(`(?i)<[^>]*\bon\w+\s*=`), "xss"},
}

// MatchUserAgent returns the matcher hit by ua. An empty user agent is a
// match in its own right.
func MatchUserAgent(ua string) (Matcher, bool) {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return Matcher{Pattern: "", Category: "empty_user_agent"}, true
	}
	return matchAny(BadBotMatchers, ua)
}

// MatchURI checks the raw URI and its percent-decoded form.
func MatchURI(uri string) (Matcher, bool) {
	lower := strings.ToLower(uri)
	if m, ok := matchAny(PathMatchers, lower); ok {
		return m, true
	}
	if decoded, err := url.PathUnescape(lower); err == nil && decoded != lower {
		return matchAny(PathMatchers, decoded)
	}
	return Matcher{}, false
}

func MatchBody(body []byte) (BodyMatcher, bool) {
	if len(body) == 0 {
		return BodyMatcher{}, false
	}
	for _, m := range BodyMatchers {
		if m.Pattern.Match(body) {
			return m, true
		}
	}
	return BodyMatcher{}, false
}

func matchAny(list []Matcher, s string) (Matcher, bool) {
	for _, m := range list {
		if strings.Contains(s, m.Pattern) {
			return m, true
		}
	}
	return Matcher{}, false
}
