// Package sanitize cleans untrusted HTML fragments before they are
// republished in a feed.
package sanitize

import (
	"bytes"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
)

var (
	controlChars    = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
	controlEntities = regexp.MustCompile(`&#x1[0-9A-Fa-f];`)
	redirectPrefix  = regexp.MustCompile(`^.*\?(?:[^=&?]*=)?http`)
)

const (
	rtlOverride    = "\u202e"
	redirectToken  = "______"
	redirectSuffix = "&z"
)

// Rules is the per-source knowledge the sanitizer applies.
type Rules struct {
	// Remove lists widget selectors dropped from the content.
	Remove []string
	// LazyAttr names the image attribute holding the real source while src
	// holds a placeholder.
	LazyAttr string
	// LoaderAttrs are stripped from every image.
	LoaderAttrs []string
	// RedirectMarker identifies redirector links worth unwrapping.
	RedirectMarker string
}

// Default applies to plain article bodies.
var Default = Rules{
	Remove: []string{"script", "style", "noscript"},
}

// Forum applies to t66y style post bodies. Callers pick the post out of the
// page first; the rules work on the whole fragment they are given.
var Forum = Rules{
	Remove:         []string{"script", "style", "noscript", ".t_like"},
	LazyAttr:       "ess-data",
	LoaderAttrs:    []string{"ess-data", "iyl-data"},
	RedirectMarker: "redircdn",
}

// Sanitize cleans raw with the Default rules.
func Sanitize(raw string) string { return Default.Sanitize(raw) }

// Sanitize cleans raw. It never fails: blank input is returned untouched and
// input that cannot be parsed only has invalid characters removed.
func (r Rules) Sanitize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return raw
	}
	cleaned := RemoveInvalidChars(raw)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cleaned))
	if err != nil {
		return cleaned
	}

	root := doc.Find("body")

	for _, sel := range r.Remove {
		root.Find(sel).Remove()
	}
	for _, n := range root.Find("*").Nodes {
		n.Attr = slices.DeleteFunc(n.Attr, unsafeAttr)
	}

	root.Find("img").Each(func(_ int, img *goquery.Selection) {
		if r.LazyAttr != "" {
			if lazy, ok := img.Attr(r.LazyAttr); ok && strings.TrimSpace(lazy) != "" {
				img.SetAttr("src", strings.TrimSpace(lazy))
			}
		}
		for _, attr := range r.LoaderAttrs {
			img.RemoveAttr(attr)
		}
	})

	if r.RedirectMarker != "" {
		root.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if !strings.Contains(href, r.RedirectMarker) {
				return
			}
			if target, ok := UnwrapRedirect(href); ok {
				a.SetAttr("href", target)
			}
		})
	}

	out, err := root.Html()
	if err != nil {
		return cleaned
	}
	return RemoveInvalidChars(out)
}

func unsafeAttr(a html.Attribute) bool {
	key := strings.ToLower(a.Key)
	if strings.HasPrefix(key, "on") {
		return true
	}
	if key == "href" || key == "src" {
		v := strings.ToLower(strings.TrimSpace(a.Val))
		return strings.HasPrefix(v, "javascript:")
	}
	return false
}

// UnwrapRedirect decodes a redirector link of the form
// <redirector>?[name=]http<target with "______" for ".">[&z] into the
// embedded target. ok is false when href does not follow that scheme or the
// decoded value does not look like a link.
func UnwrapRedirect(href string) (string, bool) {
	loc := redirectPrefix.FindStringIndex(href)
	if loc == nil {
		return href, false
	}
	out := "http" + href[loc[1]:]
	out = strings.ReplaceAll(out, redirectToken, ".")
	out = strings.TrimSuffix(out, redirectSuffix)
	if dec, err := url.PathUnescape(out); err == nil {
		out = dec
	}
	if !looksLikeLink(out) {
		return href, false
	}
	return out, true
}

func looksLikeLink(s string) bool {
	if len(s) <= len("http") || strings.ContainsAny(s, " \t\r\n\"'<>") {
		return false
	}
	_, err := url.Parse(s)
	return err == nil
}

// RemoveInvalidChars strips C0 control characters other than tab, newline
// and carriage return, their &#x10;..&#x1F; entity forms, and U+202E.
func RemoveInvalidChars(s string) string {
	s = controlChars.ReplaceAllString(s, "")
	s = controlEntities.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, rtlOverride, "")
}

// Markdown renders lightweight markup to HTML and sanitizes the result.
// Raw HTML inside the markup is not passed through.
func Markdown(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(RemoveInvalidChars(src)), &buf); err != nil {
		return Sanitize(html.EscapeString(src))
	}
	return Sanitize(buf.String())
}
