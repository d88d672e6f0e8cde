/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: manifest.go
Description: Deep-link discovery from a decoded AndroidManifest.xml. Finds VIEW intent filters on
activities and activity aliases and turns their data elements into fuzzing target templates.
*/

package mobile

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kleascm/fuzzdeep/pkg/payload"
)

// DeepLink is one scheme/host/path combination an activity accepts
type DeepLink struct {
	Activity string
	Scheme   string
	Host     string
	Path     string
}

// Template returns a target template with the marker in the query string
func (d DeepLink) Template() string {
	if d.Host == "" {
		return d.Scheme + "://" + payload.Marker
	}
	return d.Scheme + "://" + d.Host + d.Path + "?" + payload.Marker
}

// ManifestAnalysis is the deep-link surface of a manifest
type ManifestAnalysis struct {
	PackageName string
	Activities  []string
	DeepLinks   []DeepLink
}

// Templates returns the distinct templates for all deep links, sorted
func (m *ManifestAnalysis) Templates() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range m.DeepLinks {
		t := d.Template()
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// AnalyzeManifest parses a decoded (text) AndroidManifest.xml.
// Self-closing elements are not honoured by the HTML parser, so each intent filter is
// attributed to its nearest enclosing activity.
func AnalyzeManifest(r io.Reader) (*ManifestAnalysis, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	root := doc.Find("manifest").First()
	if root.Length() == 0 {
		return nil, fmt.Errorf("failed to parse manifest: no manifest element")
	}

	analysis := &ManifestAnalysis{PackageName: root.AttrOr("package", "")}
	doc.Find("activity, activity-alias").Each(func(_ int, s *goquery.Selection) {
		analysis.Activities = append(analysis.Activities, s.AttrOr("android:name", ""))
	})

	doc.Find("intent-filter").Each(func(_ int, filter *goquery.Selection) {
		owner := filter.Closest("activity, activity-alias, service, receiver, provider")
		if owner.Length() == 0 || !hasViewAction(filter) {
			return
		}
		if name := goquery.NodeName(owner); name != "activity" && name != "activity-alias" {
			return
		}
		activity := owner.AttrOr("android:name", "")
		for _, link := range filterLinks(filter) {
			link.Activity = activity
			analysis.DeepLinks = append(analysis.DeepLinks, link)
		}
	})
	return analysis, nil
}

func hasViewAction(filter *goquery.Selection) bool {
	found := false
	filter.Find("action").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		found = a.AttrOr("android:name", "") == ViewAction
		return !found
	})
	return found
}

// filterLinks combines every scheme with every host and path declared in one filter,
// matching how Android merges data elements
func filterLinks(filter *goquery.Selection) []DeepLink {
	var schemes, hosts, paths []string
	filter.Find("data").Each(func(_ int, d *goquery.Selection) {
		if v, ok := d.Attr("android:scheme"); ok && v != "" {
			schemes = appendUnique(schemes, v)
		}
		if v, ok := d.Attr("android:host"); ok && v != "" {
			if port, ok := d.Attr("android:port"); ok && port != "" {
				v += ":" + port
			}
			hosts = appendUnique(hosts, v)
		}
		for _, attr := range []string{"android:path", "android:pathPrefix", "android:pathPattern"} {
			if v, ok := d.Attr(strings.ToLower(attr)); ok && v != "" {
				paths = appendUnique(paths, literalPath(v))
			}
		}
	})
	if len(hosts) == 0 {
		hosts = []string{""}
	}
	if len(paths) == 0 {
		paths = []string{""}
	}

	var links []DeepLink
	for _, scheme := range schemes {
		for _, host := range hosts {
			for _, path := range paths {
				links = append(links, DeepLink{Scheme: scheme, Host: host, Path: path})
			}
		}
	}
	return links
}

// literalPath keeps the fixed prefix of a path pattern
func literalPath(p string) string {
	if i := strings.IndexAny(p, "*\\"); i >= 0 {
		p = strings.TrimSuffix(p[:i], ".")
	}
	return p
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
