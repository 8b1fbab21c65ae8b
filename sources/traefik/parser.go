package traefik

import (
	"regexp"
	"strings"
)

// hostMatcherRegex captures the arguments of Host(...) matchers in a
// Traefik v2/v3 router rule. The argument list may contain several
// backtick-quoted hostnames.
var hostMatcherRegex = regexp.MustCompile(`Host\(([^)]*)\)`)

// hostArgRegex captures each backtick-quoted hostname inside a matcher
// argument list.
var hostArgRegex = regexp.MustCompile("`([^`]+)`")

// HostsFromRule extracts the deduplicated hostnames named by Host()
// matchers in a router rule. Order follows first appearance. Rules
// without Host matchers yield nil.
//
// Handled shapes include:
//
//	Host(`app.example.com`)
//	Host(`a.example.com`, `b.example.com`)
//	Host(`a.example.com`) || Host(`b.example.com`)
//	(Host(`a.example.com`) && PathPrefix(`/api`))
func HostsFromRule(rule string) []string {
	seen := make(map[string]struct{})
	var hosts []string

	for _, matcher := range hostMatcherRegex.FindAllStringSubmatch(rule, -1) {
		for _, arg := range hostArgRegex.FindAllStringSubmatch(matcher[1], -1) {
			hostname := strings.ToLower(strings.TrimSpace(arg[1]))
			if hostname == "" || strings.Contains(hostname, "*") {
				// Wildcard router rules have no single DNS name.
				continue
			}
			if _, dup := seen[hostname]; dup {
				continue
			}
			seen[hostname] = struct{}{}
			hosts = append(hosts, hostname)
		}
	}
	return hosts
}

const (
	routerLabelPrefix = "traefik.http.routers."
	routerRuleSuffix  = ".rule"
)

// RouterNameFromLabel returns the router name of a Traefik router rule
// label, or "" when the key is not one.
//
//	traefik.http.routers.myapp.rule -> myapp
func RouterNameFromLabel(key string) string {
	if !strings.HasPrefix(key, routerLabelPrefix) || !strings.HasSuffix(key, routerRuleSuffix) {
		return ""
	}
	name := strings.TrimSuffix(strings.TrimPrefix(key, routerLabelPrefix), routerRuleSuffix)
	return name
}

// HostsFromLabels extracts hostnames from Traefik router rule labels on
// a container. Duplicates across routers collapse to the first hit.
func HostsFromLabels(labels map[string]string) []string {
	seen := make(map[string]struct{})
	var hosts []string

	for key, rule := range labels {
		if RouterNameFromLabel(key) == "" {
			continue
		}
		for _, hostname := range HostsFromRule(rule) {
			if _, dup := seen[hostname]; dup {
				continue
			}
			seen[hostname] = struct{}{}
			hosts = append(hosts, hostname)
		}
	}
	return hosts
}
