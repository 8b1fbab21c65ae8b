// Package traefik implements the proxy-mode hostname source. It polls
// the Traefik API for HTTP routers and extracts the hostnames named by
// Host() matchers in their rules, with per-router dns.* labels supplying
// record-intent overrides; optional dynamic-config YAML files are
// scanned the same way for routers that never pass through the API of a
// local instance.
package traefik

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"gitlab.bluewillows.net/root/zonewarden/pkg/httputil"
	"gitlab.bluewillows.net/root/zonewarden/pkg/source"
)

const sourceName = "traefik"

// maxAPIResponse caps how much of the routers response is read.
const maxAPIResponse = 8 << 20

// router is the subset of the Traefik API router object we consume.
// Labels carries per-router dns.* overrides when the proxy exposes them.
type router struct {
	Name     string            `json:"name"`
	Rule     string            `json:"rule"`
	Status   string            `json:"status"`
	Provider string            `json:"provider"`
	Labels   map[string]string `json:"labels"`
}

// Source polls the Traefik API for router hostnames.
type Source struct {
	apiURL string
	files  []string
	client *http.Client
	logger *slog.Logger
}

// Option is a functional option for configuring the Source.
type Option func(*Source)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Source) {
		if client != nil {
			s.client = client
		}
	}
}

// WithDynamicFiles adds Traefik dynamic-config YAML files to scan in
// addition to the API.
func WithDynamicFiles(paths []string) Option {
	return func(s *Source) {
		s.files = paths
	}
}

// New creates a Traefik source for the given API base URL, e.g.
// "http://traefik:8080/api".
func New(apiURL string, opts ...Option) *Source {
	s := &Source{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		client: httputil.DefaultClient(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the source identifier.
func (s *Source) Name() string {
	return sourceName
}

// Fetch lists the routers and returns the hostnames their rules name.
// An API failure fails the fetch; dynamic-file problems only drop that
// file's contribution.
func (s *Source) Fetch(ctx context.Context) (source.HostnameSet, error) {
	routers, err := s.listRouters(ctx)
	if err != nil {
		return source.HostnameSet{}, fmt.Errorf("traefik: %w", err)
	}

	set := source.NewHostnameSet()
	for _, rt := range routers {
		if rt.Status != "" && rt.Status != "enabled" {
			s.logger.Debug("skipping disabled router",
				slog.String("router", rt.Name),
				slog.String("status", rt.Status),
			)
			continue
		}
		hints, err := source.HintsFromLabels(rt.Labels)
		if err != nil {
			s.logger.Warn("ignoring router with bad dns labels",
				slog.String("router", rt.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, hostname := range HostsFromRule(rt.Rule) {
			if err := source.ValidateHostname(hostname); err != nil {
				s.logger.Warn("ignoring invalid hostname from router rule",
					slog.String("router", rt.Name),
					slog.String("hostname", hostname),
				)
				continue
			}
			set.Add(hostname, hints)
		}
	}

	for _, path := range s.files {
		names, err := hostsFromDynamicFile(path)
		if err != nil {
			s.logger.Warn("skipping traefik dynamic config file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, hostname := range names {
			if source.ValidateHostname(hostname) == nil {
				set.Add(hostname, source.IntentHints{})
			}
		}
	}

	s.logger.Debug("traefik fetch complete",
		slog.Int("routers", len(routers)),
		slog.Int("hostnames", set.Len()),
	)
	return set, nil
}

func (s *Source) listRouters(ctx context.Context) ([]router, error) {
	url := s.apiURL + "/http/routers"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("traefik API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponse))
	if err != nil {
		return nil, err
	}

	var routers []router
	if err := json.Unmarshal(body, &routers); err != nil {
		return nil, fmt.Errorf("decoding routers response: %w", err)
	}
	return routers, nil
}
