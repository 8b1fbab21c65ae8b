// Package docker implements the direct-mode hostname source. Containers
// publish DNS intent through labels: explicit dns.* labels, or Traefik
// router rules when the container is already labeled for the proxy.
package docker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	dockerclient "gitlab.bluewillows.net/root/zonewarden/internal/docker"
	"gitlab.bluewillows.net/root/zonewarden/pkg/source"
	"gitlab.bluewillows.net/root/zonewarden/sources/traefik"
)

const sourceName = "docker"

// Container labels understood by the source.
const (
	LabelSkip     = source.LabelSkip
	LabelHostname = source.LabelHostname
	LabelType     = source.LabelType
	LabelContent  = source.LabelContent
	LabelTTL      = source.LabelTTL
	LabelProxied  = source.LabelProxied
)

// Lister is the container inventory the source reads. The production
// implementation is internal/docker.Client.
type Lister interface {
	ListWorkloads(ctx context.Context) ([]dockerclient.Workload, error)
}

// Source discovers hostnames from container labels.
type Source struct {
	lister Lister
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

// New creates a Docker label source.
func New(lister Lister, opts ...Option) *Source {
	s := &Source{
		lister: lister,
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

// Fetch lists running containers and extracts their hostnames. A label
// problem on one container never fails the whole fetch.
func (s *Source) Fetch(ctx context.Context) (source.HostnameSet, error) {
	workloads, err := s.lister.ListWorkloads(ctx)
	if err != nil {
		return source.HostnameSet{}, fmt.Errorf("docker: %w", err)
	}

	set := source.NewHostnameSet()
	for _, w := range workloads {
		s.collect(w, set)
	}

	s.logger.Debug("docker fetch complete",
		slog.Int("containers", len(workloads)),
		slog.Int("hostnames", set.Len()),
	)
	return set, nil
}

func (s *Source) collect(w dockerclient.Workload, set source.HostnameSet) {
	if skip, _ := strconv.ParseBool(w.Labels[LabelSkip]); skip {
		s.logger.Debug("container opted out of DNS",
			slog.String("container", w.Name),
		)
		return
	}

	hints, err := source.HintsFromLabels(w.Labels)
	if err != nil {
		s.logger.Warn("ignoring container with bad dns labels",
			slog.String("container", w.Name),
			slog.String("error", err.Error()),
		)
		return
	}

	names := hostnamesFromLabels(w.Labels)
	for _, hostname := range names {
		if err := source.ValidateHostname(hostname); err != nil {
			s.logger.Warn("ignoring invalid hostname label",
				slog.String("container", w.Name),
				slog.String("hostname", hostname),
			)
			continue
		}
		set.Add(hostname, hints)
	}
}

// hostnamesFromLabels merges explicit dns.hostname entries with Traefik
// router rule hosts, deduplicated in that order.
func hostnamesFromLabels(labels map[string]string) []string {
	seen := make(map[string]struct{})
	var names []string
	add := func(hostname string) {
		hostname = strings.ToLower(strings.TrimSpace(hostname))
		if hostname == "" {
			return
		}
		if _, dup := seen[hostname]; dup {
			return
		}
		seen[hostname] = struct{}{}
		names = append(names, hostname)
	}

	if raw := labels[LabelHostname]; raw != "" {
		for _, hostname := range strings.Split(raw, ",") {
			add(hostname)
		}
	}
	for _, hostname := range traefik.HostsFromLabels(labels) {
		add(hostname)
	}
	return names
}
