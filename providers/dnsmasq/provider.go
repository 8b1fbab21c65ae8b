package dnsmasq

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gitlab.bluewillows.net/root/zonewarden/pkg/dnsname"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
	"gitlab.bluewillows.net/root/zonewarden/pkg/sshutil"
)

const providerName = "dnsmasq"

// Provider implements provider.Adapter against a dnsmasq host. Records
// live in one generated configuration fragment; every mutation reads
// the fragment, applies the change, and rewrites it atomically.
//
// dnsmasq has no per-record TTL, so listed records report TTL 0.
type Provider struct {
	cfg    Config
	zone   string
	ssh    *sshutil.Client
	logger *slog.Logger

	// mu serializes read-modify-write cycles on the fragment.
	mu sync.Mutex
}

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a dnsmasq provider.
func New(cfg Config, opts ...Option) (*Provider, error) {
	p := &Provider{
		cfg:    cfg,
		zone:   dnsname.Normalize(cfg.Zone),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	ssh, err := sshutil.NewClient(cfg.SSH, sshutil.WithLogger(p.logger))
	if err != nil {
		return nil, err
	}
	p.ssh = ssh
	return p, nil
}

// Factory builds the adapter for the provider registry.
func Factory(config map[string]string, logger *slog.Logger) (provider.Adapter, error) {
	cfg, err := ConfigFromMap(config)
	if err != nil {
		return nil, err
	}
	return New(cfg, WithLogger(logger))
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) ZoneName() string {
	return p.zone
}

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		SupportedTypes: []provider.RecordType{
			provider.RecordTypeA, provider.RecordTypeAAAA,
			provider.RecordTypeCNAME,
		},
	}
}

// Init connects and verifies the fragment is readable or absent.
func (p *Provider) Init(ctx context.Context) error {
	if err := p.ssh.Connect(ctx); err != nil {
		return p.wrap("init", err)
	}
	if _, err := p.readEntries(ctx); err != nil {
		return p.wrap("init", err)
	}
	p.logger.Info("dnsmasq provider initialized",
		slog.String("host", p.cfg.SSH.Host),
		slog.String("fragment", p.cfg.ConfigPath),
		slog.String("zone", p.zone),
	)
	return nil
}

// TestConnection verifies the SSH session still works.
func (p *Provider) TestConnection(ctx context.Context) error {
	if err := p.ssh.Connect(ctx); err != nil {
		return p.wrap("test_connection", err)
	}
	if _, err := p.ssh.Run(ctx, "true"); err != nil {
		return p.wrap("test_connection", err)
	}
	return nil
}

// ListRecords returns the fragment's records within the zone.
func (p *Provider) ListRecords(ctx context.Context) ([]provider.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := p.readEntries(ctx)
	if err != nil {
		return nil, p.wrap("list", err)
	}

	out := make([]provider.Record, 0, len(entries))
	for _, e := range entries {
		if !p.inZone(e.Name) {
			continue
		}
		out = append(out, provider.Record{
			ID:      e.id(),
			Name:    e.Name,
			Type:    e.Type,
			Content: e.Content,
		})
	}
	return out, nil
}

// CreateRecord adds the record to the fragment and reloads dnsmasq.
func (p *Provider) CreateRecord(ctx context.Context, intent provider.Intent) (provider.Record, error) {
	e := entry{
		Name:    dnsname.Normalize(intent.Name),
		Type:    intent.Type,
		Content: intent.Content,
	}
	if err := p.mutate(ctx, func(entries []entry) []entry {
		return append(removeEntry(entries, e.id()), e)
	}); err != nil {
		return provider.Record{}, p.wrap("create", err)
	}
	return provider.Record{ID: e.id(), Name: e.Name, Type: e.Type, Content: e.Content}, nil
}

// UpdateRecord swaps the old entry for the new one in a single rewrite.
func (p *Provider) UpdateRecord(ctx context.Context, id string, intent provider.Intent) (provider.Record, error) {
	if _, err := parseEntryID(id); err != nil {
		return provider.Record{}, provider.WrapError(providerName, "update", provider.ReasonInvalid, err)
	}
	e := entry{
		Name:    dnsname.Normalize(intent.Name),
		Type:    intent.Type,
		Content: intent.Content,
	}
	if err := p.mutate(ctx, func(entries []entry) []entry {
		return append(removeEntry(entries, id), e)
	}); err != nil {
		return provider.Record{}, p.wrap("update", err)
	}
	return provider.Record{ID: e.id(), Name: e.Name, Type: e.Type, Content: e.Content}, nil
}

// DeleteRecord removes the entry. An absent entry is success.
func (p *Provider) DeleteRecord(ctx context.Context, id string) error {
	if _, err := parseEntryID(id); err != nil {
		return provider.WrapError(providerName, "delete", provider.ReasonInvalid, err)
	}
	if err := p.mutate(ctx, func(entries []entry) []entry {
		return removeEntry(entries, id)
	}); err != nil {
		return p.wrap("delete", err)
	}
	return nil
}

// mutate runs one read-modify-write cycle and reloads dnsmasq when the
// fragment changed.
func (p *Provider) mutate(ctx context.Context, apply func([]entry) []entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := p.readEntries(ctx)
	if err != nil {
		return err
	}

	before := renderFragment(entries)
	after := renderFragment(apply(entries))
	if before == after {
		return nil
	}

	if err := p.ssh.WriteFileAtomic(ctx, p.cfg.ConfigPath, []byte(after), 0o644); err != nil {
		return err
	}
	if p.cfg.ReloadCommand != "" {
		if _, err := p.ssh.Run(ctx, p.cfg.ReloadCommand); err != nil {
			p.logger.Warn("dnsmasq reload failed, fragment written",
				slog.String("command", p.cfg.ReloadCommand),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// readEntries loads the fragment; a missing file is an empty zone.
func (p *Provider) readEntries(ctx context.Context) ([]entry, error) {
	content, err := p.ssh.ReadFile(ctx, p.cfg.ConfigPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return parseFragment(string(content)), nil
}

func (p *Provider) inZone(name string) bool {
	return name == p.zone || strings.HasSuffix(name, "."+p.zone)
}

func removeEntry(entries []entry, id string) []entry {
	out := entries[:0]
	for _, e := range entries {
		if e.id() != id {
			out = append(out, e)
		}
	}
	return out
}

// wrap classifies transport failures: auth failures are permanent,
// everything else on the wire is retryable.
func (p *Provider) wrap(op string, err error) error {
	reason := provider.ReasonTransient
	if errors.Is(err, sshutil.ErrAuthFailed) {
		reason = provider.ReasonAuth
	}
	return provider.WrapError(providerName, op, reason, err)
}
