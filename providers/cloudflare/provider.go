package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cf "github.com/cloudflare/cloudflare-go"

	"gitlab.bluewillows.net/root/zonewarden/pkg/dnsname"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

const providerName = "cloudflare"

// proxiedTTL is the TTL Cloudflare requires on proxied records ("auto").
const proxiedTTL = 1

// Provider implements provider.Adapter for Cloudflare DNS.
type Provider struct {
	cfg    Config
	api    *cf.API
	zoneID string
	zone   string
	logger *slog.Logger
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

// New creates a Cloudflare provider. The zone is resolved in Init.
func New(cfg Config, opts ...Option) (*Provider, error) {
	api, err := cf.NewWithAPIToken(cfg.APIToken)
	if err != nil {
		return nil, fmt.Errorf("cloudflare client: %w", err)
	}

	p := &Provider{
		cfg:    cfg,
		api:    api,
		zone:   dnsname.Normalize(cfg.Zone),
		zoneID: cfg.ZoneID,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
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
		Proxied:        true,
		ProxiedDefault: p.cfg.Proxied,
		TTLMin:         60,
		TTLMax:         86400,
		SupportedTypes: []provider.RecordType{
			provider.RecordTypeA, provider.RecordTypeAAAA,
			provider.RecordTypeCNAME, provider.RecordTypeTXT,
			provider.RecordTypeMX, provider.RecordTypeNS,
		},
	}
}

// Init verifies the token and resolves the zone ID.
func (p *Provider) Init(ctx context.Context) error {
	if _, err := p.api.VerifyAPIToken(ctx); err != nil {
		return p.wrap("init", err)
	}

	if p.zoneID == "" {
		id, err := p.api.ZoneIDByName(p.zone)
		if err != nil {
			return p.wrap("init", fmt.Errorf("resolving zone %s: %w", p.zone, err))
		}
		p.zoneID = id
	}
	if p.zone == "" {
		zone, err := p.api.ZoneDetails(ctx, p.zoneID)
		if err != nil {
			return p.wrap("init", err)
		}
		p.zone = dnsname.Normalize(zone.Name)
	}

	p.logger.Info("cloudflare provider initialized",
		slog.String("zone", p.zone),
		slog.String("zone_id", p.zoneID),
	)
	return nil
}

// TestConnection verifies the token still works.
func (p *Provider) TestConnection(ctx context.Context) error {
	if _, err := p.api.VerifyAPIToken(ctx); err != nil {
		return p.wrap("test_connection", err)
	}
	return nil
}

// ListRecords pages through the zone and returns records of supported
// types.
func (p *Provider) ListRecords(ctx context.Context) ([]provider.Record, error) {
	rc := cf.ZoneIdentifier(p.zoneID)
	caps := p.Capabilities()

	var out []provider.Record
	params := cf.ListDNSRecordsParams{
		ResultInfo: cf.ResultInfo{Page: 1, PerPage: 100},
	}
	for {
		records, info, err := p.api.ListDNSRecords(ctx, rc, params)
		if err != nil {
			return nil, p.wrap("list", err)
		}
		for _, r := range records {
			rtype, ok := provider.ParseRecordType(r.Type)
			if !ok || !caps.Supports(rtype) {
				continue
			}
			out = append(out, fromDNSRecord(r, rtype))
		}
		if info == nil || params.ResultInfo.Page >= info.TotalPages {
			break
		}
		params.ResultInfo.Page++
	}
	return out, nil
}

// CreateRecord creates the record and returns the provider's view of it.
func (p *Provider) CreateRecord(ctx context.Context, intent provider.Intent) (provider.Record, error) {
	proxied := p.proxiedFor(intent)
	rec, err := p.api.CreateDNSRecord(ctx, cf.ZoneIdentifier(p.zoneID), cf.CreateDNSRecordParams{
		Type:     string(intent.Type),
		Name:     intent.Name,
		Content:  intent.Content,
		TTL:      ttlFor(intent.TTL, proxied),
		Proxied:  proxied,
		Priority: priorityFor(intent),
	})
	if err != nil {
		return provider.Record{}, p.wrap("create", err)
	}

	rtype, _ := provider.ParseRecordType(rec.Type)
	return fromDNSRecord(rec, rtype), nil
}

// UpdateRecord replaces the record contents in place.
func (p *Provider) UpdateRecord(ctx context.Context, id string, intent provider.Intent) (provider.Record, error) {
	proxied := p.proxiedFor(intent)
	rec, err := p.api.UpdateDNSRecord(ctx, cf.ZoneIdentifier(p.zoneID), cf.UpdateDNSRecordParams{
		ID:       id,
		Type:     string(intent.Type),
		Name:     intent.Name,
		Content:  intent.Content,
		TTL:      ttlFor(intent.TTL, proxied),
		Proxied:  proxied,
		Priority: priorityFor(intent),
	})
	if err != nil {
		return provider.Record{}, p.wrap("update", err)
	}

	rtype, _ := provider.ParseRecordType(rec.Type)
	return fromDNSRecord(rec, rtype), nil
}

// DeleteRecord removes the record. A record already gone is success.
func (p *Provider) DeleteRecord(ctx context.Context, id string) error {
	err := p.api.DeleteDNSRecord(ctx, cf.ZoneIdentifier(p.zoneID), id)
	if err == nil {
		return nil
	}
	wrapped := p.wrap("delete", err)
	if provider.IsNotFound(wrapped) {
		return nil
	}
	return wrapped
}

// proxiedFor resolves the effective proxied flag: the intent's explicit
// flag wins, otherwise the configured default applies to proxyable types.
func (p *Provider) proxiedFor(intent provider.Intent) *bool {
	if intent.Extras.Proxied != nil {
		return intent.Extras.Proxied
	}
	switch intent.Type {
	case provider.RecordTypeA, provider.RecordTypeAAAA, provider.RecordTypeCNAME:
		v := p.cfg.Proxied
		return &v
	default:
		return nil
	}
}

func ttlFor(ttl int, proxied *bool) int {
	if proxied != nil && *proxied {
		return proxiedTTL
	}
	return ttl
}

func priorityFor(intent provider.Intent) *uint16 {
	if intent.Type != provider.RecordTypeMX || intent.Extras.Priority == nil {
		return nil
	}
	prio := uint16(*intent.Extras.Priority)
	return &prio
}

func fromDNSRecord(r cf.DNSRecord, rtype provider.RecordType) provider.Record {
	rec := provider.Record{
		ID:      r.ID,
		Name:    dnsname.Normalize(r.Name),
		Type:    rtype,
		Content: r.Content,
		TTL:     r.TTL,
	}
	if r.Proxied != nil {
		rec.Extras.Proxied = r.Proxied
	}
	if r.Priority != nil {
		prio := int(*r.Priority)
		rec.Extras.Priority = &prio
	}
	// Proxied records report TTL 1 ("auto"); keep it as-is so
	// equivalence comparison treats proxied TTLs uniformly.
	return rec
}

// wrap classifies a cloudflare-go error by its HTTP status.
func (p *Provider) wrap(op string, err error) error {
	var apiErr *cf.Error
	if errors.As(err, &apiErr) {
		return provider.WrapError(providerName, op, provider.ReasonFromStatus(apiErr.StatusCode), err)
	}
	var reqErr *cf.RequestError
	if errors.As(err, &reqErr) {
		return provider.WrapError(providerName, op, provider.ReasonTransient, err)
	}
	return provider.WrapError(providerName, op, provider.ReasonOther, err)
}
