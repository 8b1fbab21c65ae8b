package rfc2136

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"gitlab.bluewillows.net/root/zonewarden/pkg/dnsname"
	"gitlab.bluewillows.net/root/zonewarden/pkg/dnsupdate"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

const providerName = "rfc2136"

// Provider implements provider.Adapter over dynamic updates.
//
// RFC 2136 has no record identifiers; the adapter synthesizes one from
// the record tuple so delete can reconstruct the exact resource record.
type Provider struct {
	cfg    Config
	zone   string
	client *dnsupdate.Client
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

// New creates an RFC 2136 provider.
func New(cfg Config, opts ...Option) (*Provider, error) {
	p := &Provider{
		cfg:    cfg,
		zone:   dnsname.Normalize(cfg.Zone),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	updateCfg, err := cfg.updateConfig()
	if err != nil {
		return nil, err
	}
	client, err := dnsupdate.New(updateCfg, dnsupdate.WithLogger(p.logger))
	if err != nil {
		return nil, err
	}
	p.client = client
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
		TTLMin: 30,
		TTLMax: 604800,
		SupportedTypes: []provider.RecordType{
			provider.RecordTypeA, provider.RecordTypeAAAA,
			provider.RecordTypeCNAME, provider.RecordTypeTXT,
			provider.RecordTypeMX, provider.RecordTypeSRV,
			provider.RecordTypeCAA, provider.RecordTypeNS,
		},
	}
}

// Init verifies the server answers for the zone.
func (p *Provider) Init(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return p.wrap("init", err)
	}
	p.logger.Info("rfc2136 provider initialized",
		slog.String("server", p.cfg.Server),
		slog.String("zone", p.zone),
		slog.Bool("tsig", p.cfg.TSIGKeyName != ""),
	)
	return nil
}

// TestConnection re-checks the SOA answer.
func (p *Provider) TestConnection(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return p.wrap("test_connection", err)
	}
	return nil
}

// ListRecords transfers the zone via AXFR.
func (p *Provider) ListRecords(ctx context.Context) ([]provider.Record, error) {
	rrs, err := p.client.Transfer(ctx)
	if err != nil {
		return nil, p.wrap("list", err)
	}

	caps := p.Capabilities()
	out := make([]provider.Record, 0, len(rrs))
	for _, rr := range rrs {
		rec, err := fromRR(rr)
		if err != nil {
			p.logger.Debug("skipping record in zone listing",
				slog.String("name", rr.Name),
				slog.String("type", rr.Type),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !caps.Supports(rec.Type) {
			continue
		}
		rec.ID = encodeID(rec)
		out = append(out, rec)
	}
	return out, nil
}

// CreateRecord inserts the record.
func (p *Provider) CreateRecord(ctx context.Context, intent provider.Intent) (provider.Record, error) {
	rr, err := toRR(intent.Name, intent.Type, intent.Content, intent.TTL, intent.Extras)
	if err != nil {
		return provider.Record{}, provider.WrapError(providerName, "create", provider.ReasonInvalid, err)
	}
	if err := p.client.Insert(ctx, rr); err != nil {
		return provider.Record{}, p.wrap("create", err)
	}

	rec := provider.Record{
		Name:    dnsname.Normalize(intent.Name),
		Type:    intent.Type,
		Content: intent.Content,
		TTL:     intent.TTL,
		Extras:  intent.Extras,
	}
	rec.ID = encodeID(rec)
	return rec, nil
}

// UpdateRecord removes the record the ID describes and inserts the new
// one. Both halves run as separate update transactions; the remove half
// tolerates an already-absent record.
func (p *Provider) UpdateRecord(ctx context.Context, id string, intent provider.Intent) (provider.Record, error) {
	old, err := decodeID(id)
	if err != nil {
		return provider.Record{}, provider.WrapError(providerName, "update", provider.ReasonInvalid, err)
	}

	oldRR, err := toRR(old.Name, old.Type, old.Content, old.TTL, old.Extras)
	if err == nil {
		if err := p.client.Remove(ctx, oldRR); err != nil {
			return provider.Record{}, p.wrap("update", err)
		}
	}
	return p.CreateRecord(ctx, intent)
}

// DeleteRecord removes the record the ID describes. RFC 2136 deletes
// are idempotent; removing an absent record succeeds at the server.
func (p *Provider) DeleteRecord(ctx context.Context, id string) error {
	rec, err := decodeID(id)
	if err != nil {
		return provider.WrapError(providerName, "delete", provider.ReasonInvalid, err)
	}
	rr, err := toRR(rec.Name, rec.Type, rec.Content, rec.TTL, rec.Extras)
	if err != nil {
		return provider.WrapError(providerName, "delete", provider.ReasonInvalid, err)
	}
	if err := p.client.Remove(ctx, rr); err != nil {
		return p.wrap("delete", err)
	}
	return nil
}

// wrap classifies dnsupdate errors into provider reasons.
func (p *Provider) wrap(op string, err error) error {
	reason := provider.ReasonOther
	switch {
	case errors.Is(err, dnsupdate.ErrNotAuth) || errors.Is(err, dnsupdate.ErrRefused):
		reason = provider.ReasonAuth
	case errors.Is(err, dnsupdate.ErrNotZone):
		reason = provider.ReasonInvalid
	case errors.Is(err, dnsupdate.ErrExchange) || errors.Is(err, dnsupdate.ErrTransfer):
		reason = provider.ReasonTransient
	}
	return provider.WrapError(providerName, op, reason, err)
}

// recordTuple is the identity baked into a synthetic record ID.
type recordTuple struct {
	Name    string              `json:"n"`
	Type    provider.RecordType `json:"t"`
	Content string              `json:"c"`
	TTL     int                 `json:"l,omitempty"`
	Extras  provider.Extras     `json:"e,omitempty"`
}

func encodeID(rec provider.Record) string {
	data, _ := json.Marshal(recordTuple{
		Name:    rec.Name,
		Type:    rec.Type,
		Content: rec.Content,
		TTL:     rec.TTL,
		Extras:  rec.Extras,
	})
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeID(id string) (recordTuple, error) {
	data, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return recordTuple{}, fmt.Errorf("malformed record id: %w", err)
	}
	var rec recordTuple
	if err := json.Unmarshal(data, &rec); err != nil {
		return recordTuple{}, fmt.Errorf("malformed record id: %w", err)
	}
	return rec, nil
}
