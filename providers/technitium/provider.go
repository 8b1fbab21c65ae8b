package technitium

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"gitlab.bluewillows.net/root/zonewarden/pkg/dnsname"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

const providerName = "technitium"

// Config holds the Technitium server address, token, and zone.
type Config struct {
	// URL is the server base URL (http://dns.example.com:5380).
	URL string
	// Token is an API token created in the Technitium admin panel.
	Token string
	// Zone is the authoritative zone to manage.
	Zone string
}

// ConfigFromMap builds a Config from the provider's environment map.
func ConfigFromMap(m map[string]string) (Config, error) {
	cfg := Config{
		URL:   m["URL"],
		Token: m["API_TOKEN"],
		Zone:  m["ZONE"],
	}
	if cfg.URL == "" {
		return Config{}, provider.ErrConfigMissing("TECHNITIUM_URL")
	}
	if cfg.Token == "" {
		return Config{}, provider.ErrConfigMissing("TECHNITIUM_API_TOKEN")
	}
	if cfg.Zone == "" {
		return Config{}, provider.ErrConfigMissing("TECHNITIUM_ZONE")
	}
	return cfg, nil
}

// Provider implements provider.Adapter for Technitium DNS Server.
//
// Technitium has no record identifiers; a record is addressed by its
// full tuple. The adapter synthesizes IDs by encoding the tuple, so
// delete and update can reconstruct the API parameters from the ID
// alone.
type Provider struct {
	cfg    Config
	zone   string
	api    *client
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

// New creates a Technitium provider.
func New(cfg Config, opts ...Option) (*Provider, error) {
	p := &Provider{
		cfg:    cfg,
		zone:   dnsname.Normalize(cfg.Zone),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.api = newClient(cfg.URL, cfg.Token, p.logger)
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
		TTLMin: 10,
		TTLMax: 604800,
		SupportedTypes: []provider.RecordType{
			provider.RecordTypeA, provider.RecordTypeAAAA,
			provider.RecordTypeCNAME, provider.RecordTypeTXT,
			provider.RecordTypeMX, provider.RecordTypeSRV,
			provider.RecordTypeCAA, provider.RecordTypeNS,
		},
	}
}

// Init verifies the token and that the zone is served.
func (p *Provider) Init(ctx context.Context) error {
	if err := p.api.ping(ctx); err != nil {
		return err
	}
	if _, err := p.api.listZone(ctx, p.zone); err != nil {
		return err
	}
	p.logger.Info("technitium provider initialized",
		slog.String("url", p.cfg.URL),
		slog.String("zone", p.zone),
	)
	return nil
}

// TestConnection verifies the token still works.
func (p *Provider) TestConnection(ctx context.Context) error {
	return p.api.ping(ctx)
}

// ListRecords returns the enabled records of supported types.
func (p *Provider) ListRecords(ctx context.Context) ([]provider.Record, error) {
	records, err := p.api.listZone(ctx, p.zone)
	if err != nil {
		return nil, err
	}

	caps := p.Capabilities()
	out := make([]provider.Record, 0, len(records))
	for _, r := range records {
		if r.Disabled {
			continue
		}
		rtype, ok := provider.ParseRecordType(r.Type)
		if !ok || !caps.Supports(rtype) {
			continue
		}
		rec := fromAPIRecord(r, rtype)
		rec.ID = encodeID(rec)
		out = append(out, rec)
	}
	return out, nil
}

// CreateRecord adds the record.
func (p *Provider) CreateRecord(ctx context.Context, intent provider.Intent) (provider.Record, error) {
	rdata, err := rdataParams(intent.Type, intent.Content, intent.Extras)
	if err != nil {
		return provider.Record{}, provider.WrapError(providerName, "create", provider.ReasonInvalid, err)
	}
	if err := p.api.addRecord(ctx, p.zone, intent.Name, string(intent.Type), intent.TTL, rdata); err != nil {
		return provider.Record{}, err
	}

	rec := provider.Record{
		Name:    intent.Name,
		Type:    intent.Type,
		Content: intent.Content,
		TTL:     intent.TTL,
		Extras:  intent.Extras,
	}
	rec.ID = encodeID(rec)
	return rec, nil
}

// UpdateRecord deletes the record the ID describes and adds the new one.
// The returned record carries a fresh ID.
func (p *Provider) UpdateRecord(ctx context.Context, id string, intent provider.Intent) (provider.Record, error) {
	old, err := decodeID(id)
	if err != nil {
		return provider.Record{}, provider.WrapError(providerName, "update", provider.ReasonInvalid, err)
	}

	oldData, err := rdataParams(old.Type, old.Content, old.Extras)
	if err != nil {
		return provider.Record{}, provider.WrapError(providerName, "update", provider.ReasonInvalid, err)
	}
	if err := p.api.deleteRecord(ctx, p.zone, old.Name, string(old.Type), oldData); err != nil && !provider.IsNotFound(err) {
		return provider.Record{}, err
	}

	return p.CreateRecord(ctx, intent)
}

// DeleteRecord removes the record the ID describes. An already-absent
// record is success.
func (p *Provider) DeleteRecord(ctx context.Context, id string) error {
	rec, err := decodeID(id)
	if err != nil {
		return provider.WrapError(providerName, "delete", provider.ReasonInvalid, err)
	}
	rdata, err := rdataParams(rec.Type, rec.Content, rec.Extras)
	if err != nil {
		return provider.WrapError(providerName, "delete", provider.ReasonInvalid, err)
	}
	if err := p.api.deleteRecord(ctx, p.zone, rec.Name, string(rec.Type), rdata); err != nil {
		if provider.IsNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

// recordTuple is the identity baked into a synthetic record ID.
type recordTuple struct {
	Name    string              `json:"n"`
	Type    provider.RecordType `json:"t"`
	Content string              `json:"c"`
	Extras  provider.Extras     `json:"e,omitempty"`
}

func encodeID(rec provider.Record) string {
	data, _ := json.Marshal(recordTuple{
		Name:    rec.Name,
		Type:    rec.Type,
		Content: rec.Content,
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

// rdataParams maps a record's content and extras onto the API's
// type-specific parameters.
func rdataParams(rtype provider.RecordType, content string, extras provider.Extras) (url.Values, error) {
	v := url.Values{}
	switch rtype {
	case provider.RecordTypeA, provider.RecordTypeAAAA:
		v.Set("ipAddress", content)
	case provider.RecordTypeCNAME:
		v.Set("cname", content)
	case provider.RecordTypeTXT:
		v.Set("text", content)
	case provider.RecordTypeNS:
		v.Set("nameServer", content)
	case provider.RecordTypeMX:
		v.Set("exchange", content)
		if extras.Priority != nil {
			v.Set("preference", strconv.Itoa(*extras.Priority))
		}
	case provider.RecordTypeSRV:
		v.Set("target", content)
		if extras.Priority == nil || extras.Weight == nil || extras.Port == nil {
			return nil, fmt.Errorf("srv record %s missing priority, weight, or port", content)
		}
		v.Set("priority", strconv.Itoa(*extras.Priority))
		v.Set("weight", strconv.Itoa(*extras.Weight))
		v.Set("port", strconv.Itoa(*extras.Port))
	case provider.RecordTypeCAA:
		v.Set("value", content)
		v.Set("tag", extras.Tag)
		flags := 0
		if extras.Flags != nil {
			flags = *extras.Flags
		}
		v.Set("flags", strconv.Itoa(flags))
	default:
		return nil, fmt.Errorf("unsupported record type %s", rtype)
	}
	return v, nil
}

// fromAPIRecord converts an API record to the provider model.
func fromAPIRecord(r apiRecord, rtype provider.RecordType) provider.Record {
	rec := provider.Record{
		Name: dnsname.Normalize(r.Name),
		Type: rtype,
		TTL:  r.TTL,
	}
	switch rtype {
	case provider.RecordTypeA, provider.RecordTypeAAAA:
		rec.Content = r.RData.IPAddress
	case provider.RecordTypeCNAME:
		rec.Content = dnsname.Normalize(r.RData.CName)
	case provider.RecordTypeTXT:
		rec.Content = r.RData.Text
	case provider.RecordTypeNS:
		rec.Content = dnsname.Normalize(r.RData.NameServer)
	case provider.RecordTypeMX:
		rec.Content = dnsname.Normalize(r.RData.Exchange)
		pref := r.RData.Preference
		rec.Extras.Priority = &pref
	case provider.RecordTypeSRV:
		rec.Content = dnsname.Normalize(r.RData.Target)
		prio, weight, port := r.RData.Priority, r.RData.Weight, r.RData.Port
		rec.Extras.Priority = &prio
		rec.Extras.Weight = &weight
		rec.Extras.Port = &port
	case provider.RecordTypeCAA:
		rec.Content = r.RData.Value
		rec.Extras.Tag = r.RData.Tag
		flags := r.RData.Flags
		rec.Extras.Flags = &flags
	}
	return rec
}
