// Package dnsupdate is a small RFC 2136 dynamic-update client used by the
// rfc2136 provider adapter. Records are handled in presentation format so
// callers never touch miekg/dns wire types directly.
package dnsupdate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"
)

// Sentinel errors mapped from DNS response codes.
var (
	ErrRefused  = errors.New("dns update refused")
	ErrNotAuth  = errors.New("server not authoritative or tsig rejected")
	ErrNotZone  = errors.New("name not within zone")
	ErrExchange = errors.New("dns exchange failed")
	ErrTransfer = errors.New("zone transfer failed")
)

const defaultTimeout = 10 * time.Second

// Config describes the target server and zone.
type Config struct {
	// Server is the authoritative server hostname or address.
	Server string
	// Port defaults to 53.
	Port int
	// Zone is the zone all updates are scoped to.
	Zone string
	// TCP forces TCP transport. AXFR always uses TCP.
	TCP bool
	// Timeout bounds a single exchange. Zero means 10s.
	Timeout time.Duration
	// TSIG is optional transaction authentication.
	TSIG *TSIG
}

// Addr returns the server address in host:port form.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = 53
	}
	return net.JoinHostPort(c.Server, strconv.Itoa(port))
}

// Client issues dynamic updates and zone queries against one zone.
type Client struct {
	cfg    Config
	zone   string // fqdn form
	dns    *dns.Client
	logger *slog.Logger
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client for the configured zone.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Server == "" {
		return nil, errors.New("dnsupdate: server is required")
	}
	if cfg.Zone == "" {
		return nil, errors.New("dnsupdate: zone is required")
	}

	c := &Client{
		cfg:    cfg,
		zone:   dns.Fqdn(cfg.Zone),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	c.dns = &dns.Client{Timeout: timeout}
	if cfg.TCP {
		c.dns.Net = "tcp"
	}
	if cfg.TSIG != nil {
		c.dns.TsigSecret = cfg.TSIG.secretMap()
	}
	return c, nil
}

// Zone returns the zone in fqdn form.
func (c *Client) Zone() string {
	return c.zone
}

// Ping queries the zone SOA to verify the server answers for the zone.
func (c *Client) Ping(ctx context.Context) error {
	msg := new(dns.Msg)
	msg.SetQuestion(c.zone, dns.TypeSOA)
	msg.RecursionDesired = false

	resp, _, err := c.dns.ExchangeContext(ctx, msg, c.cfg.Addr())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExchange, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return rcodeError(resp.Rcode)
	}
	return nil
}

// Insert adds the record to the zone.
func (c *Client) Insert(ctx context.Context, rec RR) error {
	rr, err := rec.build()
	if err != nil {
		return err
	}
	msg := new(dns.Msg)
	msg.SetUpdate(c.zone)
	msg.Insert([]dns.RR{rr})
	return c.update(ctx, msg, "insert", rec)
}

// Replace removes every record of the same name and type, then inserts
// the record, in one update transaction.
func (c *Client) Replace(ctx context.Context, rec RR) error {
	rr, err := rec.build()
	if err != nil {
		return err
	}
	msg := new(dns.Msg)
	msg.SetUpdate(c.zone)
	msg.RemoveRRset([]dns.RR{rr})
	msg.Insert([]dns.RR{rr})
	return c.update(ctx, msg, "replace", rec)
}

// Remove deletes the exact record from the zone.
func (c *Client) Remove(ctx context.Context, rec RR) error {
	rr, err := rec.build()
	if err != nil {
		return err
	}
	msg := new(dns.Msg)
	msg.SetUpdate(c.zone)
	msg.Remove([]dns.RR{rr})
	return c.update(ctx, msg, "remove", rec)
}

func (c *Client) update(ctx context.Context, msg *dns.Msg, op string, rec RR) error {
	if c.cfg.TSIG != nil {
		c.cfg.TSIG.sign(msg)
	}

	resp, rtt, err := c.dns.ExchangeContext(ctx, msg, c.cfg.Addr())
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrExchange, op, err)
	}
	if err := rcodeError(resp.Rcode); err != nil {
		return fmt.Errorf("%s %s %s: %w", op, rec.Type, rec.Name, err)
	}

	c.logger.Debug("dns update applied",
		slog.String("op", op),
		slog.String("name", rec.Name),
		slog.String("type", rec.Type),
		slog.Duration("rtt", rtt),
	)
	return nil
}

// Transfer lists the zone via AXFR. SOA and NS infrastructure records
// are omitted, as are types the RR model cannot represent.
func (c *Client) Transfer(ctx context.Context) ([]RR, error) {
	transfer := &dns.Transfer{}
	msg := new(dns.Msg)
	msg.SetAxfr(c.zone)
	if c.cfg.TSIG != nil {
		transfer.TsigSecret = c.cfg.TSIG.secretMap()
		c.cfg.TSIG.sign(msg)
	}

	envelopes, err := transfer.In(msg, c.cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransfer, err)
	}

	var out []RR
	for env := range envelopes {
		if env.Error != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransfer, env.Error)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, rr := range env.RR {
			hdr := rr.Header()
			if hdr.Rrtype == dns.TypeSOA || hdr.Rrtype == dns.TypeNS {
				continue
			}
			rec, ok := fromRR(rr)
			if !ok {
				c.logger.Debug("skipping record in transfer",
					slog.String("name", hdr.Name),
					slog.String("type", dns.TypeToString[hdr.Rrtype]),
				)
				continue
			}
			out = append(out, rec)
		}
	}

	c.logger.Debug("zone transfer complete",
		slog.String("zone", c.zone),
		slog.Int("records", len(out)),
	)
	return out, nil
}

// Lookup queries the server directly for records of one name and type.
// Used as a fallback when the server refuses AXFR.
func (c *Client) Lookup(ctx context.Context, name, rtype string) ([]RR, error) {
	qtype, ok := dns.StringToType[rtype]
	if !ok {
		return nil, fmt.Errorf("unknown record type %q", rtype)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = false

	resp, _, err := c.dns.ExchangeContext(ctx, msg, c.cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchange, err)
	}
	if resp.Rcode == dns.RcodeNameError {
		return nil, nil
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, rcodeError(resp.Rcode)
	}

	out := make([]RR, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		if rec, ok := fromRR(rr); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func rcodeError(rcode int) error {
	switch rcode {
	case dns.RcodeSuccess:
		return nil
	case dns.RcodeRefused:
		return ErrRefused
	case dns.RcodeNotAuth:
		return ErrNotAuth
	case dns.RcodeNotZone:
		return ErrNotZone
	default:
		return fmt.Errorf("%w: %s", ErrExchange, dns.RcodeToString[rcode])
	}
}
