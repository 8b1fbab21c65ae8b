package dnsupdate

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// RR is one record in presentation format: Data holds the rdata exactly
// as it would appear in a zone file ("192.0.2.1", "10 mail.example.com.",
// "0 issue \"letsencrypt.org\"").
type RR struct {
	Name string
	Type string
	TTL  uint32
	Data string
}

// build parses the record into a miekg/dns resource record.
func (r RR) build() (dns.RR, error) {
	if r.Name == "" || r.Type == "" || r.Data == "" {
		return nil, fmt.Errorf("incomplete record %s %s %q", r.Name, r.Type, r.Data)
	}
	text := fmt.Sprintf("%s %d IN %s %s", dns.Fqdn(r.Name), r.TTL, strings.ToUpper(r.Type), r.Data)
	rr, err := dns.NewRR(text)
	if err != nil {
		return nil, fmt.Errorf("invalid record %q: %w", text, err)
	}
	if rr == nil {
		return nil, fmt.Errorf("empty record %q", text)
	}
	return rr, nil
}

// fromRR converts a miekg/dns resource record back into presentation
// form. Returns false for types without a presentation rendering.
func fromRR(rr dns.RR) (RR, bool) {
	hdr := rr.Header()
	typeName, ok := dns.TypeToString[hdr.Rrtype]
	if !ok {
		return RR{}, false
	}

	// rr.String() is the header rendering followed by the rdata.
	data := strings.TrimPrefix(rr.String(), hdr.String())
	data = strings.TrimSpace(data)
	if data == "" {
		return RR{}, false
	}

	return RR{
		Name: strings.TrimSuffix(hdr.Name, "."),
		Type: typeName,
		TTL:  hdr.Ttl,
		Data: data,
	}, true
}
