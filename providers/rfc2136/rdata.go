package rfc2136

import (
	"fmt"
	"strconv"
	"strings"

	"gitlab.bluewillows.net/root/zonewarden/pkg/dnsname"
	"gitlab.bluewillows.net/root/zonewarden/pkg/dnsupdate"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

// toRR renders a record in zone-file presentation format. Target names
// get their trailing dot; TXT and CAA values get quoted.
func toRR(name string, rtype provider.RecordType, content string, ttl int, extras provider.Extras) (dnsupdate.RR, error) {
	rr := dnsupdate.RR{
		Name: name,
		Type: string(rtype),
		TTL:  uint32(ttl), //nolint:gosec // ttl is capability-clamped
	}

	switch rtype {
	case provider.RecordTypeA, provider.RecordTypeAAAA:
		rr.Data = content
	case provider.RecordTypeCNAME, provider.RecordTypeNS:
		rr.Data = fqdn(content)
	case provider.RecordTypeTXT:
		rr.Data = strconv.Quote(content)
	case provider.RecordTypeMX:
		if extras.Priority == nil {
			return dnsupdate.RR{}, fmt.Errorf("mx record %s has no priority", name)
		}
		rr.Data = fmt.Sprintf("%d %s", *extras.Priority, fqdn(content))
	case provider.RecordTypeSRV:
		if extras.Priority == nil || extras.Weight == nil || extras.Port == nil {
			return dnsupdate.RR{}, fmt.Errorf("srv record %s missing priority, weight, or port", name)
		}
		rr.Data = fmt.Sprintf("%d %d %d %s", *extras.Priority, *extras.Weight, *extras.Port, fqdn(content))
	case provider.RecordTypeCAA:
		if extras.Tag == "" {
			return dnsupdate.RR{}, fmt.Errorf("caa record %s has no tag", name)
		}
		flags := 0
		if extras.Flags != nil {
			flags = *extras.Flags
		}
		rr.Data = fmt.Sprintf("%d %s %s", flags, extras.Tag, strconv.Quote(content))
	default:
		return dnsupdate.RR{}, fmt.Errorf("unsupported record type %s", rtype)
	}
	return rr, nil
}

// fromRR parses the presentation rdata back into the provider model.
func fromRR(rr dnsupdate.RR) (provider.Record, error) {
	rtype, ok := provider.ParseRecordType(rr.Type)
	if !ok {
		return provider.Record{}, fmt.Errorf("unknown record type %s", rr.Type)
	}

	rec := provider.Record{
		Name: dnsname.Normalize(rr.Name),
		Type: rtype,
		TTL:  int(rr.TTL),
	}

	switch rtype {
	case provider.RecordTypeA, provider.RecordTypeAAAA:
		rec.Content = rr.Data
	case provider.RecordTypeCNAME, provider.RecordTypeNS:
		rec.Content = dnsname.Normalize(rr.Data)
	case provider.RecordTypeTXT:
		rec.Content = unquoteTXT(rr.Data)
	case provider.RecordTypeMX:
		fields := strings.Fields(rr.Data)
		if len(fields) != 2 {
			return provider.Record{}, fmt.Errorf("malformed mx rdata %q", rr.Data)
		}
		prio, err := strconv.Atoi(fields[0])
		if err != nil {
			return provider.Record{}, fmt.Errorf("malformed mx preference %q", fields[0])
		}
		rec.Content = dnsname.Normalize(fields[1])
		rec.Extras.Priority = &prio
	case provider.RecordTypeSRV:
		fields := strings.Fields(rr.Data)
		if len(fields) != 4 {
			return provider.Record{}, fmt.Errorf("malformed srv rdata %q", rr.Data)
		}
		nums := make([]int, 3)
		for i := 0; i < 3; i++ {
			n, err := strconv.Atoi(fields[i])
			if err != nil {
				return provider.Record{}, fmt.Errorf("malformed srv field %q", fields[i])
			}
			nums[i] = n
		}
		rec.Content = dnsname.Normalize(fields[3])
		rec.Extras.Priority = &nums[0]
		rec.Extras.Weight = &nums[1]
		rec.Extras.Port = &nums[2]
	case provider.RecordTypeCAA:
		fields := strings.SplitN(rr.Data, " ", 3)
		if len(fields) != 3 {
			return provider.Record{}, fmt.Errorf("malformed caa rdata %q", rr.Data)
		}
		flags, err := strconv.Atoi(fields[0])
		if err != nil {
			return provider.Record{}, fmt.Errorf("malformed caa flags %q", fields[0])
		}
		rec.Extras.Flags = &flags
		rec.Extras.Tag = fields[1]
		rec.Content = unquoteTXT(fields[2])
	default:
		return provider.Record{}, fmt.Errorf("unsupported record type %s", rtype)
	}
	return rec, nil
}

func fqdn(name string) string {
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}

// unquoteTXT joins the quoted character-strings of a TXT-style rdata.
func unquoteTXT(data string) string {
	var parts []string
	rest := data
	for {
		start := strings.Index(rest, `"`)
		if start < 0 {
			break
		}
		rest = rest[start:]
		segment, err := strconv.Unquote(quotedPrefix(rest))
		if err != nil {
			return strings.Trim(data, `"`)
		}
		parts = append(parts, segment)
		rest = rest[len(quotedPrefix(rest)):]
	}
	if len(parts) == 0 {
		return data
	}
	return strings.Join(parts, "")
}

// quotedPrefix returns the leading quoted string of s, including quotes.
func quotedPrefix(s string) string {
	for i := 1; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == '"' {
			return s[:i+1]
		}
	}
	return s
}
