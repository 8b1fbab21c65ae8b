package source

import (
	"fmt"
	"strconv"
	"strings"

	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

// Labels in the dns.* namespace, read from container labels in direct
// mode and from router labels in proxy mode.
const (
	LabelSkip     = "dns.skip"
	LabelHostname = "dns.hostname"
	LabelType     = "dns.type"
	LabelContent  = "dns.content"
	LabelTTL      = "dns.ttl"
	LabelProxied  = "dns.proxied"
)

// HintsFromLabels parses the dns.* override labels into IntentHints.
// Absent labels leave the corresponding hint at its zero value.
func HintsFromLabels(labels map[string]string) (IntentHints, error) {
	var hints IntentHints

	if v := labels[LabelSkip]; v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return IntentHints{}, fmt.Errorf("bad %s value %q", LabelSkip, v)
		}
		hints.Skip = skip
	}

	if v := labels[LabelType]; v != "" {
		rtype, ok := provider.ParseRecordType(v)
		if !ok {
			return IntentHints{}, fmt.Errorf("unknown record type %q in %s", v, LabelType)
		}
		hints.Type = rtype
	}
	hints.Content = strings.TrimSpace(labels[LabelContent])

	if v := labels[LabelTTL]; v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil || ttl < 0 {
			return IntentHints{}, fmt.Errorf("bad %s value %q", LabelTTL, v)
		}
		hints.TTL = ttl
	}

	if v := labels[LabelProxied]; v != "" {
		proxied, err := strconv.ParseBool(v)
		if err != nil {
			return IntentHints{}, fmt.Errorf("bad %s value %q", LabelProxied, v)
		}
		hints.Proxied = &proxied
	}

	return hints, nil
}
