package reconciler

import (
	"log/slog"

	"gitlab.bluewillows.net/root/zonewarden/internal/hostlist"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
	"gitlab.bluewillows.net/root/zonewarden/pkg/source"
)

// IPSource supplies the current public addresses for records whose
// content is left implicit.
type IPSource interface {
	IPv4() string
	IPv6() string
}

// buildIntents converts the discovered hostname set and the managed
// entries into the desired record set for this pass. Preserved patterns
// remove discovered hostnames before they become intents; managed
// entries are exempt and win any (type, name) collision with discovery.
func buildIntents(
	discovered source.HostnameSet,
	managed []hostlist.ManagedEntry,
	preserved *hostlist.PreservedMatcher,
	ips IPSource,
	zone string,
	defaultTTL int,
	caps provider.Capabilities,
	logger *slog.Logger,
) []provider.Intent {
	byKey := make(map[provider.Key]provider.Intent)
	var order []provider.Key

	put := func(intent provider.Intent) {
		key := intent.Key()
		if _, exists := byKey[key]; !exists {
			order = append(order, key)
		}
		byKey[key] = intent
	}

	for name := range discovered.Names {
		if preserved.Matches(name) {
			logger.Debug("hostname preserved, leaving it alone",
				slog.String("hostname", name),
			)
			continue
		}

		intent, ok := discoveredIntent(name, discovered.Hints[name], ips, zone, defaultTTL, caps, logger)
		if ok {
			put(intent)
		}
	}

	for _, entry := range managed {
		intent, ok := managedIntent(entry, ips, zone, defaultTTL, caps, logger)
		if ok {
			put(intent)
		}
	}

	intents := make([]provider.Intent, 0, len(byKey))
	for _, key := range order {
		intents = append(intents, byKey[key])
	}
	return intents
}

func discoveredIntent(
	name string,
	hints source.IntentHints,
	ips IPSource,
	zone string,
	defaultTTL int,
	caps provider.Capabilities,
	logger *slog.Logger,
) (provider.Intent, bool) {
	rtype := hints.Type
	if rtype == "" {
		rtype = provider.RecordTypeA
	}

	content := hints.Content
	if content == "" {
		switch rtype {
		case provider.RecordTypeA:
			content = ips.IPv4()
		case provider.RecordTypeAAAA:
			content = ips.IPv6()
		case provider.RecordTypeCNAME:
			content = zone
		}
	}
	if content == "" {
		logger.Warn("no content for discovered hostname, skipping this pass",
			slog.String("hostname", name),
			slog.String("type", string(rtype)),
		)
		return provider.Intent{}, false
	}

	intent := provider.Intent{
		Name:    name,
		Type:    rtype,
		Content: content,
		TTL:     caps.ClampTTL(hints.TTL, defaultTTL),
		Source:  provider.SourceDiscovered,
	}
	if caps.Proxied && hints.Proxied != nil {
		intent.Extras.Proxied = hints.Proxied
	}
	return intent, true
}

func managedIntent(
	entry hostlist.ManagedEntry,
	ips IPSource,
	zone string,
	defaultTTL int,
	caps provider.Capabilities,
	logger *slog.Logger,
) (provider.Intent, bool) {
	content := entry.Content
	if content == "" {
		switch entry.Type {
		case provider.RecordTypeA:
			content = ips.IPv4()
		case provider.RecordTypeAAAA:
			content = ips.IPv6()
		case provider.RecordTypeCNAME:
			content = zone
		}
	}
	if content == "" {
		logger.Warn("no content for managed hostname, skipping this pass",
			slog.String("hostname", entry.Name),
			slog.String("type", string(entry.Type)),
		)
		return provider.Intent{}, false
	}

	intent := provider.Intent{
		Name:    entry.Name,
		Type:    entry.Type,
		Content: content,
		TTL:     caps.ClampTTL(entry.TTL, defaultTTL),
		Source:  provider.SourceManaged,
	}
	if caps.Proxied && entry.Proxied != nil {
		intent.Extras.Proxied = entry.Proxied
	}
	return intent, true
}
