package amqptransport

import "strings"

// networkVerbs is the fixed list of network verbs routed to
// discovery.network.
var networkVerbs = map[string]bool{
	"ping":        true,
	"traceroute":  true,
	"portscan":    true,
	"dns_lookup":  true,
	"arp_scan":    true,
	"wake_on_lan": true,
}

// toolRoutingKey derives the outbound notification routing key from a
// method/tool name's prefix.
func toolRoutingKey(name string) string {
	switch {
	case strings.HasPrefix(name, "nmap_"):
		return "discovery.nmap"
	case strings.HasPrefix(name, "snmp_"):
		return "discovery.snmp"
	case strings.HasPrefix(name, "proxmox_"):
		return "discovery.proxmox"
	case strings.HasPrefix(name, "zabbix_"):
		return "discovery.zabbix"
	case networkVerbs[name]:
		return "discovery.network"
	case strings.HasPrefix(name, "memory_"), strings.HasPrefix(name, "cmdb_"):
		return "discovery.memory"
	case strings.HasPrefix(name, "credential"):
		return "discovery.credentials"
	default:
		return "discovery.general"
	}
}

// requestRoutingKey returns the session-specific request binding key:
// "<session>.<stream>.requests".
func requestRoutingKey(sessionID, streamID string) string {
	return sessionID + "." + streamID + ".requests"
}

// responseRoutingKey returns the session-specific response binding
// key: "<session>.<stream>.responses".
func responseRoutingKey(sessionID, streamID string) string {
	return sessionID + "." + streamID + ".responses"
}

// genericRequestPatterns are the additional topic-exchange bindings
// every session's request queue carries, so load-balanced worker
// instances can share work regardless of which session a message
// nominally belongs to.
var genericRequestPatterns = []string{
	"mcp.request.#",
	"mcp.tools.#",
	"mcp.resources.#",
	"mcp.prompts.#",
}
