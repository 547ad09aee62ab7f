package middleware

import (
	"net"
	"net/http"
	"strings"
)

// BypassEvaluator reports whether a request skips rate limiting and,
// when it does, the matched rule name.
type BypassEvaluator func(r *http.Request) (bool, string)

type RequestBypassConfig struct {
	EnableInternalProbeBypass bool
	EnableTrustedActorBypass  bool
	TrustedActorCIDRs         []string
}

type bypassRule func(r *http.Request) (bool, string)

// NewRequestBypassEvaluator compiles the config into an ordered rule
// chain. It returns nil when no rule could ever match, so callers can
// skip the check entirely.
func NewRequestBypassEvaluator(cfg RequestBypassConfig) BypassEvaluator {
	var rules []bypassRule

	if cfg.EnableInternalProbeBypass {
		rules = append(rules, matchProbePath)
	}
	if cfg.EnableTrustedActorBypass {
		if networks := parseTrustedNetworks(cfg.TrustedActorCIDRs); len(networks) > 0 {
			rules = append(rules, matchTrustedNetwork(networks))
		}
	}
	if len(rules) == 0 {
		return nil
	}

	return func(r *http.Request) (bool, string) {
		if r == nil {
			return false, ""
		}
		for _, rule := range rules {
			if ok, reason := rule(r); ok {
				return true, reason
			}
		}
		return false, ""
	}
}

func matchProbePath(r *http.Request) (bool, string) {
	switch strings.TrimSpace(strings.ToLower(r.URL.Path)) {
	case "/health/live", "/health/ready":
		return true, "internal_probe_path"
	}
	return false, ""
}

func matchTrustedNetwork(networks []*net.IPNet) bypassRule {
	return func(r *http.Request) (bool, string) {
		ip := parseRequestIP(r)
		if ip == nil {
			return false, ""
		}
		for _, network := range networks {
			if network.Contains(ip) {
				return true, "trusted_actor_cidr"
			}
		}
		return false, ""
	}
}

// parseTrustedNetworks drops blanks and malformed entries rather than
// failing startup over one bad CIDR.
func parseTrustedNetworks(cidrs []string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		networks = append(networks, network)
	}
	return networks
}

func parseRequestIP(r *http.Request) net.IP {
	if r == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil || host == "" {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	if host == "" {
		return nil
	}
	return net.ParseIP(host)
}
