package network

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
)

// EDUCATIONAL: Domain Controller Discovery via DNS SRV Records
//
// Active Directory advertises its services through DNS SRV records:
//
//	_ldap._tcp.corp.local.     600 IN SRV 0 100 389 dc01.corp.local.
//	_kerberos._tcp.corp.local. 600 IN SRV 0 100 88  dc01.corp.local.
//
// The record contains:
//   - Priority (0): Lower = preferred
//   - Weight (100): Load balancing within same priority
//   - Port: service port on the target
//   - Target: FQDN of the host
//
// Every writable DC registers both records, so discovering the LDAP
// server and discovering the KDC are the same lookup with a different
// service name. We query these instead of asking the operator for a
// hostname they may not know.

// SRVTarget is one discovered service host.
type SRVTarget struct {
	Host     string
	Port     int
	Priority int
	Weight   int
}

// Discover queries _<service>._tcp.<domain> and returns the targets
// sorted by priority (lower first), then weight (higher first).
func Discover(ctx context.Context, service, domain string) ([]SRVTarget, error) {
	srvName := fmt.Sprintf("_%s._tcp.%s", service, strings.ToLower(domain))

	_, addrs, err := net.DefaultResolver.LookupSRV(ctx, service, "tcp", domain)
	if err != nil {
		return nil, fmt.Errorf("SRV lookup %s: %w", srvName, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no %s records for domain %s", srvName, domain)
	}

	targets := make([]SRVTarget, len(addrs))
	for i, addr := range addrs {
		targets[i] = SRVTarget{
			Host:     strings.TrimSuffix(addr.Target, "."),
			Port:     int(addr.Port),
			Priority: int(addr.Priority),
			Weight:   int(addr.Weight),
		}
	}

	sort.Slice(targets, func(i, j int) bool {
		if targets[i].Priority != targets[j].Priority {
			return targets[i].Priority < targets[j].Priority
		}
		return targets[i].Weight > targets[j].Weight
	})

	return targets, nil
}

// DiscoverDC returns the best domain controller hostname for a domain
// via the _ldap._tcp SRV record.
func DiscoverDC(ctx context.Context, domain string) (string, error) {
	targets, err := Discover(ctx, "ldap", domain)
	if err != nil {
		return "", err
	}
	return targets[0].Host, nil
}

// ResolveKDC returns a "host:port" KDC address, either from explicit
// configuration or via the _kerberos._tcp SRV record. Every DC is a KDC,
// so an explicit host without a port gets the Kerberos default.
func ResolveKDC(domain, explicitKDC string) (string, error) {
	if explicitKDC != "" {
		if !strings.Contains(explicitKDC, ":") {
			return explicitKDC + ":88", nil
		}
		return explicitKDC, nil
	}

	targets, err := Discover(context.Background(), "kerberos", domain)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", targets[0].Host, targets[0].Port), nil
}
