// Package tenancy maps a request host to a tenant and decides whether a
// user may act without one.
package tenancy

import (
	"net"
	"strings"
)

// hostname lowercases host and strips the port and IPv6 brackets.
func hostname(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if hh, _, err := net.SplitHostPort(h); err == nil {
		h = hh
	}
	h = strings.TrimSuffix(h, ".")
	return strings.Trim(h, "[]")
}

// IsLocalHost is true for localhost, IPv4 literals and IPv6 loopback.
func IsLocalHost(host string) bool {
	h := hostname(host)
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && (ip.To4() != nil || ip.IsLoopback())
}

// SubdomainFromHost returns the first label of a host with more than two
// labels, unless that label is "www" or the host is local.
//
//	acme.crm.example.com:8080 -> acme
//	www.crm.example.com       -> none
//	example.com               -> none
//	127.0.0.1:3000            -> none
func SubdomainFromHost(host string) (string, bool) {
	h := hostname(host)
	if h == "" || IsLocalHost(h) {
		return "", false
	}
	labels := strings.Split(h, ".")
	if len(labels) <= 2 || labels[0] == "" || labels[0] == "www" {
		return "", false
	}
	return labels[0], true
}
