package connection

import (
	"net"
	"strings"
)

// CountryResolver maps an IP to a two-letter country code. The default
// resolver only classifies loopback/private ranges; production deployments
// plug in a GeoIP-backed resolver at startup.
type CountryResolver func(ip string) string

var countryResolver CountryResolver = defaultCountryResolver

func SetCountryResolver(r CountryResolver) {
	if r != nil {
		countryResolver = r
	}
}

func CountryOf(ip string) string {
	return countryResolver(ip)
}

func defaultCountryResolver(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	if parsed.IsLoopback() || parsed.IsPrivate() {
		return "LAN"
	}
	return ""
}

// Bucket24 collapses an IPv4 address to its /24 bucket ("1.2.3.4" ->
// "1.2.3"). Non-IPv4 addresses bucket to themselves.
func Bucket24(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return ip
	}
	return strings.Join(parts[:3], ".")
}

func hostOnly(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
