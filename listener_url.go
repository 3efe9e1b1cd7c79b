package main

import (
	"fmt"
	"net"
	"strings"
)

// listenerURL renders a reachable URL for the configured listen address, used
// by the startup log line.
func listenerURL(address string, tlsEnabled bool) string {
	scheme := "http"
	if tlsEnabled {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, normaliseHostPort(address))
}

// normaliseHostPort rewrites wildcard listen hosts to localhost so the logged
// URL can be pasted straight into a client.
func normaliseHostPort(address string) string {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "localhost"
	}
	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		if strings.HasPrefix(trimmed, ":") {
			return "localhost" + trimmed
		}
		return trimmed
	}
	switch strings.TrimSpace(host) {
	case "", "0.0.0.0", "::", "[::]":
		return net.JoinHostPort("localhost", port)
	default:
		return net.JoinHostPort(strings.TrimSpace(host), port)
	}
}
