package mcp

import (
	"fmt"
	"net"
	"strconv"
)

// Port range scanned when no HTTP port is given.
const (
	DefaultPortStart = 8765
	DefaultPortEnd   = 8865
)

// FindAvailablePort returns the first port in [start, end] that host can
// listen on.
func FindAvailablePort(host string, start, end int) (int, error) {
	for port := start; port <= end; port++ {
		listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		_ = listener.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no available port in range %d-%d", start, end)
}
