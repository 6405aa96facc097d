package discovery

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ServiceType is the DNS-SD service type for telemetry servers.
	ServiceType = "_telemflow._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default telemetry server port.
	DefaultPort = 8080
)

// Discovery errors.
var (
	ErrMissingName = errors.New("missing instance name")
	ErrNotFound    = errors.New("no server found")
)

// ServerInfo describes one advertised telemetry server.
type ServerInfo struct {
	// Name is the instance name (e.g. the vehicle name).
	Name string

	// Port the server listens on. Zero means DefaultPort.
	Port int

	// WSPath is the websocket stream path.
	WSPath string

	// APIPath is the historical HTTP API base path.
	APIPath string

	// Version is the server software version.
	Version string
}

// ServerService is one discovered telemetry server.
type ServerService struct {
	InstanceName string
	Host         string
	Port         int
	Addresses    []string
	WSPath       string
	APIPath      string
	Version      string
}

// WSURL returns the websocket URL for the first address.
func (s *ServerService) WSURL() string {
	if len(s.Addresses) == 0 {
		return ""
	}
	return fmt.Sprintf("ws://%s:%d%s", s.Addresses[0], s.Port, s.WSPath)
}

// APIURL returns the HTTP API base URL for the first address.
func (s *ServerService) APIURL() string {
	if len(s.Addresses) == 0 {
		return ""
	}
	return fmt.Sprintf("http://%s:%d%s", s.Addresses[0], s.Port, s.APIPath)
}

// encodeTXT builds the TXT records for a server advertisement.
func encodeTXT(info *ServerInfo) []string {
	txt := []string{
		"ws=" + info.WSPath,
		"api=" + info.APIPath,
	}
	if info.Version != "" {
		txt = append(txt, "v="+info.Version)
	}
	return txt
}

// decodeTXT extracts server fields from TXT records. Unknown keys are
// ignored.
func decodeTXT(txt []string, svc *ServerService) {
	for _, record := range txt {
		key, value, ok := strings.Cut(record, "=")
		if !ok {
			continue
		}
		switch key {
		case "ws":
			svc.WSPath = value
		case "api":
			svc.APIPath = value
		case "v":
			svc.Version = value
		}
	}
}
