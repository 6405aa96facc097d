package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// Advertiser advertises one telemetry server via mDNS.
type Advertiser struct {
	iface string

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser. An empty interface name means
// all interfaces.
func NewAdvertiser(iface string) *Advertiser {
	return &Advertiser{iface: iface}
}

// Advertise registers the server's mDNS service. A previous
// advertisement is replaced.
func (a *Advertiser) Advertise(info *ServerInfo) error {
	if info.Name == "" {
		return ErrMissingName
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	port := info.Port
	if port == 0 {
		port = DefaultPort
	}

	server, err := zeroconf.Register(
		info.Name,
		ServiceType,
		Domain,
		port,
		encodeTXT(info),
		a.interfaces(),
	)
	if err != nil {
		return fmt.Errorf("failed to register telemetry service: %w", err)
	}

	a.server = server
	return nil
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// interfaces returns the interfaces to advertise on. Nil means all.
func (a *Advertiser) interfaces() []net.Interface {
	if a.iface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.iface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Browser locates telemetry servers via mDNS.
type Browser struct {
	iface string
}

// NewBrowser creates a browser. An empty interface name means all
// interfaces.
func NewBrowser(iface string) *Browser {
	return &Browser{iface: iface}
}

// Browse emits discovered servers until the context is cancelled.
// Entries from multiple interfaces are aggregated by instance name.
func (b *Browser) Browse(ctx context.Context) (<-chan *ServerService, error) {
	out := make(chan *ServerService)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)

		seen := make(map[string]*ServerService)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := entryToService(entry)
				if svc == nil {
					continue
				}
				if existing, found := seen[svc.InstanceName]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				seen[svc.InstanceName] = svc
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				delete(seen, entry.Instance)

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.options()...)
	}()

	return out, nil
}

// FindFirst returns the first discovered server, or ErrNotFound when
// the context expires first.
func (b *Browser) FindFirst(ctx context.Context) (*ServerService, error) {
	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	select {
	case svc, ok := <-results:
		if !ok {
			return nil, ErrNotFound
		}
		return svc, nil
	case <-ctx.Done():
		return nil, ErrNotFound
	}
}

// options builds zeroconf client options.
func (b *Browser) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.iface != "" {
		if iface, err := net.InterfaceByName(b.iface); err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// entryToService converts one raw mDNS entry.
func entryToService(entry *zeroconf.ServiceEntry) *ServerService {
	if entry == nil {
		return nil
	}

	svc := &ServerService{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         entry.Port,
	}
	for _, addr := range entry.AddrIPv4 {
		svc.Addresses = append(svc.Addresses, addr.String())
	}
	for _, addr := range entry.AddrIPv6 {
		svc.Addresses = append(svc.Addresses, addr.String())
	}
	decodeTXT(entry.Text, svc)
	return svc
}

// mergeAddresses appends addresses not already present.
func mergeAddresses(existing, extra []string) []string {
	known := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		known[a] = struct{}{}
	}
	for _, a := range extra {
		if _, ok := known[a]; !ok {
			existing = append(existing, a)
		}
	}
	return existing
}
