// Package discovery advertises a running multivu server over mDNS and finds
// servers on the local network.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/pkg/errors"
)

const (
	// ServiceType is the mDNS service type of a multivu server.
	ServiceType = "_multivu._tcp"
	// DefaultBrowseTimeout bounds a Browse call when no timeout is given.
	DefaultBrowseTimeout = 3 * time.Second
)

// Service describes an advertised server.
type Service struct {
	Instance string
	Addr     string
	Flavor   string
	Options  string
	Version  string
}

// Announcement is what a server advertises about itself.
type Announcement struct {
	// Instance names the server. Default: the host name.
	Instance string
	// Addr is the listening address of the server.
	Addr    *net.TCPAddr
	Flavor  string
	Options string
	Version string
}

// Advertiser answers mDNS queries for one server until Shutdown.
type Advertiser struct {
	mu     sync.Mutex
	server *mdns.Server
}

// Advertise starts answering mDNS queries for a.
func Advertise(a Announcement) (*Advertiser, error) {
	if a.Addr == nil {
		return nil, errors.New("advertise: listening address is required")
	}
	instance := a.Instance
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, errors.Wrap(err, "advertise: host name")
		}
		instance = host
	}

	var ips []net.IP
	if a.Addr.IP == nil || a.Addr.IP.IsUnspecified() {
		ips = localIPs()
	} else {
		ips = []net.IP{a.Addr.IP}
	}

	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", a.Addr.Port, ips, txtRecords(a))
	if err != nil {
		return nil, errors.Wrap(err, "create mDNS service")
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, errors.Wrap(err, "create mDNS server")
	}
	return &Advertiser{server: server}, nil
}

// Shutdown stops answering queries. Safe to call more than once.
func (a *Advertiser) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return nil
	}
	err := a.server.Shutdown()
	a.server = nil
	return err
}

func txtRecords(a Announcement) []string {
	return []string{
		"flavor=" + a.Flavor,
		"options=" + a.Options,
		"version=" + a.Version,
	}
}

// Browse queries the local network for servers until timeout elapses or
// ctx is canceled.
func Browse(ctx context.Context, timeout time.Duration) ([]Service, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	var (
		mu       sync.Mutex
		services []Service
		seen     = make(map[string]bool)
	)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for entry := range entries {
			svc, ok := parseEntry(entry)
			if !ok {
				continue
			}
			mu.Lock()
			if !seen[svc.Addr] {
				seen[svc.Addr] = true
				services = append(services, svc)
			}
			mu.Unlock()
		}
	}()

	queryErr := make(chan error, 1)
	go func() {
		queryErr <- mdns.Query(&mdns.QueryParam{
			Service:             ServiceType,
			Domain:              "local",
			Timeout:             timeout,
			Entries:             entries,
			WantUnicastResponse: true,
			DisableIPv6:         true,
		})
		close(entries)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-queryErr:
		<-collected
		if err != nil {
			return nil, errors.Wrap(err, "mDNS query")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return services, nil
}

// parseEntry converts an mDNS answer into a Service.
func parseEntry(entry *mdns.ServiceEntry) (Service, bool) {
	if entry == nil {
		return Service{}, false
	}

	var ip net.IP
	switch {
	case entry.AddrV4 != nil:
		ip = entry.AddrV4
	case entry.AddrV6 != nil:
		ip = entry.AddrV6
	default:
		return Service{}, false
	}

	svc := Service{
		Instance: instanceName(entry.Name),
		Addr:     net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port)),
	}
	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "flavor":
			svc.Flavor = value
		case "options":
			svc.Options = value
		case "version":
			svc.Version = value
		}
	}
	return svc, true
}

// instanceName strips the service suffix from a fully qualified name.
func instanceName(name string) string {
	if i := strings.Index(name, "."+ServiceType); i > 0 {
		name = name[:i]
	}
	return strings.ReplaceAll(name, `\ `, " ")
}

// localIPs returns the non-loopback IPv4 addresses of this host.
func localIPs() []net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var ips []net.IP
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			ips = append(ips, v4)
		}
	}
	return ips
}

func (s Service) String() string {
	return fmt.Sprintf("%s %s flavor=%s options=%s", s.Instance, s.Addr, s.Flavor, s.Options)
}
