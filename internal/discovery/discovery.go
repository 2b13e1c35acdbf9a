// Package discovery finds PulseAudio servers announced over mDNS.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"

	"github.com/grandcat/zeroconf"
	log "github.com/sirupsen/logrus"
)

// Service is what module-zeroconf-publish announces.
const Service = "_pulse-server._tcp"

type Server struct {
	Instance string
	Host     string
	IP       net.IP
	Port     int
	Text     []string
}

// Address is the server string accepted by --server and PULSE_SERVER.
func (s Server) Address() string {
	return "tcp:" + net.JoinHostPort(s.IP.String(), strconv.Itoa(s.Port))
}

func (s Server) String() string {
	return fmt.Sprintf("%s (%s) %s", s.Instance, s.Host, s.Address())
}

// Browse collects announcements until ctx is done. Servers are deduplicated
// by instance name and sorted.
func Browse(ctx context.Context) ([]Server, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolver: %w", err)
	}

	found := map[string]Server{}
	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				s, ok := fromEntry(entry)
				if !ok {
					continue
				}
				if _, seen := found[s.Instance]; !seen {
					log.WithFields(log.Fields{"instance": s.Instance, "addr": s.Address()}).Debug("discovered server")
				}
				found[s.Instance] = s
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, Service, "local.", entries); err != nil {
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}
	<-done

	out := make([]Server, 0, len(found))
	for _, s := range found {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out, nil
}

// fromEntry prefers an IPv4 address.
func fromEntry(e *zeroconf.ServiceEntry) (Server, bool) {
	if e == nil {
		return Server{}, false
	}
	var ip net.IP
	switch {
	case len(e.AddrIPv4) > 0:
		ip = e.AddrIPv4[0]
	case len(e.AddrIPv6) > 0:
		ip = e.AddrIPv6[0]
	default:
		return Server{}, false
	}
	return Server{
		Instance: e.Instance,
		Host:     e.HostName,
		IP:       ip,
		Port:     e.Port,
		Text:     e.Text,
	}, true
}
