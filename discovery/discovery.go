// Package discovery advertises and browses aqueduct senders over
// mDNS/DNS-SD. The transport core only consumes the records produced
// here; it never parses discovery protocol bytes itself.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD service senders register under, shared with
// the reference implementation for cross-runtime discovery.
const ServiceType = "_omt._tcp"

const domain = "local."

// SenderRecord describes one discovered sender. The transport core only
// reads these to open a connection.
type SenderRecord struct {
	Name     string
	Host     string
	Port     int
	LastSeen time.Time
}

// Addr returns the record's dialable host:port.
func (r SenderRecord) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Advertiser keeps a sender's mDNS registration alive until Shutdown.
type Advertiser struct {
	server *zeroconf.Server
	log    *slog.Logger
}

// Register advertises a sender as "device (source)" on the local
// network. Shutdown the returned Advertiser when the sender stops.
func Register(deviceName, sourceName string, port int, log *slog.Logger) (*Advertiser, error) {
	if log == nil {
		log = slog.Default()
	}
	instance := fmt.Sprintf("%s (%s)", deviceName, sourceName)

	server, err := zeroconf.Register(instance, ServiceType, domain, port, []string{"version=1.0"}, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register %q: %w", instance, err)
	}

	log = log.With("component", "discovery")
	log.Info("registered source", "instance", instance, "port", port)
	return &Advertiser{server: server, log: log}, nil
}

// Shutdown withdraws the registration.
func (a *Advertiser) Shutdown() {
	a.server.Shutdown()
	a.log.Info("registration withdrawn")
}

// Browse watches for senders until ctx ends, invoking found for each
// record as it appears. It blocks.
func Browse(ctx context.Context, found func(SenderRecord), log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("discovery: resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 8)
	go func() {
		for entry := range entries {
			rec, ok := toRecord(entry)
			if !ok {
				log.Debug("unresolvable service entry", "instance", entry.Instance)
				continue
			}
			found(rec)
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, domain, entries); err != nil {
		return fmt.Errorf("discovery: browse: %w", err)
	}
	<-ctx.Done()
	return nil
}

// First browses until one sender appears or ctx ends. Convenience for
// receivers that just want "the" source on the LAN.
func First(ctx context.Context, log *slog.Logger) (SenderRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan SenderRecord, 1)
	go Browse(ctx, func(r SenderRecord) {
		select {
		case found <- r:
			cancel()
		default:
		}
	}, log)

	select {
	case r := <-found:
		return r, nil
	case <-ctx.Done():
		select {
		case r := <-found:
			return r, nil
		default:
		}
		return SenderRecord{}, fmt.Errorf("discovery: no sender found: %w", ctx.Err())
	}
}

func toRecord(entry *zeroconf.ServiceEntry) (SenderRecord, bool) {
	rec := SenderRecord{
		Name:     entry.Instance,
		Port:     entry.Port,
		LastSeen: time.Now(),
	}
	switch {
	case len(entry.AddrIPv4) > 0:
		rec.Host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		rec.Host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		rec.Host = entry.HostName
	default:
		return SenderRecord{}, false
	}
	return rec, true
}
