// Package advertise announces the node's HTTP surface over mDNS so clients
// on the local network can find cameras without configuration.
package advertise

import (
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"sync"

	"github.com/enbility/zeroconf/v3"

	"github.com/smazurov/camnode/internal/events"
)

// Service type and domain of the advertisement.
const (
	ServiceType = "_camnode._tcp"
	Domain      = "local."
)

// Info describes the advertised node.
type Info struct {
	Instance  string
	Port      int
	CameraID  string
	Autostart bool
	Topic     string
	Version   string
	Interface string // empty means all interfaces
}

// TXT returns the TXT records for info and the current stream state.
func (i Info) TXT(streaming bool) []string {
	txt := []string{
		"id=" + i.CameraID,
		"autostart=" + strconv.FormatBool(i.Autostart),
		"streaming=" + strconv.FormatBool(streaming),
	}
	if i.Topic != "" {
		txt = append(txt, "topic="+i.Topic)
	}
	if i.Version != "" {
		txt = append(txt, "version="+i.Version)
	}
	return txt
}

// Advertiser owns one zeroconf registration and keeps its streaming TXT
// record current.
type Advertiser struct {
	logger *slog.Logger

	mu          sync.Mutex
	info        Info
	server      *zeroconf.Server
	streaming   bool
	unsubscribe func()
}

// New creates an idle advertiser.
func New(logger *slog.Logger) *Advertiser {
	return &Advertiser{logger: logger}
}

// Start registers the service. A running registration is replaced.
func (a *Advertiser) Start(info Info) error {
	if info.Instance == "" {
		info.Instance = "camnode-" + info.CameraID
	}
	if info.Port <= 0 {
		return fmt.Errorf("invalid advertise port %d", info.Port)
	}

	ifaces, err := interfaces(info.Interface)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(info.Instance, ServiceType, Domain, info.Port, info.TXT(a.streaming), ifaces)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	a.server = server
	a.info = info
	a.logger.Info("Advertising node over mDNS", "instance", info.Instance, "service", ServiceType, "port", info.Port)
	return nil
}

// Follow keeps the streaming TXT record in sync with the camera's committed
// stream state.
func (a *Advertiser) Follow(bus *events.Bus) {
	unsub := bus.Subscribe(func(e events.StreamStateChangedEvent) {
		a.mu.Lock()
		defer a.mu.Unlock()
		if e.CameraID != a.info.CameraID || e.Streaming == a.streaming {
			return
		}
		a.streaming = e.Streaming
		if a.server != nil {
			a.server.SetText(a.info.TXT(a.streaming))
		}
	})

	a.mu.Lock()
	a.unsubscribe = unsub
	a.mu.Unlock()
}

// Text returns the TXT records currently advertised.
func (a *Advertiser) Text() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.info.TXT(a.streaming))
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.logger.Info("Stopped mDNS advertisement")
	}
}

func interfaces(name string) ([]net.Interface, error) {
	if name == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("advertise interface %q: %w", name, err)
	}
	return []net.Interface{*iface}, nil
}
