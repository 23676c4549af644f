// Package mdns advertises the server on the local network through the avahi
// daemon so clients can find it without manual configuration.
package mdns

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/holoplot/go-avahi"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

const (
	// ServiceType is the DNS-SD service type for NeoBackup servers.
	ServiceType = "_neobackup._tcp"

	// APIVersion is the API version advertised in TXT records.
	APIVersion = "v1"
)

// Publisher registers one DNS-SD service and withdraws it again.
type Publisher interface {
	Publish(name, serviceType string, port uint16, txt [][]byte) error
	Close() error
}

// Service manages mDNS advertisement for the server.
type Service struct {
	newPublisher func() (Publisher, error)
	publisher    Publisher
	logger       *slog.Logger
	mu           sync.Mutex
}

// NewService creates an mDNS service that publishes through avahi on the
// system bus.
func NewService(logger *slog.Logger) *Service {
	return &Service{
		newPublisher: newAvahiPublisher,
		logger:       logger,
	}
}

// TXTRecords builds the TXT payload for an instance.
func TXTRecords(instance *domain.Instance) [][]byte {
	records := []string{
		"id=" + instance.ID,
		"name=" + instance.Name,
		"api=" + APIVersion,
	}
	if instance.Version != "" {
		records = append(records, "version="+instance.Version)
	}

	txt := make([][]byte, len(records))
	for i, r := range records {
		txt[i] = []byte(r)
	}
	return txt
}

// Start begins advertising the server. A running advertisement is replaced.
// Errors are typically non-fatal: containers often have no avahi daemon.
func (s *Service) Start(instance *domain.Instance, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.publisher != nil {
		_ = s.publisher.Close()
		s.publisher = nil
	}

	pub, err := s.newPublisher()
	if err != nil {
		return fmt.Errorf("connect to avahi: %w", err)
	}
	if err := pub.Publish(instance.Name, ServiceType, uint16(port), TXTRecords(instance)); err != nil {
		_ = pub.Close()
		return fmt.Errorf("publish mDNS service: %w", err)
	}
	s.publisher = pub

	s.logger.Info("mDNS advertisement started",
		"service", ServiceType,
		"port", port,
		"name", instance.Name,
		"id", instance.ID,
	)
	return nil
}

// Running reports whether an advertisement is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publisher != nil
}

// Stop withdraws the advertisement. Safe to call multiple times.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn("failed to withdraw mDNS service", "error", err)
		}
		s.publisher = nil
		s.logger.Info("mDNS advertisement stopped")
	}
}

// avahiPublisher publishes through an avahi entry group.
type avahiPublisher struct {
	conn   *dbus.Conn
	server *avahi.Server
	group  *avahi.EntryGroup
}

func newAvahiPublisher() (Publisher, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w", err)
	}
	server, err := avahi.ServerNew(conn)
	if err != nil {
		return nil, fmt.Errorf("avahi server: %w", err)
	}
	return &avahiPublisher{conn: conn, server: server}, nil
}

func (p *avahiPublisher) Publish(name, serviceType string, port uint16, txt [][]byte) error {
	group, err := p.server.EntryGroupNew()
	if err != nil {
		return fmt.Errorf("entry group: %w", err)
	}
	// Empty domain and host let avahi fill in .local and the machine name.
	err = group.AddService(avahi.InterfaceUnspec, avahi.ProtoUnspec, 0, name, serviceType, "", "", port, txt)
	if err != nil {
		p.server.EntryGroupFree(group)
		return fmt.Errorf("add service: %w", err)
	}
	if err := group.Commit(); err != nil {
		p.server.EntryGroupFree(group)
		return fmt.Errorf("commit: %w", err)
	}
	p.group = group
	return nil
}

func (p *avahiPublisher) Close() error {
	if p.group != nil {
		p.server.EntryGroupFree(p.group)
		p.group = nil
	}
	p.server.Close()
	// The system bus connection is shared and stays open.
	return nil
}
