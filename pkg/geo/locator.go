package geo

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Locator resolves an IP address to a Location.
// A nil Location with a nil error means the address is unknown to the locator.
type Locator interface {
	Lookup(ip string) (*Location, error)
}

// NoopLocator never knows any address.
type NoopLocator struct{}

func (NoopLocator) Lookup(string) (*Location, error) { return nil, nil }

// MaxMindLocator reads a GeoLite2/GeoIP2 City database.
type MaxMindLocator struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
}

// OpenMaxMind opens the database at path.
func OpenMaxMind(path string) (*MaxMindLocator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	slog.Info("GeoIP database loaded", "path", path, "type", reader.Metadata().DatabaseType)
	return &MaxMindLocator{reader: reader}, nil
}

func (m *MaxMindLocator) Lookup(ip string) (*Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reader == nil {
		return nil, fmt.Errorf("geoip database is closed")
	}

	record, err := m.reader.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("geoip lookup %s: %w", ip, err)
	}
	if record.Country.IsoCode == "" && record.City.GeoNameID == 0 {
		return nil, nil
	}

	loc := &Location{
		Country:  record.Country.Names["en"],
		City:     record.City.Names["en"],
		Timezone: record.Location.TimeZone,
		Source:   SourceGeoIP,
	}
	if loc.Country == "" {
		loc.Country = record.Country.IsoCode
	}
	// GeoLite2 reports 0,0 when it only knows the country
	if record.Location.Latitude != 0 || record.Location.Longitude != 0 {
		lat, lon := record.Location.Latitude, record.Location.Longitude
		loc.Latitude, loc.Longitude = &lat, &lon
	}
	return loc, nil
}

// Close releases the database.
func (m *MaxMindLocator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reader == nil {
		return nil
	}
	err := m.reader.Close()
	m.reader = nil
	return err
}

// StaticEntry maps a prefix to a fixed location.
type StaticEntry struct {
	Prefix   netip.Prefix
	Location Location
}

// StaticLocator answers from an in-memory prefix table, longest prefix first.
// It serves tests and the in-memory binary.
type StaticLocator struct {
	entries []StaticEntry
}

// NewStaticLocator builds a locator from CIDR strings.
func NewStaticLocator(table map[string]Location) (*StaticLocator, error) {
	s := &StaticLocator{}
	for cidr, loc := range table {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("parse prefix %q: %w", cidr, err)
		}
		s.Add(prefix, loc)
	}
	return s, nil
}

// Add inserts a prefix, keeping entries ordered by prefix length descending.
func (s *StaticLocator) Add(prefix netip.Prefix, loc Location) {
	loc.Source = SourceStatic
	entry := StaticEntry{Prefix: prefix.Masked(), Location: loc}
	i := 0
	for i < len(s.entries) && s.entries[i].Prefix.Bits() >= prefix.Bits() {
		i++
	}
	s.entries = append(s.entries, StaticEntry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = entry
}

func (s *StaticLocator) Lookup(ip string) (*Location, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, nil
	}
	addr = addr.Unmap()
	for _, e := range s.entries {
		if e.Prefix.Contains(addr) {
			loc := e.Location
			return &loc, nil
		}
	}
	return nil, nil
}
