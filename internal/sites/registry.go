// Package sites provides the static launch site registry.
package sites

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/couchcryptid/launch-advisor/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed sites.yaml
var defaultRegistry []byte

// Registry maps site codes to launch sites. It is built once at startup and
// only read afterwards, so lookups need no locking.
type Registry struct {
	sites  []domain.LaunchSite
	byCode map[string]int
}

type registryFile struct {
	Defaults struct {
		Limits yaml.Node `yaml:"limits"`
	} `yaml:"defaults"`
	Sites []siteEntry `yaml:"sites"`
}

type siteEntry struct {
	Code   string    `yaml:"code"`
	Name   string    `yaml:"name"`
	Lat    float64   `yaml:"lat"`
	Lon    float64   `yaml:"lon"`
	Limits yaml.Node `yaml:"limits"`
}

// Load reads the registry from path, or the embedded registry when path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Parse(defaultRegistry)
	}
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site registry: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML registry document.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse site registry: %w", err)
	}

	defaults := domain.DefaultLimits()
	if err := decodeLimits(&file.Defaults.Limits, &defaults); err != nil {
		return nil, fmt.Errorf("parse default limits: %w", err)
	}

	list := make([]domain.LaunchSite, 0, len(file.Sites))
	for _, e := range file.Sites {
		limits := defaults
		if err := decodeLimits(&e.Limits, &limits); err != nil {
			return nil, fmt.Errorf("parse limits for site %q: %w", e.Code, err)
		}
		list = append(list, domain.LaunchSite{
			Code:   strings.TrimSpace(e.Code),
			Name:   strings.TrimSpace(e.Name),
			Lat:    e.Lat,
			Lon:    e.Lon,
			Limits: limits,
		})
	}
	return New(list)
}

// New validates sites and builds a registry preserving their order.
func New(list []domain.LaunchSite) (*Registry, error) {
	if len(list) == 0 {
		return nil, errors.New("site registry is empty")
	}

	r := &Registry{
		sites:  make([]domain.LaunchSite, len(list)),
		byCode: make(map[string]int, len(list)),
	}
	copy(r.sites, list)

	for i, s := range r.sites {
		if err := validateSite(s); err != nil {
			return nil, err
		}
		if _, dup := r.byCode[s.Code]; dup {
			return nil, fmt.Errorf("duplicate site code %q", s.Code)
		}
		r.byCode[s.Code] = i
	}
	return r, nil
}

// Lookup returns the site registered under code.
func (r *Registry) Lookup(code string) (domain.LaunchSite, bool) {
	i, ok := r.byCode[code]
	if !ok {
		return domain.LaunchSite{}, false
	}
	return r.sites[i], true
}

// List returns every site in registry order.
func (r *Registry) List() []domain.LaunchSite {
	out := make([]domain.LaunchSite, len(r.sites))
	copy(out, r.sites)
	return out
}

// Codes returns every site code in registry order.
func (r *Registry) Codes() []string {
	codes := make([]string, len(r.sites))
	for i, s := range r.sites {
		codes[i] = s.Code
	}
	return codes
}

// Len returns the number of registered sites.
func (r *Registry) Len() int {
	return len(r.sites)
}

// decodeLimits overlays the limits present in node onto dst. An absent node
// leaves dst untouched.
func decodeLimits(node *yaml.Node, dst *domain.Limits) error {
	if node == nil || node.Kind == 0 {
		return nil
	}
	return node.Decode(dst)
}

func validateSite(s domain.LaunchSite) error {
	if s.Code == "" {
		return errors.New("site code is required")
	}
	if s.Name == "" {
		return fmt.Errorf("site %q: name is required", s.Code)
	}
	if s.Lat < -90 || s.Lat > 90 {
		return fmt.Errorf("site %q: latitude %v out of range", s.Code, s.Lat)
	}
	if s.Lon < -180 || s.Lon > 180 {
		return fmt.Errorf("site %q: longitude %v out of range", s.Code, s.Lon)
	}
	l := s.Limits
	if l.MaxWindKn <= 0 || l.MaxGustKn <= 0 || l.MaxPrecipitationMm <= 0 || l.MinCloudCeilingFt <= 0 {
		return fmt.Errorf("site %q: wind, gust, precipitation and ceiling limits must be positive", s.Code)
	}
	if l.MinTempC >= l.MaxTempC {
		return fmt.Errorf("site %q: min_temp_c must be below max_temp_c", s.Code)
	}
	if l.MaxLightningProbability <= 0 || l.MaxLightningProbability > 1 {
		return fmt.Errorf("site %q: max_lightning_probability must be in (0,1]", s.Code)
	}
	return nil
}
