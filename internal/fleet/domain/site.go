package domain

import (
	"sort"
	"time"
)

// LocationType classifies a site for runtime threshold lookups.
type LocationType string

const (
	LocationUrban LocationType = "urban"
	LocationRural LocationType = "rural"
)

// ParseLocationType accepts only the known location types.
func ParseLocationType(value string) (LocationType, bool) {
	switch LocationType(value) {
	case LocationUrban, LocationRural:
		return LocationType(value), true
	default:
		return "", false
	}
}

// Coords is a geographic position.
type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Site is a physical location hosting power plants.
type Site struct {
	ID                 string       `json:"id"`
	SiteNum            string       `json:"siteNum"`
	Name               string       `json:"name"`
	Address            string       `json:"address,omitempty"`
	Notes              string       `json:"notes,omitempty"`
	AccessInstructions string       `json:"accessInstructions,omitempty"`
	LocationType       LocationType `json:"locationType,omitempty"`
	Coords             *Coords      `json:"coords,omitempty"`
	Region             string       `json:"region,omitempty"`
	GeneratorID        string       `json:"generatorId,omitempty"`
}

// SiteConfig is one version of a site's configuration.
type SiteConfig struct {
	ID          string    `json:"id"`
	SiteID      string    `json:"siteId"`
	Date        time.Time `json:"date"`
	IsCurrent   bool      `json:"isCurrent"`
	GeneratorID string    `json:"generatorId,omitempty"`
}

// HasGenerator reports whether the version references a generator.
func (c SiteConfig) HasGenerator() bool {
	return c.GeneratorID != ""
}

// Generator is a backup generator installed at a site.
type Generator struct {
	ID          string     `json:"id"`
	SiteID      string     `json:"siteId"`
	Model       string     `json:"model,omitempty"`
	InstallDate time.Time  `json:"installDate"`
	RemovalDate *time.Time `json:"removalDate,omitempty"`
}

// AssociationType names a user role at a site.
type AssociationType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AssociationPrimaryTechnician is the role reassigned by general updates.
const AssociationPrimaryTechnician = "primary-technician"

// SiteUserAssociation links a user to a site with a role.
type SiteUserAssociation struct {
	ID                string `json:"id"`
	SiteID            string `json:"siteId"`
	UserID            string `json:"userId"`
	AssociationTypeID string `json:"associationTypeId"`
}

// SiteConfigAsOf returns the latest version whose date is at or before at.
func SiteConfigAsOf(configs []SiteConfig, at time.Time) (SiteConfig, error) {
	sorted := make([]SiteConfig, len(configs))
	copy(sorted, configs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].IsCurrent && !sorted[j].IsCurrent
		}
		return sorted[i].Date.After(sorted[j].Date)
	})
	for _, cfg := range sorted {
		if !cfg.Date.After(at) {
			return cfg, nil
		}
	}
	return SiteConfig{}, ErrNoSiteConfig
}
