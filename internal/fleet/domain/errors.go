package domain

import "errors"

var (
	// ErrSiteNotFound is returned when a site number does not resolve.
	ErrSiteNotFound = errors.New("fleet: site not found")
	// ErrAssociationTypeNotFound is returned when a role lookup fails.
	ErrAssociationTypeNotFound = errors.New("fleet: association type not found")
	// ErrNoRectifierTypes is returned when utilization cannot be derived from a plant config.
	ErrNoRectifierTypes = errors.New("fleet: plant config has no rectifier types")
	// ErrRecordNotFound is returned when a plant has no record document.
	ErrRecordNotFound = errors.New("fleet: plant record not found")
	// ErrNoCoveringRecord is returned when a series has no entry at or before the target date.
	ErrNoCoveringRecord = errors.New("fleet: no record entry at or before date")
	// ErrGeneratorNotFound is returned when a generator removal has nothing to remove.
	ErrGeneratorNotFound = errors.New("fleet: generator not found")
	// ErrBatteryNotFound is returned when a serial update targets an unstaged battery.
	ErrBatteryNotFound = errors.New("fleet: battery not found")
	// ErrNoSiteConfig is returned when no site config is effective at a date.
	ErrNoSiteConfig = errors.New("fleet: no site config effective at date")
	// ErrNoPlantConfig is returned when no plant config is effective at a date.
	ErrNoPlantConfig = errors.New("fleet: no plant config effective at date")
)
