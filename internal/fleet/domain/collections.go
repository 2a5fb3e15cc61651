package domain

// Collection names used by the document store.
const (
	CollectionSites                = "sites"
	CollectionPowerPlants          = "powerPlants"
	CollectionPlantBatteryInfo     = "plantBatteryInfo"
	CollectionPlantConfigs         = "plantConfigs"
	CollectionPlantRecords         = "plantRecords"
	CollectionRoutines             = "routines"
	CollectionRoutineUploads       = "routineUploads"
	CollectionBatteries            = "batteries"
	CollectionBatteryRecords       = "batteryRecords"
	CollectionBatteryTypes         = "batteryTypes"
	CollectionSiteConfigs          = "siteConfigs"
	CollectionGenerators           = "generators"
	CollectionSiteUserAssociations = "siteUserAssociations"
	CollectionAssociationTypes     = "associationTypes"
	CollectionPowerPlantTypes      = "powerPlantTypes"
	CollectionLogItems             = "logItems"
)
