//go:build !tiny

package constants

// Chain specific constants by configuration, eg tiny

const (
	// (V) The total number of validators
	NumberOfValidators = 1023

	// (C) Total number of cores in the system
	TotalNumberOfCores uint16 = 341

	// (D) The period in timeslots after which an unreferenced preimage may be expunged.
	// D = L + 4,800 where L = 14,400 (maximum age of lookup anchor)
	PreimageExpulsionPeriod = 19_200

	// (GA) The gas allocated to invoke a single service's accumulate logic by default.
	MaxAllocatedGasAccumulation = 10_000_000

	// (GR) The gas allocated to invoke a work-package's Refine logic.
	MaxAllocatedGasRefine = 5_000_000_000

	// (GI) The gas allocated to invoke a work-package's Is-Authorized logic.
	MaxAllocatedGasIsAuthorized = 50_000_000
)
