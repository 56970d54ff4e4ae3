//go:build tiny

package constants

const (
	NumberOfValidators                 = 6
	TotalNumberOfCores          uint16 = 2
	PreimageExpulsionPeriod            = 32
	MaxAllocatedGasAccumulation        = 10_000_000
	MaxAllocatedGasRefine              = 1_000_000_000
	MaxAllocatedGasIsAuthorized        = 50_000_000
)
