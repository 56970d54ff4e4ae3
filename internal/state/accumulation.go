package state

import (
	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/constants"
	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/service"
	"github.com/eigerco/pvmhost/pkg/collections"
)

// CoreCount C
type CoreCount struct{}

func (CoreCount) Len() int { return int(constants.TotalNumberOfCores) }

// ValidatorCount V
type ValidatorCount struct{}

func (ValidatorCount) Len() int { return constants.NumberOfValidators }

// AuthorizerQueueLength Q
type AuthorizerQueueLength struct{}

func (AuthorizerQueueLength) Len() int { return constants.PendingAuthorizersQueueSize }

// PendingAuthorizersQueue the authorizer queue of a single core ⟦H⟧Q
type PendingAuthorizersQueue = collections.FixedSequence[crypto.Hash, AuthorizerQueueLength]

// PendingAuthorizersQueues φ ∈ ⟦⟦H⟧Q⟧C
type PendingAuthorizersQueues = collections.FixedSequence[PendingAuthorizersQueue, CoreCount]

// ValidatorKeys ι ∈ ⟦K⟧V
type ValidatorKeys = collections.FixedSequence[crypto.ValidatorKey, ValidatorCount]

// AssignedServiceIds one assigner per core (a ∈ ⟦NS⟧C)
type AssignedServiceIds = collections.FixedSequence[block.ServiceId, CoreCount]

// PrivilegedServices χ
type PrivilegedServices struct {
	ManagerServiceId        block.ServiceId                                  // Manager service ID (m) - the service able to effect an alteration of PrivilegedServices from block to block.
	AssignedServiceIds      AssignedServiceIds                               // Assign service IDs (a) - per core, the service able to alter that core's PendingAuthorizersQueue.
	DesignateServiceId      block.ServiceId                                  // Designate service ID (v) - the service able to effect an alteration of the next validator keys.
	AmountOfGasPerServiceId collections.OrderedMap[block.ServiceId, uint64] // Always-accumulate services (z) with the basic amount of gas each accumulates with.
}

func (p PrivilegedServices) Clone() PrivilegedServices {
	return PrivilegedServices{
		ManagerServiceId:        p.ManagerServiceId,
		AssignedServiceIds:      p.AssignedServiceIds.Clone(),
		DesignateServiceId:      p.DesignateServiceId,
		AmountOfGasPerServiceId: p.AmountOfGasPerServiceId.Clone(),
	}
}

// IsAssigner reports whether id may alter the authorizer queue of core
func (p PrivilegedServices) IsAssigner(core block.CoreIndex, id block.ServiceId) bool {
	assigner, ok := p.AssignedServiceIds.Lookup(int(core))
	return ok && assigner == id
}

// AccumulationState characterization of state components (eq. 12.16 v0.7.2)
type AccumulationState struct {
	ServiceState             service.ServiceState     // Service accounts δ (d ∈ D⟨NS → A⟩)
	ValidatorKeys            ValidatorKeys            // Validator keys ι (i ∈ ⟦K⟧V)
	PendingAuthorizersQueues PendingAuthorizersQueues // Queue of authorizers ϕ (q ∈ C⟦H⟧QHC)
	PrivilegedServices       PrivilegedServices       // (m, a, v, z)
}

func (j AccumulationState) Clone() AccumulationState {
	return AccumulationState{
		ServiceState:  j.ServiceState.Clone(),
		ValidatorKeys: j.ValidatorKeys.Clone(),
		PendingAuthorizersQueues: collections.FixedSequenceFromFunc[PendingAuthorizersQueue, CoreCount](func(i int) PendingAuthorizersQueue {
			return j.PendingAuthorizersQueues.Get(i).Clone()
		}),
		PrivilegedServices: j.PrivilegedServices.Clone(),
	}
}
