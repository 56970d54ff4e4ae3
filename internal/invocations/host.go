// Package invocations runs the entry points of services and authorizers: accumulate,
// on-transfer, refine and is-authorized. Each invocation binds the numbered host calls
// to its own context and runs either a program container or a registered native guest.
package invocations

import (
	"sync"

	"github.com/eigerco/pvmhost/internal/constants"
	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/service"
	"github.com/eigerco/pvmhost/pkg/guest"
)

// Host resolves the code of services and authorizers and runs their invocations.
// Native guests are registered under the code hash they stand in for.
type Host struct {
	mu          sync.RWMutex
	services    map[crypto.Hash]guest.Service
	authorizers map[crypto.Hash]guest.Authorizer
}

func NewHost() *Host {
	return &Host{
		services:    make(map[crypto.Hash]guest.Service),
		authorizers: make(map[crypto.Hash]guest.Authorizer),
	}
}

func (h *Host) RegisterService(codeHash crypto.Hash, s guest.Service) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.services[codeHash] = s
}

func (h *Host) RegisterAuthorizer(codeHash crypto.Hash, a guest.Authorizer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authorizers[codeHash] = a
}

func (h *Host) nativeService(codeHash crypto.Hash) (guest.Service, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.services[codeHash]
	return s, ok
}

func (h *Host) nativeAuthorizer(codeHash crypto.Hash) (guest.Authorizer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.authorizers[codeHash]
	return a, ok
}

// serviceCode the code behind the account's code hash, false if there is none or it exceeds WC
func (h *Host) serviceCode(account service.ServiceAccount, entry func(guest.Service) guest.Entry) (Code, bool) {
	if s, ok := h.nativeService(account.CodeHash); ok {
		return Code{Native: entry(s)}, true
	}
	c := account.EncodedCodeAndMetadata()
	// if c = ∅ ∨ ∣c∣ > WC
	if c == nil || len(c) > constants.MaxSizeServiceCode {
		return Code{}, false
	}
	return Code{Container: c}, true
}
