package invocations_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/invocations"
	"github.com/eigerco/pvmhost/internal/jamtime"
	"github.com/eigerco/pvmhost/internal/pvm"
	"github.com/eigerco/pvmhost/internal/service"
	"github.com/eigerco/pvmhost/internal/state"
	"github.com/eigerco/pvmhost/pkg/guest"
)

const (
	aliceId block.ServiceId = 1 << 16
	bobId   block.ServiceId = 1<<16 + 1

	now jamtime.Timeslot = 100
)

// fakeService a native service made of closures, missing entry points do nothing
type fakeService struct {
	refine     func(env *guest.Env, args guest.RefineArgs) []byte
	accumulate func(env *guest.Env, args guest.AccumulateArgs) *guest.Hash
	onTransfer func(env *guest.Env, args guest.OnTransferArgs)
}

func (s fakeService) Refine(env *guest.Env, args guest.RefineArgs) []byte {
	if s.refine == nil {
		return nil
	}
	return s.refine(env, args)
}

func (s fakeService) Accumulate(env *guest.Env, args guest.AccumulateArgs) *guest.Hash {
	if s.accumulate == nil {
		return nil
	}
	return s.accumulate(env, args)
}

func (s fakeService) OnTransfer(env *guest.Env, args guest.OnTransferArgs) {
	if s.onTransfer != nil {
		s.onTransfer(env, args)
	}
}

type authorizerFunc func(env *guest.Env, core uint16) []byte

func (f authorizerFunc) IsAuthorized(env *guest.Env, core uint16) []byte {
	return f(env, core)
}

// account a funded account whose code is the given hash
func account(codeHash crypto.Hash) service.ServiceAccount {
	a := service.NewServiceAccount()
	a.CodeHash = codeHash
	a.Balance = 1_000_000
	a.GasLimitOnTransfer = 10
	return a
}

// withNative registers s under a fresh code hash and returns a host with an account running it
func withNative(t *testing.T, host *invocations.Host, name string, s guest.Service) service.ServiceAccount {
	t.Helper()
	codeHash := crypto.HashData([]byte(name))
	host.RegisterService(codeHash, s)
	return account(codeHash)
}

// refinable registers s as a native service and returns a state where aliceId runs it,
// its code provided since slot 0 so it is available at any lookup anchor
func refinable(t *testing.T, host *invocations.Host, name string, s guest.Service) (crypto.Hash, service.ServiceState) {
	t.Helper()
	a := withNative(t, host, name, s)
	code := []byte(name)
	a.PreimageLookup[a.CodeHash] = code
	a.PreimageMeta[service.PreImageMetaKey{Hash: a.CodeHash, Length: service.PreimageLength(len(code))}] = []jamtime.Timeslot{0}
	return a.CodeHash, service.ServiceState{aliceId: a}
}

func accumulationState(accounts service.ServiceState) state.AccumulationState {
	return state.AccumulationState{ServiceState: accounts}
}

// container wraps a program blob with a single named entry point at instruction 0
func container(t *testing.T, blob []byte, entryPoint string) []byte {
	t.Helper()
	b, err := pvm.NewProgramContainer(nil, blob, map[string]uint32{entryPoint: 0}).MarshalJAM()
	require.NoError(t, err)
	return b
}

func mustWrite(env *guest.Env, key, value string) {
	if _, _, err := env.Write([]byte(key), []byte(value)); err != nil {
		panic(err)
	}
}

// burn calls gas until the invocation runs out
func burn(env *guest.Env) {
	for {
		env.Gas()
	}
}
