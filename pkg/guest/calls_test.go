package guest

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/pvmhost/internal/jamtime"
	"github.com/eigerco/pvmhost/internal/preimage"
	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

const heapBase = 1 << 16

// fakeHost a flat heap and a scripted host call handler
type fakeHost struct {
	heap    []byte
	handle  func(h *fakeHost, index uint64, regs *Registers)
	indices []uint64
}

func (h *fakeHost) Ecalli(index uint64, regs *Registers) {
	h.indices = append(h.indices, index)
	h.handle(h, index, regs)
}

func (h *fakeHost) ReadMemory(addr uint32, data []byte) error {
	if addr < heapBase || int(addr-heapBase)+len(data) > len(h.heap) {
		return errors.New("out of bounds")
	}
	copy(data, h.heap[addr-heapBase:])
	return nil
}

func (h *fakeHost) WriteMemory(addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if addr < heapBase || int(addr-heapBase)+len(data) > len(h.heap) {
		return errors.New("out of bounds")
	}
	copy(h.heap[addr-heapBase:], data)
	return nil
}

func (h *fakeHost) Sbrk(size uint32) (uint32, error) {
	addr := uint32(heapBase + len(h.heap))
	h.heap = append(h.heap, make([]byte, size)...)
	return addr, nil
}

func (h *fakeHost) bytes(addr, length uint64) []byte {
	b := make([]byte, length)
	if err := h.ReadMemory(uint32(addr), b); err != nil {
		panic(err)
	}
	return b
}

// writeWindow the host side of every variable length output: v[f..f+l] at out, φ7 = |v|
func (h *fakeHost) writeWindow(regs *Registers, v []byte, out, offset, length uint64) {
	f := min(offset, uint64(len(v)))
	l := min(length, uint64(len(v))-f)
	if err := h.WriteMemory(uint32(out), v[f:f+l]); err != nil {
		panic(err)
	}
	regs[a0] = uint64(len(v))
}

func TestRead(t *testing.T) {
	storage := map[string][]byte{"key": []byte("a value longer than the first window")}
	host := &fakeHost{handle: func(h *fakeHost, index uint64, regs *Registers) {
		require.Equal(t, uint64(readCall), index)
		require.Equal(t, uint64(math.MaxUint64), regs[a0])
		v, ok := storage[string(h.bytes(regs[a1], regs[a2]))]
		if !ok {
			regs[a0] = uint64(NONE)
			return
		}
		h.writeWindow(regs, v, regs[a3], regs[a4], regs[a5])
	}}
	env := NewEnv(host)

	v, ok := env.Read(nil, []byte("key"))
	require.True(t, ok)
	assert.Equal(t, storage["key"], v)

	_, ok = env.Read(nil, []byte("missing"))
	assert.False(t, ok)

	// the length query and the copy
	assert.Len(t, host.indices, 3)
}

func TestWrite(t *testing.T) {
	var results []ReturnCode
	var seen [][2]string
	host := &fakeHost{handle: func(h *fakeHost, index uint64, regs *Registers) {
		require.Equal(t, uint64(writeCall), index)
		seen = append(seen, [2]string{string(h.bytes(regs[a0], regs[a1])), string(h.bytes(regs[a2], regs[a3]))})
		regs[a0] = uint64(results[0])
		results = results[1:]
	}}
	env := NewEnv(host)

	results = []ReturnCode{NONE, 5, FULL, 3}

	_, existed, err := env.Write([]byte("k"), []byte("v1"))
	require.NoError(t, err)
	assert.False(t, existed)

	old, existed, err := env.Write([]byte("k"), []byte("v2"))
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, uint32(5), old)

	_, _, err = env.Write([]byte("k"), make([]byte, 10))
	assert.ErrorIs(t, err, StorageFull)

	old, existed, err = env.Remove([]byte("k"))
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, uint32(3), old)

	assert.Equal(t, [2]string{"k", "v1"}, seen[0])
	assert.Equal(t, [2]string{"k", ""}, seen[3])
}

func TestInfo(t *testing.T) {
	info := ServiceInfo{CodeHash: Hash{1, 2, 3}, Balance: 1000, Threshold: 146, MinItemGas: 5, MinMemoGas: 6, Bytes: 36, Items: 1}
	encoded, err := jam.Marshal(info)
	require.NoError(t, err)

	host := &fakeHost{handle: func(h *fakeHost, index uint64, regs *Registers) {
		if regs[a0] == 7 {
			regs[a0] = uint64(NONE)
			return
		}
		h.writeWindow(regs, encoded, regs[a1], regs[a2], regs[a3])
	}}
	env := NewEnv(host)

	got, ok := env.Info(nil)
	require.True(t, ok)
	assert.Equal(t, info, got)

	other := uint32(7)
	_, ok = env.Info(&other)
	assert.False(t, ok)
}

func TestIsAvailable(t *testing.T) {
	held := Hash{1}
	host := &fakeHost{handle: func(h *fakeHost, index uint64, regs *Registers) {
		require.Contains(t, []uint64{lookupCall, historicalLookupCall}, index)
		// nothing is copied out
		require.Zero(t, regs[a2])
		require.Zero(t, regs[a4])
		if Hash(h.bytes(regs[a1], 32)) != held {
			regs[a0] = uint64(NONE)
			return
		}
		regs[a0] = 1 << 20
	}}
	env := NewEnv(host)

	other := uint32(3)
	assert.True(t, env.IsAvailable(nil, held))
	assert.True(t, env.IsAvailable(&other, held))
	assert.False(t, env.IsAvailable(nil, Hash{2}))
	assert.True(t, env.IsHistoricalAvailable(nil, held))
	assert.False(t, env.IsHistoricalAvailable(&other, Hash{2}))
	assert.Equal(t, []uint64{lookupCall, lookupCall, lookupCall, historicalLookupCall, historicalLookupCall}, host.indices)
}

func TestZombify(t *testing.T) {
	var code ReturnCode
	var codeHash []byte
	var minGas [2]uint64
	host := &fakeHost{handle: func(h *fakeHost, index uint64, regs *Registers) {
		require.Equal(t, uint64(upgradeCall), index)
		codeHash = h.bytes(regs[a0], 32)
		minGas = [2]uint64{regs[a1], regs[a2]}
		regs[a0] = uint64(code)
	}}
	env := NewEnv(host)

	code = OK
	env.Zombify(0x01020304)
	assert.Equal(t, append([]byte{4, 3, 2, 1}, make([]byte, 28)...), codeHash)
	assert.Equal(t, [2]uint64{0, 0}, minGas)

	code = HUH
	assert.Panics(t, func() { env.Zombify(7) })
}

func TestQuery(t *testing.T) {
	var r7, r8 uint64
	host := &fakeHost{handle: func(h *fakeHost, index uint64, regs *Registers) {
		require.Equal(t, uint64(queryCall), index)
		require.Equal(t, uint64(81), regs[a1])
		regs[a0], regs[a1] = r7, r8
	}}
	env := NewEnv(host)

	r7, r8 = preimage.Pack([]jamtime.Timeslot{7, 9})
	status, ok := env.Query(Hash{}, 81)
	require.True(t, ok)
	assert.Equal(t, preimage.Unrequested, status.Status())
	assert.Equal(t, []jamtime.Timeslot{7, 9}, status.Slots)
	_, provided := status.ProvidedAt()
	assert.False(t, provided)

	r7, r8 = preimage.Pack([]jamtime.Timeslot{3, 4, 5})
	status, ok = env.Query(Hash{}, 81)
	require.True(t, ok)
	at, provided := status.ProvidedAt()
	assert.True(t, provided)
	assert.Equal(t, jamtime.Timeslot(3), at)

	r7, r8 = uint64(NONE), 0
	_, ok = env.Query(Hash{}, 81)
	assert.False(t, ok)

	r7, r8 = 4, 0
	assert.Panics(t, func() { env.Query(Hash{}, 81) })
}

func TestPreimageCalls(t *testing.T) {
	hash := Hash{9, 9, 9}
	var code ReturnCode
	host := &fakeHost{handle: func(h *fakeHost, index uint64, regs *Registers) {
		switch index {
		case solicitCall, forgetCall:
			require.Equal(t, hash[:], h.bytes(regs[a0], 32))
			require.Equal(t, uint64(3), regs[a1])
		case provideCall:
			require.Equal(t, uint64(math.MaxUint64), regs[a0])
			require.Equal(t, []byte("abc"), h.bytes(regs[a1], regs[a2]))
		}
		regs[a0] = uint64(code)
	}}
	env := NewEnv(host)

	code = OK
	require.NoError(t, env.Solicit(hash, 3))
	require.NoError(t, env.Provide(nil, []byte("abc")))
	code = HUH
	assert.ErrorIs(t, env.Forget(hash, 3), ActionInvalid)
	code = FULL
	assert.ErrorIs(t, env.Solicit(hash, 3), StorageFull)
	assert.Equal(t, []uint64{solicitCall, provideCall, forgetCall, solicitCall}, host.indices)
}

func TestAccumulateCalls(t *testing.T) {
	var code ReturnCode
	var memo []byte
	host := &fakeHost{handle: func(h *fakeHost, index uint64, regs *Registers) {
		switch index {
		case transferCall:
			memo = h.bytes(regs[a3], 128)
		case checkpointCall:
			regs[a0] = 1234
			return
		}
		regs[a0] = uint64(code)
	}}
	env := NewEnv(host)

	code = OK
	m := Memo{1, 2, 3}
	require.NoError(t, env.Transfer(2, 10, 100, m))
	assert.Equal(t, m[:], memo)

	code = LOW
	assert.ErrorIs(t, env.Transfer(2, 10, 1, m), GasLimitTooLow)
	code = CASH
	assert.ErrorIs(t, env.Transfer(2, 10, 100, m), NoCash)

	code = 65541
	id, err := env.New(Hash{}, 10, 1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(65541), id)

	code = WHO
	assert.ErrorIs(t, env.Eject(3, Hash{}), IndexUnknown)
	code = CORE
	assert.ErrorIs(t, env.Assign(400, nil), BadCore)

	assert.Equal(t, uint64(1234), env.Checkpoint())

	code = HUH
	assert.Panics(t, func() { env.Yield(Hash{}) })
}

func TestBlessLayout(t *testing.T) {
	host := &fakeHost{handle: func(h *fakeHost, index uint64, regs *Registers) {
		require.Equal(t, uint64(blessCall), index)
		assert.Equal(t, uint64(1), regs[a0])
		assert.Equal(t, uint64(3), regs[a2])
		assert.Equal(t, jam.EncodeUint64(7, 4), h.bytes(regs[a1], 4))
		assert.Equal(t, uint64(2), regs[a4])
		z := h.bytes(regs[a3], 24)
		assert.Equal(t, uint64(4), jam.DecodeUint64(z[:4]))
		assert.Equal(t, uint64(400), jam.DecodeUint64(z[4:12]))
		assert.Equal(t, uint64(5), jam.DecodeUint64(z[12:16]))
		assert.Equal(t, uint64(500), jam.DecodeUint64(z[16:24]))
		regs[a0] = uint64(OK)
	}}
	env := NewEnv(host)

	require.NoError(t, env.Bless(1, []uint32{7}, 3, []AlwaysAccumulate{{4, 400}, {5, 500}}))
}

func TestFetch(t *testing.T) {
	entropy := Hash{0xee}
	items := [][]byte{[]byte("first"), []byte("second")}
	host := &fakeHost{handle: func(h *fakeHost, index uint64, regs *Registers) {
		require.Equal(t, uint64(fetchCall), index)
		var v []byte
		switch regs[a3] {
		case FetchEntropy:
			v = entropy[:]
		case FetchItem:
			if regs[a4] < uint64(len(items)) {
				v = items[regs[a4]]
			}
		}
		if v == nil {
			regs[a0] = uint64(NONE)
			return
		}
		h.writeWindow(regs, v, regs[a0], regs[a1], regs[a2])
	}}
	env := NewEnv(host)

	got, ok := env.Entropy()
	require.True(t, ok)
	assert.Equal(t, entropy, got)

	item, ok := env.Item(1)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), item)

	_, ok = env.Item(2)
	assert.False(t, ok)
}

func TestIncomingTransfer(t *testing.T) {
	transfer := IncomingTransfer{Sender: 1, Receiver: 2, Amount: 300, Memo: Memo{4}, GasLimit: 50}
	encoded, err := jam.Marshal(transfer)
	require.NoError(t, err)
	assert.Len(t, encoded, 4+4+8+128+8)

	host := &fakeHost{handle: func(h *fakeHost, index uint64, regs *Registers) {
		h.writeWindow(regs, encoded, regs[a0], regs[a1], regs[a2])
	}}
	got, ok := NewEnv(host).IncomingTransfer(0)
	require.True(t, ok)
	assert.Equal(t, transfer, got)
}

func TestScratchReuse(t *testing.T) {
	host := &fakeHost{handle: func(h *fakeHost, index uint64, regs *Registers) {
		regs[a0] = uint64(OK)
	}}
	env := NewEnv(host)

	require.NoError(t, env.Solicit(Hash{}, 1))
	size := len(host.heap)
	require.NoError(t, env.Solicit(Hash{}, 1))
	assert.Len(t, host.heap, size)

	require.NoError(t, env.Designate(make([]byte, 100)))
	assert.Len(t, host.heap, size+100)
}
