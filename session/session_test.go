package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratchetcore/crypto/key"
)

func baseKeyFor(t *testing.T, seed byte) [key.PrefixedSize]byte {
	t.Helper()
	var bk [key.PrefixedSize]byte
	bk[0] = key.DJBType
	bk[1] = seed
	return bk
}

func TestSetSessionArchivesPriorOpen(t *testing.T) {
	r := NewRecord()

	s1 := NewSession()
	s1.IndexInfo.BaseKey = baseKeyFor(t, 1)
	s1.IndexInfo.Closed = -1
	r.SetSession(s1, 100)

	s2 := NewSession()
	s2.IndexInfo.BaseKey = baseKeyFor(t, 2)
	s2.IndexInfo.Closed = -1
	r.SetSession(s2, 200)

	assert.Equal(t, int64(200), r.GetSessionByBaseKey(s1.IndexInfo.BaseKey).IndexInfo.Closed)
	assert.Equal(t, int64(-1), r.GetOpenSession().IndexInfo.Closed)
	assert.Equal(t, s2.IndexInfo.BaseKey, r.GetOpenSession().IndexInfo.BaseKey)
}

func TestRemoveOldSessionsEvictsOldestArchived(t *testing.T) {
	r := NewRecord()
	for i := 0; i < 45; i++ {
		s := NewSession()
		s.IndexInfo.BaseKey = baseKeyFor(t, byte(i))
		s.IndexInfo.Closed = -1
		r.SetSession(s, int64(i))
	}
	archived := 0
	for _, s := range r.Sessions {
		if s.IndexInfo.Closed >= 0 {
			archived++
		}
	}
	assert.LessOrEqual(t, archived, 40)
	// the very first session inserted should have been evicted.
	assert.Nil(t, r.GetSessionByBaseKey(baseKeyFor(t, 0)))
}

func TestChainSkippedKeyEviction(t *testing.T) {
	c := newChain()
	for i := uint32(0); i < 2005; i++ {
		c.PutSkipped(MessageKey{Counter: i})
	}
	assert.Equal(t, 2000, c.SkippedCount())
	_, ok := c.TakeSkipped(0)
	assert.False(t, ok, "oldest entries should have been evicted")
	_, ok = c.TakeSkipped(2004)
	assert.True(t, ok)
}

func TestRecordMarshalUnmarshalRoundTrip(t *testing.T) {
	r := NewRecord()
	s := NewSession()
	s.RegistrationID = 42
	s.IndexInfo.BaseKey = baseKeyFor(t, 7)
	s.IndexInfo.Closed = -1
	s.CurrentRatchet.RootKey = [32]byte{1, 2, 3}

	priv, err := key.New()
	require.NoError(t, err)
	pub, err := priv.Public()
	require.NoError(t, err)
	s.CurrentRatchet.EphemeralKeyPair = key.Pair{Priv: priv, Pub: pub}

	chain := s.GetChain(pub, true)
	chain.ChainKey = ChainKey{Key: [32]byte{9}, Counter: 3}
	chain.PutSkipped(MessageKey{Counter: 0, CipherKey: [32]byte{5}})

	r.SetSession(s, 0)

	data, err := r.Marshal()
	require.NoError(t, err)

	restored, err := Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, restored.Sessions, 1)

	got := restored.Sessions[0]
	assert.Equal(t, uint32(42), got.RegistrationID)
	assert.Equal(t, s.CurrentRatchet.RootKey, got.CurrentRatchet.RootKey)
	assert.Equal(t, s.IndexInfo.BaseKey, got.IndexInfo.BaseKey)

	restoredChain := got.GetChain(pub, false)
	require.NotNil(t, restoredChain)
	assert.Equal(t, chain.ChainKey, restoredChain.ChainKey)
	mk, ok := restoredChain.TakeSkipped(0)
	require.True(t, ok)
	assert.Equal(t, [32]byte{5}, mk.CipherKey)
}
