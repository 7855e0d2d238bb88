package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ratchetcore/crypto/key"
)

func TestSignAndVerify(t *testing.T) {
	priv, err := key.New()
	assert.NoError(t, err)
	pub, err := priv.Public()
	assert.NoError(t, err)

	tests := []struct {
		name string
		msg  []byte
	}{
		{"valid message", []byte("test message")},
		{"empty message", []byte("")},
		{"another valid message", []byte("another test message")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := Sign(priv, tt.msg)
			assert.NoError(t, err)
			assert.NotNil(t, sig)

			assert.True(t, Verify(pub, tt.msg, sig))

			assert.False(t, Verify(pub, []byte("wrong message"), sig))

			wrongSig, _ := Sign(priv, []byte("wrong message"))
			assert.False(t, Verify(pub, tt.msg, wrongSig))

			assert.False(t, Verify(pub, tt.msg, []byte("too short")))
		})
	}
}
