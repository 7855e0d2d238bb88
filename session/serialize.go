package session

import (
	"encoding/base64"
	"encoding/json"

	"ratchetcore/crypto/key"
)

// diskChain mirrors Chain in a JSON-safe shape, generalized from the
// teacher's ratchet/disk/disk.go RatchetState_SavedKeys.
type diskChain struct {
	ChainKey       string            `json:"chainKey"`
	ChainKeyCount  uint32            `json:"chainKeyCount"`
	EphemeralPub   string            `json:"ephemeralPub"`
	EphemeralPriv  string            `json:"ephemeralPriv,omitempty"`
	MessageKeys    []diskMessageKey  `json:"messageKeys"`
}

type diskMessageKey struct {
	Counter   uint32 `json:"counter"`
	CipherKey string `json:"cipherKey"`
	MacKey    string `json:"macKey"`
	IV        string `json:"iv"`
}

type diskPendingPreKey struct {
	PreKeyID    *uint32 `json:"preKeyId,omitempty"`
	SignedKeyID uint32  `json:"signedKeyId"`
	BaseKey     string  `json:"baseKey"`
}

type diskSession struct {
	RegistrationID uint32 `json:"registrationId"`

	RootKey                string `json:"rootKey"`
	EphemeralPub           string `json:"ephemeralPub"`
	EphemeralPriv          string `json:"ephemeralPriv"`
	LastRemoteEphemeralKey string `json:"lastRemoteEphemeralKey"`
	PreviousCounter        uint32 `json:"previousCounter"`

	RemoteIdentityKey string `json:"remoteIdentityKey"`
	BaseKey           string `json:"baseKey"`
	BaseKeyType       int    `json:"baseKeyType"`
	Closed            int64  `json:"closed"`
	Sequence          uint64 `json:"sequence"`

	PendingPreKey *diskPendingPreKey `json:"pendingPreKey,omitempty"`
	Chains        []diskChain        `json:"chains"`
}

type diskRecord struct {
	Sessions []diskSession `json:"sessions"`
	NextSeq  uint64        `json:"nextSeq"`
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// Marshal renders r as self-describing JSON, preserving every
// semantic field (spec §4.4's serialization requirement).
func (r *Record) Marshal() ([]byte, error) {
	out := diskRecord{NextSeq: r.nextSeq}
	for _, s := range r.Sessions {
		ds := diskSession{
			RegistrationID:         s.RegistrationID,
			RootKey:                b64(s.CurrentRatchet.RootKey[:]),
			EphemeralPub:           b64(s.CurrentRatchet.EphemeralKeyPair.Pub[:]),
			EphemeralPriv:          b64(s.CurrentRatchet.EphemeralKeyPair.Priv[:]),
			LastRemoteEphemeralKey: b64(s.CurrentRatchet.LastRemoteEphemeralKey[:]),
			PreviousCounter:        s.CurrentRatchet.PreviousCounter,
			RemoteIdentityKey:      b64(s.IndexInfo.RemoteIdentityKey[:]),
			BaseKey:                b64(s.IndexInfo.BaseKey[:]),
			BaseKeyType:            int(s.IndexInfo.BaseKeyType),
			Closed:                 s.IndexInfo.Closed,
			Sequence:               s.IndexInfo.Sequence,
		}
		if s.PendingPreKey != nil {
			ds.PendingPreKey = &diskPendingPreKey{
				PreKeyID:    s.PendingPreKey.PreKeyID,
				SignedKeyID: s.PendingPreKey.SignedKeyID,
				BaseKey:     b64(s.PendingPreKey.BaseKey[:]),
			}
		}
		for _, c := range s.Chains {
			dc := diskChain{
				ChainKey:      b64(c.ChainKey.Key[:]),
				ChainKeyCount: c.ChainKey.Counter,
				EphemeralPub:  b64(c.EphemeralPub[:]),
			}
			if c.EphemeralPriv != nil {
				dc.EphemeralPriv = b64(c.EphemeralPriv[:])
			}
			if c.skipOrder != nil {
				for el := c.skipOrder.Front(); el != nil; el = el.Next() {
					sk := el.Value.(skippedKey)
					dc.MessageKeys = append(dc.MessageKeys, diskMessageKey{
						Counter:   sk.counter,
						CipherKey: b64(sk.mk.CipherKey[:]),
						MacKey:    b64(sk.mk.MacKey[:]),
						IV:        b64(sk.mk.IV[:]),
					})
				}
			}
			ds.Chains = append(ds.Chains, dc)
		}
		out.Sessions = append(out.Sessions, ds)
	}
	return json.Marshal(out)
}

// Unmarshal reconstructs a Record from Marshal's output.
func Unmarshal(data []byte) (*Record, error) {
	var in diskRecord
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	r := &Record{nextSeq: in.NextSeq}
	for _, ds := range in.Sessions {
		s := newSession()
		s.RegistrationID = ds.RegistrationID

		rootKey, err := unb64(ds.RootKey)
		if err != nil {
			return nil, err
		}
		copy(s.CurrentRatchet.RootKey[:], rootKey)

		ephPub, err := unb64(ds.EphemeralPub)
		if err != nil {
			return nil, err
		}
		copy(s.CurrentRatchet.EphemeralKeyPair.Pub[:], ephPub)

		ephPriv, err := unb64(ds.EphemeralPriv)
		if err != nil {
			return nil, err
		}
		copy(s.CurrentRatchet.EphemeralKeyPair.Priv[:], ephPriv)

		lastRemote, err := unb64(ds.LastRemoteEphemeralKey)
		if err != nil {
			return nil, err
		}
		copy(s.CurrentRatchet.LastRemoteEphemeralKey[:], lastRemote)
		s.CurrentRatchet.PreviousCounter = ds.PreviousCounter

		remoteIdentity, err := unb64(ds.RemoteIdentityKey)
		if err != nil {
			return nil, err
		}
		copy(s.IndexInfo.RemoteIdentityKey[:], remoteIdentity)

		baseKey, err := unb64(ds.BaseKey)
		if err != nil {
			return nil, err
		}
		copy(s.IndexInfo.BaseKey[:], baseKey)
		s.IndexInfo.BaseKeyType = BaseKeyType(ds.BaseKeyType)
		s.IndexInfo.Closed = ds.Closed
		s.IndexInfo.Sequence = ds.Sequence

		if ds.PendingPreKey != nil {
			ppk := &PendingPreKey{
				PreKeyID:    ds.PendingPreKey.PreKeyID,
				SignedKeyID: ds.PendingPreKey.SignedKeyID,
			}
			bk, err := unb64(ds.PendingPreKey.BaseKey)
			if err != nil {
				return nil, err
			}
			copy(ppk.BaseKey[:], bk)
			s.PendingPreKey = ppk
		}

		for _, dc := range ds.Chains {
			c := newChain()
			chainKey, err := unb64(dc.ChainKey)
			if err != nil {
				return nil, err
			}
			copy(c.ChainKey.Key[:], chainKey)
			c.ChainKey.Counter = dc.ChainKeyCount

			ephPubBytes, err := unb64(dc.EphemeralPub)
			if err != nil {
				return nil, err
			}
			var ephPub key.PublicKey
			copy(ephPub[:], ephPubBytes)
			c.EphemeralPub = ephPub

			if dc.EphemeralPriv != "" {
				privBytes, err := unb64(dc.EphemeralPriv)
				if err != nil {
					return nil, err
				}
				var priv key.PrivateKey
				copy(priv[:], privBytes)
				c.EphemeralPriv = &priv
			}

			for _, dmk := range dc.MessageKeys {
				var mk MessageKey
				mk.Counter = dmk.Counter
				ck, err := unb64(dmk.CipherKey)
				if err != nil {
					return nil, err
				}
				copy(mk.CipherKey[:], ck)
				mac, err := unb64(dmk.MacKey)
				if err != nil {
					return nil, err
				}
				copy(mk.MacKey[:], mac)
				iv, err := unb64(dmk.IV)
				if err != nil {
					return nil, err
				}
				copy(mk.IV[:], iv)
				c.PutSkipped(mk)
			}

			s.Chains[ephPub.Prefixed()] = c
		}

		r.Sessions = append(r.Sessions, s)
	}
	return r, nil
}
