// Command genkeys prints a fresh identity keypair, registration id,
// and a signed/one-time PreKey pair, replacing the teacher's
// cmd/gen_keys (a single hex dump of one Ed25519 keypair) with a full
// PreKey-bundle seed for a cobra-based CLI, the way a real deployment
// would seed cmd/demo's stores or a .env file for cmd/client's model.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ratchetcore/keys"
)

var (
	signedKeyID uint32
	preKeyID    uint32
	timestamp   uint64
)

func main() {
	log := logrus.New()

	root := &cobra.Command{
		Use:   "genkeys",
		Short: "Generate an identity keypair and PreKey bundle material",
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := keys.GenerateIdentityKeyPair()
			if err != nil {
				return fmt.Errorf("generate identity: %w", err)
			}
			regID, err := keys.GenerateRegistrationId()
			if err != nil {
				return fmt.Errorf("generate registration id: %w", err)
			}
			signedPreKey, err := keys.GenerateSignedPreKey(identity, signedKeyID, timestamp)
			if err != nil {
				return fmt.Errorf("generate signed prekey: %w", err)
			}
			oneTimePreKey, err := keys.GeneratePreKey(preKeyID)
			if err != nil {
				return fmt.Errorf("generate one-time prekey: %w", err)
			}

			fmt.Printf("REGISTRATION_ID=%d\n", regID)
			fmt.Printf("IDENTITY_PRIVATE=%s\n", hex.EncodeToString(identity.Priv[:]))
			fmt.Printf("IDENTITY_PUBLIC=%s\n", hex.EncodeToString(identity.Pub[:]))
			fmt.Printf("SIGNED_PREKEY_ID=%d\n", signedPreKey.KeyID)
			fmt.Printf("SIGNED_PREKEY_PRIVATE=%s\n", hex.EncodeToString(signedPreKey.KeyPair.Priv[:]))
			fmt.Printf("SIGNED_PREKEY_PUBLIC=%s\n", hex.EncodeToString(signedPreKey.KeyPair.Pub[:]))
			fmt.Printf("SIGNED_PREKEY_SIGNATURE=%s\n", hex.EncodeToString(signedPreKey.Signature[:]))
			fmt.Printf("PREKEY_ID=%d\n", oneTimePreKey.KeyID)
			fmt.Printf("PREKEY_PRIVATE=%s\n", hex.EncodeToString(oneTimePreKey.KeyPair.Priv[:]))
			fmt.Printf("PREKEY_PUBLIC=%s\n", hex.EncodeToString(oneTimePreKey.KeyPair.Pub[:]))
			return nil
		},
	}
	root.Flags().Uint32Var(&signedKeyID, "signed-key-id", 1, "key id to stamp the signed prekey with")
	root.Flags().Uint32Var(&preKeyID, "prekey-id", 1, "key id to stamp the one-time prekey with")
	root.Flags().Uint64Var(&timestamp, "timestamp", 0, "signed prekey timestamp (unix seconds)")

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("genkeys failed")
		os.Exit(1)
	}
}
