// Command demo runs Alice and Bob in-process against the core: Alice
// bootstraps a session from Bob's PreKey bundle, the two exchange a
// short burst of messages (including one delivered out of order) over
// a per-address jobqueue.Queue, and the transcript is logged with
// logrus. Grounded on the teacher's cmd/client (godotenv-loaded
// identity material, logrus logging) and cmd/server (redis-backed
// storage option), collapsed into one process the way errgroup lets
// companyzero-bisonrelay's client run its I/O loops concurrently.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ratchetcore/config"
	"ratchetcore/crypto/key"
	"ratchetcore/jobqueue"
	"ratchetcore/keys"
	"ratchetcore/protocoladdr"
	"ratchetcore/sessionbuilder"
	"ratchetcore/sessioncipher"
	"ratchetcore/store"
	"ratchetcore/store/memstore"
	"ratchetcore/store/redisstore"
)

var (
	configPath string
	envPath    string
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	root := &cobra.Command{
		Use:   "demo",
		Short: "Run an in-process Alice/Bob session exchange",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), log)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a TOML demo config (optional)")
	root.Flags().StringVar(&envPath, "env", "", "path to a .env file loaded into the process environment (optional); identities are always generated fresh")

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("demo failed")
		os.Exit(1)
	}
}

func runDemo(ctx context.Context, log *logrus.Logger) error {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			log.WithError(err).Warn("could not load .env file, continuing without it")
		}
	}

	cfg, err := config.LoadDemo(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	aliceAddr := protocoladdr.New(cfg.AliceID, 1).String()
	bobAddr := protocoladdr.New(cfg.BobID, 1).String()

	aliceStore, err := newParticipantStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("new alice store: %w", err)
	}
	bobStore, err := newParticipantStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("new bob store: %w", err)
	}

	aliceIdentity, err := aliceStore.GetOurIdentity(ctx)
	if err != nil {
		return fmt.Errorf("alice identity: %w", err)
	}
	bobIdentity, err := bobStore.GetOurIdentity(ctx)
	if err != nil {
		return fmt.Errorf("bob identity: %w", err)
	}
	if err := aliceStore.SaveIdentity(ctx, bobAddr, bobIdentity.Pub); err != nil {
		return fmt.Errorf("alice trust bob: %w", err)
	}
	if err := bobStore.SaveIdentity(ctx, aliceAddr, aliceIdentity.Pub); err != nil {
		return fmt.Errorf("bob trust alice: %w", err)
	}

	bobSignedPreKey, err := keys.GenerateSignedPreKey(bobIdentity, 1, 0)
	if err != nil {
		return fmt.Errorf("bob signed prekey: %w", err)
	}
	bobOneTimePreKey, err := keys.GeneratePreKey(7)
	if err != nil {
		return fmt.Errorf("bob one-time prekey: %w", err)
	}
	if err := bobStore.PutSignedPreKey(ctx, bobSignedPreKey); err != nil {
		return fmt.Errorf("store bob signed prekey: %w", err)
	}
	if err := bobStore.PutPreKey(ctx, bobOneTimePreKey); err != nil {
		return fmt.Errorf("store bob one-time prekey: %w", err)
	}
	bobRegID, err := bobStore.GetOurRegistrationID(ctx)
	if err != nil {
		return fmt.Errorf("bob registration id: %w", err)
	}

	bundle := keys.PreKeyBundle{RegistrationID: bobRegID, IdentityKey: bobIdentity.Pub}
	bundle.SignedPreKey.KeyID = bobSignedPreKey.KeyID
	bundle.SignedPreKey.PublicKey = bobSignedPreKey.KeyPair.Pub
	bundle.SignedPreKey.Signature = bobSignedPreKey.Signature
	bundle.PreKey = &struct {
		KeyID     uint32
		PublicKey key.PublicKey
	}{KeyID: bobOneTimePreKey.KeyID, PublicKey: bobOneTimePreKey.KeyPair.Pub}

	queue := jobqueue.New()
	defer queue.Close()

	aliceBuilder := sessionbuilder.New(aliceStore, bobAddr)
	if err := aliceBuilder.InitOutgoing(ctx, bundle, 1); err != nil {
		return fmt.Errorf("alice init outgoing: %w", err)
	}

	aliceCipher := &sessioncipher.Cipher{OurIdentity: aliceIdentity.Pub, Addr: bobAddr}
	bobCipher := &sessioncipher.Cipher{OurIdentity: bobIdentity.Pub, Addr: aliceAddr}

	messages := []string{"hello bob, it's alice", "are you there?", "this one arrives out of order"}
	envelopes := make([]sessioncipher.Envelope, 0, len(messages))
	for _, m := range messages {
		env, err := encryptFor(ctx, queue, bobAddr, aliceStore, aliceCipher, bobIdentity.Pub, m)
		if err != nil {
			return fmt.Errorf("alice encrypt %q: %w", m, err)
		}
		envelopes = append(envelopes, env)
		log.WithFields(logrus.Fields{"from": cfg.AliceID, "to": cfg.BobID}).Infof("sent: %s", m)
	}

	g, gctx := errgroup.WithContext(ctx)
	deliveryOrder := []int{0, 2, 1}
	for _, idx := range deliveryOrder {
		idx := idx
		g.Go(func() error {
			plaintext, err := deliverToBob(gctx, queue, aliceAddr, bobStore, bobCipher, envelopes[idx])
			if err != nil {
				return fmt.Errorf("bob decrypt message %d: %w", idx, err)
			}
			log.WithFields(logrus.Fields{"from": cfg.AliceID, "to": cfg.BobID}).Infof("received: %s", plaintext)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	reply := "hi alice, got all three"
	replyEnv, err := encryptFor(ctx, queue, aliceAddr, bobStore, bobCipher, aliceIdentity.Pub, reply)
	if err != nil {
		return fmt.Errorf("bob encrypt reply: %w", err)
	}
	log.WithFields(logrus.Fields{"from": cfg.BobID, "to": cfg.AliceID}).Infof("sent: %s", reply)

	plaintext, err := queue.Submit(ctx, bobAddr, func(ctx context.Context) (interface{}, error) {
		return aliceCipher.DecryptWhisperMessage(ctx, aliceStore, bobIdentity.Pub, replyEnv.Body, 2)
	})
	if err != nil {
		return fmt.Errorf("alice decrypt reply: %w", err)
	}
	log.WithFields(logrus.Fields{"from": cfg.BobID, "to": cfg.AliceID}).Infof("received: %s", plaintext.([]byte))

	return nil
}

// encryptFor loads the sender's record, encrypts under the per-bucket
// queue keyed on the recipient address, and persists the mutated
// record, mirroring how a real transport layer would serialize
// concurrent sends against the same session.
func encryptFor(ctx context.Context, queue *jobqueue.Queue, bucketKey string, s store.Store, c *sessioncipher.Cipher, remoteIdentity key.PublicKey, plaintext string) (sessioncipher.Envelope, error) {
	result, err := queue.Submit(ctx, bucketKey, func(ctx context.Context) (interface{}, error) {
		record, err := s.LoadSession(ctx, c.Addr)
		if err != nil {
			return sessioncipher.Envelope{}, err
		}
		env, err := c.Encrypt(record, remoteIdentity, []byte(plaintext))
		if err != nil {
			return sessioncipher.Envelope{}, err
		}
		if err := s.StoreSession(ctx, c.Addr, record); err != nil {
			return sessioncipher.Envelope{}, err
		}
		return env, nil
	})
	if err != nil {
		return sessioncipher.Envelope{}, err
	}
	return result.(sessioncipher.Envelope), nil
}

// deliverToBob dispatches a PreKeyWhisperMessage through the per-bucket
// queue keyed on the sender address, so out-of-order deliveries from
// the same session still serialize against each other.
func deliverToBob(ctx context.Context, queue *jobqueue.Queue, bucketKey string, s store.Store, c *sessioncipher.Cipher, env sessioncipher.Envelope) ([]byte, error) {
	result, err := queue.Submit(ctx, bucketKey, func(ctx context.Context) (interface{}, error) {
		return c.DecryptPreKeyWhisperMessage(ctx, s, env.Body, 1)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// newParticipantStore builds a store.Store for one side of the demo,
// seeded with a fresh identity and registration id, backed by either
// an in-memory map or redis per cfg.StoreBackend.
func newParticipantStore(ctx context.Context, cfg config.Demo, log *logrus.Logger) (participantStore, error) {
	identity, err := keys.GenerateIdentityKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	regID, err := keys.GenerateRegistrationId()
	if err != nil {
		return nil, fmt.Errorf("generate registration id: %w", err)
	}

	switch cfg.StoreBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		s := redisstore.New(client)
		if err := s.SetOurIdentity(ctx, identity); err != nil {
			return nil, err
		}
		if err := s.SetOurRegistrationID(ctx, regID); err != nil {
			return nil, err
		}
		return s, nil
	default:
		log.Debug("using in-memory store backend")
		return memstore.New(regID, identity), nil
	}
}

// participantStore is the subset of store.Store plus the seeding
// helpers both backends expose, used only by the demo's setup code.
type participantStore interface {
	store.Store
	PutPreKey(ctx context.Context, pk keys.PreKey) error
	PutSignedPreKey(ctx context.Context, spk keys.SignedPreKey) error
}
