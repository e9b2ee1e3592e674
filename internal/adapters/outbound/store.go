package outbound

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
)

const (
	mailboxPrefix = "mbox/"
	mailboxTTL    = time.Minute
)

// Store is the document-store substrate: Deliver writes the encoded
// event into a per-endpoint mailbox in badger, and a single prefix
// subscription watches for new documents and hands them to whichever
// live connection the endpoint currently has. Undelivered documents age
// out by TTL; the store never retransmits.
type Store struct {
	db      *badger.DB
	resolve Resolver
	seq     atomic.Uint64
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewStore opens the mailbox database and starts the watch. An empty
// path opens badger in memory (used by tests and single-node runs).
func NewStore(ctx context.Context, path string, resolve Resolver) (*Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open mailbox store: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Store{
		db:      db,
		resolve: resolve,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.watch(ctx)
	return s, nil
}

func (s *Store) Deliver(id domain.EndpointID, ev core.Event) error {
	frame, err := ev.Encode()
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%s/%020d", mailboxPrefix, id, s.seq.Add(1))
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), frame).WithTTL(mailboxTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("mailbox write: %w", err)
	}
	return nil
}

func (s *Store) watch(ctx context.Context) {
	defer close(s.done)
	matches := []pb.Match{{Prefix: []byte(mailboxPrefix)}}
	err := s.db.Subscribe(ctx, func(kvs *badger.KVList) error {
		for _, kv := range kvs.Kv {
			s.dispatch(kv.Key, kv.Value)
		}
		return nil
	}, matches)
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Str("module", "outbound.store").Msg("mailbox watch stopped")
	}
}

func (s *Store) dispatch(key, value []byte) {
	if len(value) == 0 {
		// TTL expirations surface as empty values; nothing to deliver.
		return
	}
	rest := strings.TrimPrefix(string(key), mailboxPrefix)
	idx := strings.IndexByte(rest, '/')
	if idx <= 0 {
		return
	}
	id := domain.EndpointID(rest[:idx])
	conn, ok := s.resolve(id)
	if !ok || conn == nil {
		log.Debug().Str("module", "outbound.store").Str("id", string(id)).Msg("mailbox document with no live connection")
		return
	}
	if err := conn.TrySend(core.Frame(value)); err != nil {
		log.Debug().Err(err).Str("module", "outbound.store").Str("id", string(id)).Msg("mailbox send failed")
	}
}

func (s *Store) Close() {
	s.cancel()
	<-s.done
	if err := s.db.Close(); err != nil {
		log.Error().Err(err).Str("module", "outbound.store").Msg("close mailbox store")
	}
}
