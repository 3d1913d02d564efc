package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"

	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/observability/log"
)

// Badger stores zstd-compressed JSON exports under "<key>/<kind>".
type Badger struct {
	db  *badger.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// OpenBadger opens the database directory at path. An empty path opens an
// in-memory database.
func OpenBadger(path string, logger log.Log) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if logger != nil {
		logger.Debug("badger opened", log.String("path", path), log.Bool("in_memory", path == ""))
	}
	return &Badger{db: db, enc: enc, dec: dec}, nil
}

func (b *Badger) Backend() models.Backend { return models.BackendBadger }

func (b *Badger) Write(_ context.Context, recs []Record) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, rec := range recs {
		data, err := json.Marshal(rec.Export)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", rec.Key, rec.Kind, err)
		}
		if err := wb.Set([]byte(recordKey(rec.Key, rec.Kind)), b.enc.EncodeAll(data, nil)); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *Badger) Read(_ context.Context, key string, kind models.Kind) (models.Export, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordKey(key, kind)))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	data, err := b.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %s/%s: %w", key, kind, err)
	}
	var exp models.Export
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", key, kind, err)
	}
	return exp, nil
}

func (b *Badger) Close() error {
	b.dec.Close()
	_ = b.enc.Close()
	return b.db.Close()
}
