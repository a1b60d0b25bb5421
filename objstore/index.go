// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// The badger-backed ExistsIndex below is a pure "digest known" existence
// cache: a miss always falls through to the filesystem, so deleting the
// index directory is always safe.
package objstore

import (
	"context"
	"encoding/json"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spawnhq/spawn/logging"
)

// a value log file is rewritten if half its space can be discarded.
const valueLogGCDiscardRatio = 0.5

const indexSchemaVersion = 1

type indexMetadata struct {
	SchemaVersion int `json:"schema_version"`
}

// BadgerIndex is an ExistsIndex backed by an embedded badger database. It
// is a pure cache over the blob store: a miss just means "check the
// filesystem", never "the blob is absent".
type BadgerIndex struct {
	db       *badger.DB
	gcTicker *time.Ticker
	close    chan struct{}
}

// logWrap adapts a logging.Logger to badger's Logger interface, the same
// level-gated wrapping storage/disk.go applies.
type logWrap struct{ l logging.Logger }

func (w *logWrap) debugDo(f func(string, ...interface{}), format string, a ...interface{}) {
	if w.l.GetLevel() >= logging.Debug {
		f("badger: "+format, a...)
	}
}
func (w *logWrap) Debugf(f string, a ...interface{})   { w.debugDo(w.l.Debug, f, a...) }
func (w *logWrap) Infof(f string, a ...interface{})    { w.debugDo(w.l.Info, f, a...) }
func (w *logWrap) Warningf(f string, a ...interface{}) { w.debugDo(w.l.Warn, f, a...) }
func (w *logWrap) Errorf(f string, a ...interface{})   { w.debugDo(w.l.Error, f, a...) }

// OpenBadgerIndex opens (or creates) an existence-cache database rooted at
// dir. prom may be nil to skip metric registration.
func OpenBadgerIndex(dir string, logger logging.Logger, prom prometheus.Registerer) (*BadgerIndex, error) {
	opts := badger.DefaultOptions(dir).WithLogger(&logWrap{logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	idx := &BadgerIndex{db: db, close: make(chan struct{}), gcTicker: time.NewTicker(time.Minute)}

	if err := db.Update(func(txn *badger.Txn) error {
		return idx.ensureSchema(txn)
	}); err != nil {
		idx.Close(context.Background())
		return nil, err
	}

	if prom != nil {
		_ = prom.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "spawn_blob_index_lsm_size_bytes",
			Help: "Approximate size of the blob existence index LSM tree.",
		}, func() float64 {
			lsm, _ := db.Size()
			return float64(lsm)
		}))
	}

	go idx.gcLoop(logger)

	return idx, nil
}

func (idx *BadgerIndex) ensureSchema(txn *badger.Txn) error {
	const metaKey = "__schema__"
	item, err := txn.Get([]byte(metaKey))
	if err == badger.ErrKeyNotFound {
		bs, _ := json.Marshal(indexMetadata{SchemaVersion: indexSchemaVersion})
		return txn.Set([]byte(metaKey), bs)
	}
	if err != nil {
		return err
	}
	return item.Value(func(bs []byte) error {
		var m indexMetadata
		if err := json.Unmarshal(bs, &m); err != nil {
			return err
		}
		if m.SchemaVersion != indexSchemaVersion {
			return nil // forward-compatible: an index rebuild on mismatch is cheap, never fatal.
		}
		return nil
	})
}

func (idx *BadgerIndex) gcLoop(logger logging.Logger) {
	for {
		select {
		case <-idx.close:
			return
		case <-idx.gcTicker.C:
			var err error
			for err == nil {
				err = idx.db.RunValueLogGC(valueLogGCDiscardRatio)
			}
			logger.Debug("blob index value log GC finished: %v", err)
		}
	}
}

// Has implements ExistsIndex.
func (idx *BadgerIndex) Has(d Digest) (bool, error) {
	var found bool
	err := idx.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(d))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Mark implements ExistsIndex.
func (idx *BadgerIndex) Mark(d Digest) error {
	return idx.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(d), []byte{1})
	})
}

// Close stops the background GC loop and closes the underlying database.
func (idx *BadgerIndex) Close(context.Context) error {
	close(idx.close)
	idx.gcTicker.Stop()
	return idx.db.Close()
}
