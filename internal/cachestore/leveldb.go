package cachestore

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const entryPrefix = "e:"

type diskEntry struct {
	Value     []byte
	ExpiresAt int64 // unix nanos, 0 = never
}

// LevelDB keeps entries on disk so they survive restarts of a single instance.
type LevelDB struct {
	db  *leveldb.DB
	log *logrus.Entry
	now func() time.Time

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ Store = (*LevelDB)(nil)

func OpenLevelDB(path string, sweepEvery time.Duration, log *logrus.Entry) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	d := &LevelDB{
		db:     db,
		log:    log,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	if sweepEvery > 0 {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.sweepLoop(sweepEvery)
		}()
	}
	return d, nil
}

func (d *LevelDB) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := d.db.Get([]byte(entryPrefix+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ent diskEntry
	if err := decodeGob(b, &ent); err != nil {
		return nil, false, fmt.Errorf("decode %q: %w", key, err)
	}
	if expired(ent.ExpiresAt, d.now()) {
		_ = d.db.Delete([]byte(entryPrefix+key), nil)
		return nil, false, nil
	}
	return ent.Value, true, nil
}

func (d *LevelDB) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	b, err := encodeGob(diskEntry{Value: val, ExpiresAt: deadline(d.now(), ttl)})
	if err != nil {
		return err
	}
	return d.db.Put([]byte(entryPrefix+key), b, nil)
}

func (d *LevelDB) Ping(context.Context) error {
	_, err := d.db.GetProperty("leveldb.num-files-at-level0")
	return err
}

func (d *LevelDB) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.stopCh)
		d.wg.Wait()
		err = d.db.Close()
	})
	return err
}

func (d *LevelDB) sweepLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-t.C:
			n, err := d.sweep()
			if err != nil {
				d.log.Warnf("leveldb sweep: %v", err)
				continue
			}
			if n > 0 {
				d.log.Debugf("leveldb sweep removed %d expired entries", n)
			}
		}
	}
}

// sweep deletes every expired entry in one batch.
func (d *LevelDB) sweep() (int, error) {
	it := d.db.NewIterator(util.BytesPrefix([]byte(entryPrefix)), nil)
	defer it.Release()

	now := d.now()
	batch := new(leveldb.Batch)
	for it.Next() {
		var ent diskEntry
		if err := decodeGob(it.Value(), &ent); err != nil {
			batch.Delete(append([]byte(nil), it.Key()...))
			continue
		}
		if expired(ent.ExpiresAt, now) {
			batch.Delete(append([]byte(nil), it.Key()...))
		}
	}
	if err := it.Error(); err != nil {
		return 0, err
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	return batch.Len(), d.db.Write(batch, nil)
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
