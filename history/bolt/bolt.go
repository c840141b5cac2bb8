// Package bolt persists gob-encoded mempool.Block records to BoltDB, as
// package db/bolt does for its predict scores and txs.
package bolt

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"time"

	"github.com/bitcoinfees/feesim/history"
	"github.com/bitcoinfees/feesim/mempool"
	"github.com/boltdb/bolt"
)

var _ history.DB = (*historydb)(nil)

type historydb struct {
	db       *bolt.DB
	bucket   []byte
	heightsB []byte
}

func Load(dbfile string) (*historydb, error) {
	db, err := bolt.Open(dbfile, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	d := &historydb{
		db:       db,
		bucket:   []byte("memblocks"),
		heightsB: []byte("memblocks_heights"),
	}
	err = d.db.Update(func(tr *bolt.Tx) error {
		if _, err := tr.CreateBucketIfNotExists(d.bucket); err != nil {
			return err
		}
		_, err := tr.CreateBucketIfNotExists(d.heightsB)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *historydb) Write(b *mempool.Block, retention int64) error {
	return d.db.Update(func(tr *bolt.Tx) error {
		bucket := tr.Bucket(d.bucket)
		heights := tr.Bucket(d.heightsB)

		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(b); err != nil {
			return err
		}
		key := itob(b.Height)
		if err := bucket.Put(key, buf.Bytes()); err != nil {
			return err
		}
		if err := heights.Put(key, nil); err != nil {
			return err
		}

		cutoff := b.Height - retention + 1
		c := heights.Cursor()
		var del [][]byte
		for k, _ := c.First(); k != nil && btoi(k) < cutoff; k, _ = c.Next() {
			del = append(del, append([]byte{}, k...))
		}
		for _, k := range del {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			if err := heights.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *historydb) Read(height int64) (*mempool.Block, error) {
	var b *mempool.Block
	err := d.db.View(func(tr *bolt.Tx) error {
		v := tr.Bucket(d.bucket).Get(itob(height))
		if v == nil {
			return history.HistoryMissingError{Height: height}
		}
		b = &mempool.Block{}
		return gob.NewDecoder(bytes.NewReader(v)).Decode(b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (d *historydb) ListHeights(start, end int64) ([]int64, error) {
	var heights []int64
	err := d.db.View(func(tr *bolt.Tx) error {
		c := tr.Bucket(d.heightsB).Cursor()
		startkey, endkey := itob(start), itob(end)
		for k, _ := c.Seek(startkey); k != nil && bytes.Compare(k, endkey) <= 0; k, _ = c.Next() {
			heights = append(heights, btoi(k))
		}
		return nil
	})
	return heights, err
}

func (d *historydb) Close() error {
	return d.db.Close()
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
