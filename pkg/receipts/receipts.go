package receipts

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/depotgate/depotgate/pkg/errdefs"
	"github.com/depotgate/depotgate/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var bucketReceipts = []byte("receipts")

// Store is the append-only receipt log. There is deliberately no update or
// delete method on this type.
type Store interface {
	Append(r *types.Receipt) error
	ListByTask(tenantID, rootTaskID string) ([]*types.Receipt, error)
	Close() error
}

// BoltStore implements Store on a dedicated BoltDB file, separate from the
// metadata database.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the receipt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open receipt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketReceipts)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Append inserts a receipt. A duplicate (tenant, receipt_id) fails; rows
// are never overwritten.
func (s *BoltStore) Append(r *types.Receipt) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceipts)
		k := []byte(r.TenantID + "/" + r.ReceiptID)
		if b.Get(k) != nil {
			return fmt.Errorf("receipt %s exists: %w", r.ReceiptID, errdefs.ErrReceiptWriteFailed)
		}
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put(k, data)
	})
}

// ListByTask returns the task's receipts ordered by emitted_at ascending.
func (s *BoltStore) ListByTask(tenantID, rootTaskID string) ([]*types.Receipt, error) {
	var receipts []*types.Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceipts)
		return b.ForEach(func(k, v []byte) error {
			var r types.Receipt
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.TenantID == tenantID && r.RootTaskID == rootTaskID {
				receipts = append(receipts, &r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(receipts, func(i, j int) bool {
		return receipts[i].EmittedAt.Before(receipts[j].EmittedAt)
	})
	return receipts, nil
}
