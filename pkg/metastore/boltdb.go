package metastore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/depotgate/depotgate/pkg/errdefs"
	"github.com/depotgate/depotgate/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketArtifacts    = []byte("artifacts")
	bucketDeliverables = []byte("deliverables")
	bucketManifests    = []byte("manifests")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the metadata database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketArtifacts, bucketDeliverables, bucketManifests} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
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

// key scopes an id to its tenant.
func key(tenantID, id string) []byte {
	return []byte(tenantID + "/" + id)
}

// Pointer operations

// InsertPointer inserts a pointer row. Re-inserting an identical row is a
// no-op; a different row under the same id is a conflict.
func (s *BoltStore) InsertPointer(p *types.ArtifactPointer) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if existing := b.Get(key(p.TenantID, p.ArtifactID)); existing != nil {
			if bytes.Equal(existing, data) {
				return nil
			}
			return fmt.Errorf("artifact %s: %w", p.ArtifactID, errdefs.ErrPointerConflict)
		}
		return b.Put(key(p.TenantID, p.ArtifactID), data)
	})
}

func (s *BoltStore) GetPointer(tenantID, artifactID string) (*types.ArtifactPointer, error) {
	var p types.ArtifactPointer
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		data := b.Get(key(tenantID, artifactID))
		if data == nil {
			return fmt.Errorf("artifact %s: %w", artifactID, errdefs.ErrNotFound)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListLivePointers returns the live pointers of a task, newest first.
func (s *BoltStore) ListLivePointers(tenantID, rootTaskID string) ([]*types.ArtifactPointer, error) {
	var pointers []*types.ArtifactPointer
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		return b.ForEach(func(k, v []byte) error {
			var p types.ArtifactPointer
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if p.TenantID == tenantID && p.RootTaskID == rootTaskID && p.Live() {
				pointers = append(pointers, &p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(pointers, func(i, j int) bool {
		return pointers[i].CreatedAt.After(pointers[j].CreatedAt)
	})
	return pointers, nil
}

// MarkPurged stamps PurgedAt (and optionally PurgeAfter) on the selected
// live pointers. Already-purged pointers are skipped; unknown ids are
// ignored.
func (s *BoltStore) MarkPurged(tenantID, rootTaskID string, artifactIDs []string, purgedAt time.Time, purgeAfter *time.Time) ([]*types.ArtifactPointer, error) {
	var selected map[string]bool
	if artifactIDs != nil {
		selected = make(map[string]bool, len(artifactIDs))
		for _, id := range artifactIDs {
			selected[id] = true
		}
	}

	var affected []*types.ArtifactPointer
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		var updates []*types.ArtifactPointer
		err := b.ForEach(func(k, v []byte) error {
			var p types.ArtifactPointer
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if p.TenantID != tenantID || p.RootTaskID != rootTaskID || !p.Live() {
				return nil
			}
			if selected != nil && !selected[p.ArtifactID] {
				return nil
			}
			at := purgedAt
			p.PurgedAt = &at
			p.PurgeAfter = purgeAfter
			updates = append(updates, &p)
			return nil
		})
		if err != nil {
			return err
		}
		for _, p := range updates {
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if err := b.Put(key(p.TenantID, p.ArtifactID), data); err != nil {
				return err
			}
		}
		affected = updates
		return nil
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// Deliverable operations

func (s *BoltStore) InsertDeliverable(d *types.Deliverable) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeliverables)
		if b.Get(key(d.TenantID, d.DeliverableID)) != nil {
			return fmt.Errorf("deliverable %s already exists", d.DeliverableID)
		}
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		return b.Put(key(d.TenantID, d.DeliverableID), data)
	})
}

func (s *BoltStore) GetDeliverable(tenantID, deliverableID string) (*types.Deliverable, error) {
	var d types.Deliverable
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeliverables)
		data := b.Get(key(tenantID, deliverableID))
		if data == nil {
			return fmt.Errorf("deliverable %s: %w", deliverableID, errdefs.ErrNotFound)
		}
		return json.Unmarshal(data, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// MarkRequirement records an out-of-band requirement mark on the
// deliverable row.
func (s *BoltStore) MarkRequirement(tenantID, deliverableID, name string, at time.Time) (*types.Deliverable, error) {
	var d types.Deliverable
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeliverables)
		data := b.Get(key(tenantID, deliverableID))
		if data == nil {
			return fmt.Errorf("deliverable %s: %w", deliverableID, errdefs.ErrNotFound)
		}
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		if err := statusError(d.Status); err != nil {
			return err
		}
		declared := false
		for _, r := range d.Spec.Requirements {
			if r == name {
				declared = true
				break
			}
		}
		if !declared {
			return fmt.Errorf("requirement %q not declared on %s: %w", name, deliverableID, errdefs.ErrNotFound)
		}
		if d.MarkedRequirements == nil {
			d.MarkedRequirements = make(map[string]time.Time)
		}
		if _, already := d.MarkedRequirements[name]; !already {
			d.MarkedRequirements[name] = at
		}
		updated, err := json.Marshal(&d)
		if err != nil {
			return err
		}
		return b.Put(key(tenantID, deliverableID), updated)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// TransitionDeliverable CASes the status column from from to to. A
// mismatch on a terminal status surfaces as the re-entry error for that
// status.
func (s *BoltStore) TransitionDeliverable(tenantID, deliverableID string, from, to types.DeliverableStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		current, err := casStatus(tx, tenantID, deliverableID, from, to)
		if err != nil {
			return err
		}
		if current != "" {
			if serr := statusError(current); serr != nil {
				return fmt.Errorf("deliverable %s: %w", deliverableID, serr)
			}
			return fmt.Errorf("deliverable %s is %s: %w", deliverableID, current, errdefs.ErrRaceLost)
		}
		return nil
	})
}

// CommitShipment groups the declared→shipped CAS and the manifest insert
// in one transaction. A CAS mismatch rolls everything back.
func (s *BoltStore) CommitShipment(m *types.ShipmentManifest) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		current, err := casStatus(tx, m.TenantID, m.DeliverableID, types.StatusDeclared, types.StatusShipped)
		if err != nil {
			return err
		}
		if current != "" {
			return fmt.Errorf("deliverable %s is %s: %w", m.DeliverableID, current, errdefs.ErrRaceLost)
		}
		b := tx.Bucket(bucketManifests)
		if b.Get(key(m.TenantID, m.ManifestID)) != nil {
			return fmt.Errorf("manifest %s already exists", m.ManifestID)
		}
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return b.Put(key(m.TenantID, m.ManifestID), data)
	})
}

func (s *BoltStore) GetManifest(tenantID, manifestID string) (*types.ShipmentManifest, error) {
	var m types.ShipmentManifest
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketManifests)
		data := b.Get(key(tenantID, manifestID))
		if data == nil {
			return fmt.Errorf("manifest %s: %w", manifestID, errdefs.ErrNotFound)
		}
		return json.Unmarshal(data, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// casStatus performs the status compare-and-swap inside an open write
// transaction. On a mismatch it returns the row's current status and no
// error; the caller decides how the mismatch surfaces.
func casStatus(tx *bolt.Tx, tenantID, deliverableID string, from, to types.DeliverableStatus) (types.DeliverableStatus, error) {
	b := tx.Bucket(bucketDeliverables)
	data := b.Get(key(tenantID, deliverableID))
	if data == nil {
		return "", fmt.Errorf("deliverable %s: %w", deliverableID, errdefs.ErrNotFound)
	}
	var d types.Deliverable
	if err := json.Unmarshal(data, &d); err != nil {
		return "", err
	}
	if d.Status != from {
		return d.Status, nil
	}
	d.Status = to
	updated, err := json.Marshal(&d)
	if err != nil {
		return "", err
	}
	return "", b.Put(key(tenantID, deliverableID), updated)
}

// statusError maps a terminal status to its re-entry error.
func statusError(status types.DeliverableStatus) error {
	switch status {
	case types.StatusShipped:
		return errdefs.ErrAlreadyShipped
	case types.StatusRejected:
		return errdefs.ErrAlreadyRejected
	}
	return nil
}
