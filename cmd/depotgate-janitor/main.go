package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	metadataDB  = flag.String("metadata-db", "/var/lib/depotgate/depotgate.db", "Path to the metadata database")
	stagingBase = flag.String("staging-base", "/var/lib/depotgate/staging", "Staging base directory")
	dryRun      = flag.Bool("dry-run", false, "Show what would be deleted without making changes")
)

// pointerRow mirrors the persisted pointer fields the janitor needs.
type pointerRow struct {
	ArtifactID string     `json:"artifact_id"`
	Location   string     `json:"location"`
	PurgedAt   *time.Time `json:"purged_at,omitempty"`
	PurgeAfter *time.Time `json:"purge_after,omitempty"`
}

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("DepotGate Janitor - deferred purges and orphan accounting")
	log.Println("=========================================================")

	if _, err := os.Stat(*metadataDB); os.IsNotExist(err) {
		log.Fatalf("Metadata database not found at %s", *metadataDB)
	}

	db, err := bolt.Open(*metadataDB, 0600, &bolt.Options{ReadOnly: true})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	referenced, expired := scanPointers(db)
	deleteExpired(expired)
	reportOrphans(referenced)
}

// scanPointers walks the artifacts bucket once, collecting every
// referenced on-disk path and the purged rows whose retention window has
// passed.
func scanPointers(db *bolt.DB) (referenced map[string]bool, expired []pointerRow) {
	referenced = make(map[string]bool)
	now := time.Now().UTC()

	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte("artifacts"))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var p pointerRow
			if err := json.Unmarshal(v, &p); err != nil {
				log.Printf("skipping unreadable row %s: %v", k, err)
				return nil
			}
			if abs, ok := fsPath(p.Location); ok {
				switch {
				case p.PurgedAt == nil:
					referenced[abs] = true
				case p.PurgeAfter != nil && p.PurgeAfter.Before(now):
					expired = append(expired, p)
				case p.PurgeAfter != nil:
					// Still inside the retention window: keep the bytes.
					referenced[abs] = true
				}
			}
			return nil
		})
	})
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}

	log.Printf("%d live blobs referenced, %d deferred purges due", len(referenced), len(expired))
	return referenced, expired
}

// deleteExpired removes the bytes of purged pointers whose purge_after has
// passed.
func deleteExpired(expired []pointerRow) {
	for _, p := range expired {
		abs, ok := fsPath(p.Location)
		if !ok {
			continue
		}
		if *dryRun {
			log.Printf("[dry-run] would delete %s (artifact %s)", abs, p.ArtifactID)
			continue
		}
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			log.Printf("failed to delete %s: %v", abs, err)
			continue
		}
		log.Printf("deleted %s (artifact %s)", abs, p.ArtifactID)
	}
}

// reportOrphans lists blobs on disk that neither a live pointer nor a purged
// pointer still inside its retention window references.
// Orphans are reported, never auto-deleted: the pointer row is the source
// of truth and a report is recoverable either way.
func reportOrphans(referenced map[string]bool) {
	orphans := 0
	err := filepath.Walk(*stagingBase, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if !referenced[path] {
			log.Printf("orphan blob: %s (%d bytes)", path, info.Size())
			orphans++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		log.Printf("orphan scan failed: %v", err)
		return
	}
	log.Printf("%d orphan blobs found", orphans)
}

// fsPath maps a fs:// location onto the staging base. Non-fs locations
// are skipped.
func fsPath(location string) (string, bool) {
	const prefix = "fs://"
	if len(location) <= len(prefix) || location[:len(prefix)] != prefix {
		return "", false
	}
	return filepath.Join(*stagingBase, filepath.FromSlash(location[len(prefix):])), true
}
