package syscalldb

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/antimony-sandbox/antimony/usefulerror"
)

// Export copies the database file verbatim to dest, mirroring the
// reference's administrative `seccomp export`: a literal file copy, not a
// re-serialisation, so a subsequent Merge of that export into an empty
// database round-trips exactly.
func (db *DB) Export(dest string) error {
	src, err := os.Open(db.bolt.Path())
	if err != nil {
		return wrapAdminErr("Could not open the syscall database for export", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return wrapAdminErr("Could not create the export destination directory", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return wrapAdminErr("Could not create the export destination", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return wrapAdminErr("Could not copy the syscall database", err)
	}
	return nil
}

// Merge unions another database at path into db, by name rather than by
// raw id — the other database's binaries/profiles/syscalls are looked up
// (or created) by their string keys in db, and every binary_syscalls /
// profile_binaries association is re-keyed against db's own ids. This
// mirrors the reference's ATTACH DATABASE + "INSERT OR IGNORE ... JOIN ...
// ON name" merge, adapted from SQL joins to explicit bbolt lookups.
func (db *DB) Merge(path string) error {
	other, err := Open(path)
	if err != nil {
		return err
	}
	defer other.Close()

	type assoc struct {
		binaryPath, profileName string
		syscalls                []string
	}
	var assocs []assoc

	if err := other.bolt.View(func(tx *bbolt.Tx) error {
		pb := tx.Bucket(bucketProfileBinaries)
		bs := tx.Bucket(bucketBinarySyscalls)

		profileNames := map[uint64]string{}
		tx.Bucket(bucketProfiles).ForEach(func(k, v []byte) error {
			profileNames[binary.BigEndian.Uint64(v)] = string(k)
			return nil
		})
		binaryPaths := map[uint64]string{}
		tx.Bucket(bucketBinaries).ForEach(func(k, v []byte) error {
			binaryPaths[binary.BigEndian.Uint64(v)] = string(k)
			return nil
		})

		return pb.ForEach(func(k, v []byte) error {
			profileID := binary.BigEndian.Uint64(k)
			profileName, ok := profileNames[profileID]
			if !ok {
				return nil
			}
			for binID := range decodeIDSet(v) {
				binPath, ok := binaryPaths[binID]
				if !ok {
					continue
				}
				calls := resolveNames(tx, bucketSyscalls, decodeIDSet(bs.Get(assocKey(binID, profileID))))
				assocs = append(assocs, assoc{binaryPath: binPath, profileName: profileName, syscalls: calls})
			}
			return nil
		})
	}); err != nil {
		return wrapAdminErr("Could not read the database being merged", err)
	}

	for _, a := range assocs {
		if err := db.RecordSyscalls(a.profileName, a.binaryPath, a.syscalls); err != nil {
			return wrapAdminErr("Could not merge a recorded association", err)
		}
	}
	return nil
}

// Optimize compacts the database file, mirroring the reference's
// `VACUUM; ANALYZE;` — bbolt has no query planner to analyze, but free
// pages left by deleted keys (Clean, Merge-overwrite) accumulate the same
// way SQLite's do, so periodic compaction is the equivalent maintenance.
func (db *DB) Optimize() error {
	tmp := db.bolt.Path() + ".compact"
	dst, err := bbolt.Open(tmp, 0o600, nil)
	if err != nil {
		return wrapAdminErr("Could not open a compaction target", err)
	}

	err = db.bolt.View(func(srcTx *bbolt.Tx) error {
		return dst.Update(func(dstTx *bbolt.Tx) error {
			return srcTx.ForEach(func(name []byte, b *bbolt.Bucket) error {
				nb, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return b.ForEach(func(k, v []byte) error {
					return nb.Put(append([]byte{}, k...), append([]byte{}, v...))
				})
			})
		})
	})
	dst.Close()
	if err != nil {
		os.Remove(tmp)
		return wrapAdminErr("Could not compact the syscall database", err)
	}

	path := db.bolt.Path()
	if err := db.bolt.Close(); err != nil {
		os.Remove(tmp)
		return wrapAdminErr("Could not close the database before compaction swap", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return wrapAdminErr("Could not replace the database with its compacted form", err)
	}

	reopened, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return wrapAdminErr("Could not reopen the syscall database after compaction", err)
	}
	db.bolt = reopened
	return nil
}

// Clean drops profiles whose backing file no longer exists (per
// profileExists), prunes their profile_binaries rows, then drops binaries
// whose path no longer exists (per binaryExists) and, in a third pass,
// binaries no remaining profile references. The returned binary list holds
// only the second pass's removals. Mirrors `seccomp.rs`'s Clean operation's three
// passes, with the filesystem existence checks supplied by the caller so
// this package doesn't need to know about profile paths or sandbox homes.
func (db *DB) Clean(profileExists func(name string) bool, binaryExists func(path string) bool) ([]string, []string, error) {
	var removedProfiles, removedBinaries []string

	err := db.bolt.Update(func(tx *bbolt.Tx) error {
		profiles := tx.Bucket(bucketProfiles)
		var staleProfiles []uint64
		profiles.ForEach(func(k, v []byte) error {
			name := string(k)
			if name == "xdg-dbus-proxy" {
				return nil
			}
			if !profileExists(name) {
				staleProfiles = append(staleProfiles, binary.BigEndian.Uint64(v))
				removedProfiles = append(removedProfiles, name)
			}
			return nil
		})
		for _, id := range staleProfiles {
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, id)
			profiles.Delete(resolveNameKey(profiles, id))
			tx.Bucket(bucketProfileBinaries).Delete(key)
		}

		binaries := tx.Bucket(bucketBinaries)
		var staleBinaries []uint64
		binaries.ForEach(func(k, v []byte) error {
			path := string(k)
			if len(path) >= len("flatpak-spawn") && path[len(path)-len("flatpak-spawn"):] == "flatpak-spawn" {
				return nil
			}
			if !binaryExists(path) {
				staleBinaries = append(staleBinaries, binary.BigEndian.Uint64(v))
				removedBinaries = append(removedBinaries, path)
			}
			return nil
		})
		for _, id := range staleBinaries {
			binaries.Delete(resolveNameKey(binaries, id))
		}

		referenced := map[uint64]bool{}
		tx.Bucket(bucketProfileBinaries).ForEach(func(_, v []byte) error {
			for id := range decodeIDSet(v) {
				referenced[id] = true
			}
			return nil
		})
		var orphaned []uint64
		binaries.ForEach(func(_, v []byte) error {
			id := binary.BigEndian.Uint64(v)
			if !referenced[id] {
				orphaned = append(orphaned, id)
			}
			return nil
		})
		for _, id := range orphaned {
			binaries.Delete(resolveNameKey(binaries, id))
		}

		return nil
	})
	if err != nil {
		return nil, nil, wrapAdminErr("Could not clean the syscall database", err)
	}
	return removedProfiles, removedBinaries, nil
}

// Remove drops a single named profile's recorded syscall associations,
// mirroring the reference's administrative `seccomp remove`. Unlike Clean,
// which prunes whatever no longer exists on disk, Remove targets one named
// profile regardless of whether its backing file still exists.
func (db *DB) Remove(profileName string) error {
	return db.bolt.Update(func(tx *bbolt.Tx) error {
		profiles := tx.Bucket(bucketProfiles)
		v := profiles.Get([]byte(profileName))
		if v == nil {
			return nil
		}
		id := binary.BigEndian.Uint64(v)

		if err := profiles.Delete([]byte(profileName)); err != nil {
			return err
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, id)
		return tx.Bucket(bucketProfileBinaries).Delete(key)
	})
}

func resolveNameKey(b *bbolt.Bucket, id uint64) []byte {
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if binary.BigEndian.Uint64(v) == id {
			return k
		}
	}
	return nil
}

func wrapAdminErr(msg string, err error) error {
	return usefulerror.Useful().WithCode(usefulerror.ErrCodeDatabase).WithHumanError(msg).Wrap(err)
}
