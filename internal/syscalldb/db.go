// Package syscalldb implements C4, the persistent record of which syscalls
// a given (profile, binary) pair has been observed to use. The store is a
// single bbolt file opened once per process and guarded the way the
// reference registry guards its in-memory map (see DESIGN.md): bbolt's own
// single-writer/many-reader transaction model replaces the RWMutex there,
// since the data now has to survive process exit.
package syscalldb

import (
	"encoding/binary"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/antimony-sandbox/antimony/usefulerror"
)

var (
	bucketBinaries       = []byte("binaries")        // path -> id
	bucketProfiles       = []byte("profiles")        // name -> id
	bucketSyscalls       = []byte("syscalls")        // name -> id
	bucketBinarySyscalls = []byte("binary_syscalls") // id(binary)+id(profile) -> set<id(syscall)>
	bucketProfileBinaries = []byte("profile_binaries") // id(profile) -> set<id(binary)>
)

// DB is a handle to the on-disk syscall database.
type DB struct {
	bolt *bbolt.DB
}

// Open opens (creating if absent) the bbolt file at path and ensures all
// buckets exist.
func Open(path string) (*DB, error) {
	bolt, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, usefulerror.Useful().WithCode(usefulerror.ErrCodeDatabase).
			WithHumanError("Could not open the syscall database").Wrap(err)
	}

	db := &DB{bolt: bolt}
	if err := db.bolt.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketBinaries, bucketProfiles, bucketSyscalls, bucketBinarySyscalls, bucketProfileBinaries} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		bolt.Close()
		return nil, usefulerror.Useful().WithCode(usefulerror.ErrCodeDatabase).
			WithHumanError("Could not initialise the syscall database").Wrap(err)
	}

	return db, nil
}

// Close closes the underlying bbolt file.
func (db *DB) Close() error {
	return db.bolt.Close()
}

func idFor(tx *bbolt.Tx, bucket []byte, key string) (uint64, error) {
	b := tx.Bucket(bucket)
	if v := b.Get([]byte(key)); v != nil {
		return binary.BigEndian.Uint64(v), nil
	}
	seq, err := b.NextSequence()
	if err != nil {
		return 0, err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	if err := b.Put([]byte(key), buf); err != nil {
		return 0, err
	}
	return seq, nil
}

func assocKey(a, b uint64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], a)
	binary.BigEndian.PutUint64(buf[8:], b)
	return buf
}

func encodeIDSet(ids map[uint64]bool) []byte {
	sorted := make([]uint64, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	buf := make([]byte, 8*len(sorted))
	for i, id := range sorted {
		binary.BigEndian.PutUint64(buf[i*8:], id)
	}
	return buf
}

func decodeIDSet(data []byte) map[uint64]bool {
	set := make(map[uint64]bool, len(data)/8)
	for i := 0; i+8 <= len(data); i += 8 {
		set[binary.BigEndian.Uint64(data[i:i+8])] = true
	}
	return set
}

// InsertBinary registers path (if not already present) and returns its id.
func (db *DB) InsertBinary(path string) (uint64, error) {
	var id uint64
	err := db.bolt.Update(func(tx *bbolt.Tx) error {
		var err error
		id, err = idFor(tx, bucketBinaries, path)
		return err
	})
	return id, err
}

// BinaryID looks up path's id without creating it, returning ok=false if
// the binary has never been recorded.
func (db *DB) BinaryID(path string) (id uint64, ok bool, err error) {
	err = db.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketBinaries).Get([]byte(path))
		if v == nil {
			return nil
		}
		id = binary.BigEndian.Uint64(v)
		ok = true
		return nil
	})
	return id, ok, err
}

// InsertProfile registers name (if not already present) and returns its id.
func (db *DB) InsertProfile(name string) (uint64, error) {
	var id uint64
	err := db.bolt.Update(func(tx *bbolt.Tx) error {
		var err error
		id, err = idFor(tx, bucketProfiles, name)
		return err
	})
	return id, err
}

// ProfileID looks up name's id without creating it.
func (db *DB) ProfileID(name string) (id uint64, ok bool, err error) {
	err = db.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketProfiles).Get([]byte(name))
		if v == nil {
			return nil
		}
		id = binary.BigEndian.Uint64(v)
		ok = true
		return nil
	})
	return id, ok, err
}

// RecordSyscalls merges calls into the recorded set for (profile, binary),
// registering the profile/binary/syscall names as needed.
func (db *DB) RecordSyscalls(profile, bin string, calls []string) error {
	return db.bolt.Update(func(tx *bbolt.Tx) error {
		profileID, err := idFor(tx, bucketProfiles, profile)
		if err != nil {
			return err
		}
		binaryID, err := idFor(tx, bucketBinaries, bin)
		if err != nil {
			return err
		}

		key := assocKey(binaryID, profileID)
		bsBucket := tx.Bucket(bucketBinarySyscalls)
		set := decodeIDSet(bsBucket.Get(key))

		for _, call := range calls {
			id, err := idFor(tx, bucketSyscalls, call)
			if err != nil {
				return err
			}
			set[id] = true
		}

		if err := bsBucket.Put(key, encodeIDSet(set)); err != nil {
			return err
		}

		pbBucket := tx.Bucket(bucketProfileBinaries)
		binSet := decodeIDSet(pbBucket.Get(binaryFor(profileID)))
		binSet[binaryID] = true
		return pbBucket.Put(binaryFor(profileID), encodeIDSet(binSet))
	})
}

func binaryFor(profileID uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, profileID)
	return buf
}

// BinarySyscalls returns the recorded syscall names for (profile, binary).
func (db *DB) BinarySyscalls(profile, bin string) ([]string, error) {
	var names []string
	err := db.bolt.View(func(tx *bbolt.Tx) error {
		profileV := tx.Bucket(bucketProfiles).Get([]byte(profile))
		binV := tx.Bucket(bucketBinaries).Get([]byte(bin))
		if profileV == nil || binV == nil {
			return nil
		}
		profileID := binary.BigEndian.Uint64(profileV)
		binaryID := binary.BigEndian.Uint64(binV)

		set := decodeIDSet(tx.Bucket(bucketBinarySyscalls).Get(assocKey(binaryID, profileID)))
		names = resolveNames(tx, bucketSyscalls, set)
		return nil
	})
	return names, err
}

// GetCalls returns the union of recorded syscalls for the profile's own
// binaries plus extraBinaries, as (programCalls, executorCalls): the
// reference splits the sandboxed program's own syscall needs from the
// wrapper/executor's, since the two run under different filters.
func (db *DB) GetCalls(profile string, extraBinaries []string) (programCalls, executorCalls []string, err error) {
	err = db.bolt.View(func(tx *bbolt.Tx) error {
		profileV := tx.Bucket(bucketProfiles).Get([]byte(profile))
		if profileV == nil {
			return nil
		}
		profileID := binary.BigEndian.Uint64(profileV)

		binIDs := decodeIDSet(tx.Bucket(bucketProfileBinaries).Get(binaryFor(profileID)))

		extraIDs := make(map[uint64]bool)
		for _, extra := range extraBinaries {
			if v := tx.Bucket(bucketBinaries).Get([]byte(extra)); v != nil {
				extraIDs[binary.BigEndian.Uint64(v)] = true
			}
		}

		programSet := make(map[uint64]bool)
		for binID := range binIDs {
			if extraIDs[binID] {
				continue
			}
			for id := range decodeIDSet(tx.Bucket(bucketBinarySyscalls).Get(assocKey(binID, profileID))) {
				programSet[id] = true
			}
		}
		programCalls = resolveNames(tx, bucketSyscalls, programSet)

		executorSet := make(map[uint64]bool)
		for _, extra := range extraBinaries {
			v := tx.Bucket(bucketBinaries).Get([]byte(extra))
			if v == nil {
				continue
			}
			binID := binary.BigEndian.Uint64(v)
			for id := range decodeIDSet(tx.Bucket(bucketBinarySyscalls).Get(assocKey(binID, profileID))) {
				executorSet[id] = true
			}
		}
		executorCalls = resolveNames(tx, bucketSyscalls, executorSet)
		return nil
	})
	return programCalls, executorCalls, err
}

func resolveNames(tx *bbolt.Tx, bucket []byte, ids map[uint64]bool) []string {
	if len(ids) == 0 {
		return nil
	}
	byID := make(map[uint64]string, len(ids))
	c := tx.Bucket(bucket).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		id := binary.BigEndian.Uint64(v)
		if ids[id] {
			byID[id] = string(k)
		}
	}
	names := make([]string, 0, len(byID))
	for _, name := range byID {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
