// Package storage keeps keymap and behavior data in flash as a log of
// key/value records.
//
// The region is split into erase sectors used as a ring. Each sector starts
// with a header carrying a sequence number; records are appended behind it
// and the newest record for a key wins. One sector is always kept erased:
// when the active sector fills, the store opens the free one and moves the
// live records out of the oldest sector before erasing it, so a power cut at
// any point leaves either the old or the new value readable.
//
// Keep writes the surviving records into the free sector and only then marks
// it as a base: sectors older than the newest base are dead and get erased.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"rmk/hal"
)

const (
	sectorMagic = 0x534B4D52 // "RMKS"
	headerSize  = 16
	recordHead  = 12
	erasedWord  = 0xFFFFFFFF
	erasedHalf  = 0xFFFF
	baseMark    = 0x45534142 // "BASE", written over the erased spare word

	// MinSectors is the smallest usable region.
	MinSectors = 2
)

var (
	ErrNotFound = errors.New("storage: item not found")
	ErrFull     = errors.New("storage: no space left")
	ErrCorrupt  = errors.New("storage: corrupt record")
	ErrTooLarge = errors.New("storage: value too large")
	ErrRegion   = errors.New("storage: bad region")
)

// Config places the store in flash.
type Config struct {
	// Start is the byte offset of the first sector; it must be erase-aligned.
	Start   uint32
	Sectors int
}

type sector struct {
	seq   uint32
	used  uint32
	valid bool
}

type loc struct {
	sector int
	off    uint32
	n      uint16
}

// Store is the flash KV. Safe for concurrent use; writes are serialized.
type Store struct {
	mu     sync.RWMutex
	flash  hal.Flash
	start  uint32
	size   uint32
	secs   []sector
	active int
	index  map[uint32]loc
	log    *slog.Logger
}

// Open mounts the region, formatting it when no sector carries a header. It
// fails with ErrCorrupt when a record inside the log does not check out; the
// caller decides whether to Format.
func Open(f hal.Flash, cfg Config, log *slog.Logger) (*Store, error) {
	s, err := newStore(f, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := s.mount(); err != nil {
		return nil, err
	}
	return s, nil
}

// Format erases the region and returns an empty store.
func Format(f hal.Flash, cfg Config, log *slog.Logger) (*Store, error) {
	s, err := newStore(f, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := s.format(); err != nil {
		return nil, err
	}
	return s, nil
}

func newStore(f hal.Flash, cfg Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	size := f.EraseBlockBytes()
	if size == 0 || cfg.Sectors < MinSectors {
		return nil, fmt.Errorf("%w: %d sectors of %d bytes", ErrRegion, cfg.Sectors, size)
	}
	if cfg.Start%size != 0 || uint64(cfg.Start)+uint64(size)*uint64(cfg.Sectors) > uint64(f.SizeBytes()) {
		return nil, fmt.Errorf("%w: start=%#x sectors=%d flash=%d", ErrRegion, cfg.Start, cfg.Sectors, f.SizeBytes())
	}
	return &Store{
		flash: f,
		start: cfg.Start,
		size:  size,
		secs:  make([]sector, cfg.Sectors),
		index: make(map[uint32]loc),
		log:   log,
	}, nil
}

func (s *Store) addr(i int, off uint32) uint32 { return s.start + uint32(i)*s.size + off }

func pad4(n int) uint32 { return uint32(n+3) &^ 3 }

func (s *Store) mount() error {
	var hdr [headerSize]byte
	var order []int
	base := -1
	for i := range s.secs {
		if _, err := s.flash.ReadAt(hdr[:], s.addr(i, 0)); err != nil {
			return fmt.Errorf("storage: read sector %d: %w", i, err)
		}
		magic := binary.LittleEndian.Uint32(hdr[0:4])
		seq := binary.LittleEndian.Uint32(hdr[4:8])
		sum := binary.LittleEndian.Uint32(hdr[8:12])
		if magic != sectorMagic || sum != crc32.ChecksumIEEE(hdr[0:8]) {
			continue
		}
		s.secs[i] = sector{seq: seq, used: headerSize, valid: true}
		order = append(order, i)
		if binary.LittleEndian.Uint32(hdr[12:16]) == baseMark && (base < 0 || seq > s.secs[base].seq) {
			base = i
		}
	}
	if len(order) == 0 {
		return s.format()
	}
	if base >= 0 {
		var err error
		if order, err = s.dropOlder(order, s.secs[base].seq); err != nil {
			return err
		}
	}
	slices.SortFunc(order, func(a, b int) int {
		return int(int64(s.secs[a].seq) - int64(s.secs[b].seq))
	})
	for _, i := range order {
		if err := s.scan(i); err != nil {
			return err
		}
	}
	s.active = order[len(order)-1]

	// A reclaim cut short leaves the sector after the active one in use.
	if next := (s.active + 1) % len(s.secs); s.secs[next].valid {
		s.log.Warn("storage: finishing interrupted reclaim", "sector", next)
		if err := s.reclaim(next); err != nil && !errors.Is(err, ErrFull) {
			return err
		}
	}
	return nil
}

// dropOlder erases the sectors of order older than seq, left behind by a Keep
// that was cut short, and returns the rest.
func (s *Store) dropOlder(order []int, seq uint32) ([]int, error) {
	live := order[:0]
	for _, i := range order {
		if s.secs[i].seq >= seq {
			live = append(live, i)
			continue
		}
		s.log.Warn("storage: finishing interrupted clear", "sector", i)
		if err := s.flash.Erase(s.addr(i, 0), s.size); err != nil {
			return nil, fmt.Errorf("storage: erase sector %d: %w", i, err)
		}
		s.secs[i] = sector{}
	}
	return live, nil
}

// scan replays the records of sector i into the index. A bad record followed
// by erased space is a cut write and seals the sector; anywhere else it is
// corruption.
func (s *Store) scan(i int) error {
	var head [recordHead]byte
	off := uint32(headerSize)
	for off+recordHead <= s.size {
		if _, err := s.flash.ReadAt(head[:], s.addr(i, off)); err != nil {
			return fmt.Errorf("storage: read sector %d at %d: %w", i, off, err)
		}
		key := binary.LittleEndian.Uint32(head[0:4])
		n := binary.LittleEndian.Uint16(head[4:6])
		sum := binary.LittleEndian.Uint32(head[8:12])
		if key == erasedWord && n == erasedHalf && sum == erasedWord {
			break
		}
		end := off + recordHead + pad4(int(n))
		ok := end <= s.size
		if ok {
			val := make([]byte, n)
			if _, err := s.flash.ReadAt(val, s.addr(i, off+recordHead)); err != nil {
				return fmt.Errorf("storage: read sector %d at %d: %w", i, off, err)
			}
			ok = sum == recordSum(head[0:6], val)
		}
		if !ok {
			if end < s.size && !s.erased(i, end) {
				return fmt.Errorf("%w: sector %d offset %d", ErrCorrupt, i, off)
			}
			s.log.Warn("storage: torn record, sealing sector", "sector", i, "offset", off)
			off = s.size
			break
		}
		if n == 0 {
			delete(s.index, key)
		} else {
			s.index[key] = loc{sector: i, off: off + recordHead, n: n}
		}
		off = end
	}
	s.secs[i].used = off
	return nil
}

func (s *Store) erased(i int, off uint32) bool {
	var head [recordHead]byte
	if off+recordHead > s.size {
		return true
	}
	if _, err := s.flash.ReadAt(head[:], s.addr(i, off)); err != nil {
		return false
	}
	for _, b := range head {
		if b != 0xFF {
			return false
		}
	}
	return true
}

func recordSum(head, val []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(head)
	h.Write(val)
	return h.Sum32()
}

func (s *Store) format() error {
	if err := s.flash.Erase(s.start, s.size*uint32(len(s.secs))); err != nil {
		return fmt.Errorf("storage: erase: %w", err)
	}
	for i := range s.secs {
		s.secs[i] = sector{}
	}
	clear(s.index)
	s.active = 0
	return s.open(0, 1)
}

func (s *Store) open(i int, seq uint32) error {
	if err := s.flash.Erase(s.addr(i, 0), s.size); err != nil {
		return fmt.Errorf("storage: erase sector %d: %w", i, err)
	}
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], sectorMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], seq)
	binary.LittleEndian.PutUint32(hdr[8:12], crc32.ChecksumIEEE(hdr[0:8]))
	binary.LittleEndian.PutUint32(hdr[12:16], erasedWord)
	if _, err := s.flash.WriteAt(hdr[:], s.addr(i, 0)); err != nil {
		return fmt.Errorf("storage: write header %d: %w", i, err)
	}
	s.secs[i] = sector{seq: seq, used: headerSize, valid: true}
	return nil
}

// rotate opens the free sector after the active one and, if that leaves no
// free sector, reclaims the oldest.
func (s *Store) rotate() error {
	next := (s.active + 1) % len(s.secs)
	if s.secs[next].valid {
		// A failed reclaim left it in use; erasing it would lose data.
		return ErrFull
	}
	if err := s.open(next, s.secs[s.active].seq+1); err != nil {
		return err
	}
	s.active = next
	if after := (next + 1) % len(s.secs); s.secs[after].valid {
		return s.reclaim(after)
	}
	return nil
}

// reclaim copies the live records of sector i into the active sector and
// erases i.
func (s *Store) reclaim(i int) error {
	var keys []uint32
	for k, l := range s.index {
		if l.sector == i {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		l := s.index[k]
		val := make([]byte, l.n)
		if _, err := s.flash.ReadAt(val, s.addr(l.sector, l.off)); err != nil {
			return fmt.Errorf("storage: reclaim read %#x: %w", k, err)
		}
		need := recordHead + pad4(len(val))
		if s.secs[s.active].used+need > s.size {
			return ErrFull
		}
		if err := s.append(k, val); err != nil {
			return err
		}
	}
	if err := s.flash.Erase(s.addr(i, 0), s.size); err != nil {
		return fmt.Errorf("storage: erase sector %d: %w", i, err)
	}
	s.secs[i] = sector{}
	return nil
}

// append writes one record at the end of the active sector.
func (s *Store) append(key uint32, val []byte) error {
	a := &s.secs[s.active]
	buf := make([]byte, recordHead+pad4(len(val)))
	for i := range buf {
		buf[i] = 0xFF
	}
	binary.LittleEndian.PutUint32(buf[0:4], key)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(val)))
	copy(buf[recordHead:], val)
	binary.LittleEndian.PutUint32(buf[8:12], recordSum(buf[0:6], val))
	off := a.used
	if _, err := s.flash.WriteAt(buf, s.addr(s.active, off)); err != nil {
		// The slot may be half written; never reuse it.
		a.used = s.size
		return fmt.Errorf("storage: write %#x: %w", key, err)
	}
	a.used += uint32(len(buf))
	if len(val) == 0 {
		delete(s.index, key)
	} else {
		s.index[key] = loc{sector: s.active, off: off + recordHead, n: uint16(len(val))}
	}
	return nil
}

func (s *Store) put(key uint32, val []byte) error {
	need := recordHead + pad4(len(val))
	if len(val) > erasedHalf-1 || need > s.size-headerSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(val))
	}
	for range s.secs {
		if s.secs[s.active].used+need <= s.size {
			return s.append(key, val)
		}
		if err := s.rotate(); err != nil {
			return err
		}
	}
	return ErrFull
}

// Put stores val under key. An empty val deletes the key.
func (s *Store) Put(key uint32, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(val) == 0 {
		if _, ok := s.index[key]; !ok {
			return nil
		}
	}
	return s.put(key, val)
}

// Delete writes a tombstone for key.
func (s *Store) Delete(key uint32) error { return s.Put(key, nil) }

// Get returns the newest value for key.
func (s *Store) Get(key uint32) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.index[key]
	if !ok {
		return nil, ErrNotFound
	}
	val := make([]byte, l.n)
	if _, err := s.flash.ReadAt(val, s.addr(l.sector, l.off)); err != nil {
		return nil, fmt.Errorf("storage: read %#x: %w", key, err)
	}
	return val, nil
}

// Has reports whether key holds a value.
func (s *Store) Has(key uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[key]
	return ok
}

// Len is the number of live keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Keys yields the live keys in ascending order.
func (s *Store) Keys() iter.Seq[uint32] {
	s.mu.RLock()
	keys := make([]uint32, 0, len(s.index))
	for k := range s.index {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	slices.Sort(keys)
	return slices.Values(keys)
}

// EraseAll drops every record.
func (s *Store) EraseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format()
}

// Keep drops every record keep rejects. The survivors are copied into the
// free sector, which is then marked as the new base before the old sectors
// are erased, so a power cut leaves either the old store or the kept one.
func (s *Store) Keep(keep func(key uint32, val []byte) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	type item struct {
		key uint32
		val []byte
	}
	var kept []item
	need := uint32(headerSize)
	for k, l := range s.index {
		val := make([]byte, l.n)
		if _, err := s.flash.ReadAt(val, s.addr(l.sector, l.off)); err != nil {
			return fmt.Errorf("storage: read %#x: %w", k, err)
		}
		if keep(k, val) {
			kept = append(kept, item{k, val})
			need += recordHead + pad4(len(val))
		}
	}
	if need > s.size {
		return fmt.Errorf("%w: kept records need %d bytes", ErrFull, need)
	}
	slices.SortFunc(kept, func(a, b item) int { return int(int64(a.key) - int64(b.key)) })

	next := (s.active + 1) % len(s.secs)
	if s.secs[next].valid {
		return ErrFull
	}
	if err := s.open(next, s.secs[s.active].seq+1); err != nil {
		return err
	}
	s.active = next
	for _, it := range kept {
		if err := s.append(it.key, it.val); err != nil {
			return err
		}
	}
	var mark [4]byte
	binary.LittleEndian.PutUint32(mark[:], baseMark)
	if _, err := s.flash.WriteAt(mark[:], s.addr(next, 12)); err != nil {
		return fmt.Errorf("storage: mark sector %d: %w", next, err)
	}
	maps.DeleteFunc(s.index, func(_ uint32, l loc) bool { return l.sector != next })
	for i := range s.secs {
		if i == next || !s.secs[i].valid {
			continue
		}
		if err := s.flash.Erase(s.addr(i, 0), s.size); err != nil {
			return fmt.Errorf("storage: erase sector %d: %w", i, err)
		}
		s.secs[i] = sector{}
	}
	return nil
}
