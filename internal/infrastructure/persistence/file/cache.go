// Package file provides a resolution cache persisted to a single file.
package file

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/repositories"
	"github.com/reglet-dev/fragment/internal/domain/values"
	"github.com/reglet-dev/fragment/internal/infrastructure/persistence/memory"
)

var _ repositories.ResolutionCache = (*Cache)(nil)

// File layout: magic, format version, compression tag, uncompressed
// payload length (big endian), payload. The payload is a CBOR array of
// records.
var magic = [4]byte{'F', 'R', 'G', 'C'}

const (
	formatVersion = 1
	headerSize    = len(magic) + 2 + 8
	// maxPayload bounds the allocation made for a corrupt length field.
	maxPayload = 1 << 30
)

// ErrCorrupt is returned for files that cannot be read back.
var ErrCorrupt = errors.New("corrupt cache file")

type record struct {
	Key       string `cbor:"1,keyasint"`
	Text      string `cbor:"2,keyasint"`
	Template  string `cbor:"3,keyasint,omitempty"`
	Engine    string `cbor:"4,keyasint,omitempty"`
	Node      string `cbor:"5,keyasint,omitempty"`
	InputHash string `cbor:"6,keyasint,omitempty"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("file: CBOR encoder initialization failed: " + err.Error())
	}
}

// Options configures a file cache.
type Options struct {
	Compression Compression
	// Prune drops entries not used since the last Load when flushing.
	Prune  bool
	Logger *slog.Logger
}

// Cache is a resolution cache backed by memory and persisted to path.
// Get and Put are safe for concurrent use. Load and Flush must not run
// concurrently with each other, and Load discards entries Put since the
// last Flush.
type Cache struct {
	path  string
	opts  Options
	mem   *memory.Cache
	mu    sync.Mutex
	dirty bool
}

// NewCache creates a cache persisted at path. Nothing is read until Load.
func NewCache(path string, opts Options) *Cache {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{path: path, opts: opts, mem: memory.NewCache()}
}

// Path returns the cache file path.
func (c *Cache) Path() string {
	return c.path
}

// Get returns the value stored under key.
func (c *Cache) Get(key values.CacheKey) (entities.ResolvedValue, bool) {
	return c.mem.Get(key)
}

// Put stores value under key.
func (c *Cache) Put(key values.CacheKey, value entities.ResolvedValue) {
	c.mem.Put(key, value)
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

// Len returns the number of entries in memory.
func (c *Cache) Len() int {
	return c.mem.Len()
}

// Stats returns the in-memory cache statistics.
func (c *Cache) Stats() memory.Stats {
	return c.mem.Stats()
}

// Load replaces the in-memory entries with the file contents. A missing
// file yields an empty cache. A corrupt file is logged and ignored; the
// next Flush overwrites it.
func (c *Cache) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		c.mem.Clear()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cache %s: %w", c.path, err)
	}

	records, err := decode(data)
	if err != nil {
		c.opts.Logger.Warn("discarding unreadable cache", "path", c.path, "error", err)
		c.mem.Clear()
		return nil
	}

	c.mem.Clear()
	skipped := 0
	for _, r := range records {
		key, value, err := r.entry()
		if err != nil {
			skipped++
			continue
		}
		c.mem.Seed(key, value)
	}

	c.mu.Lock()
	c.dirty = skipped > 0
	c.mu.Unlock()

	c.opts.Logger.Debug("cache loaded", "path", c.path, "entries", c.mem.Len(), "skipped", skipped)
	return nil
}

// Flush writes the cache to disk via a temporary file and rename, so a
// crash leaves either the old or the new file. Nothing is written when no
// entry changed and pruning is off.
func (c *Cache) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	dirty := c.dirty
	c.mu.Unlock()
	if !dirty && !c.opts.Prune {
		return nil
	}

	var records []record
	c.mem.Range(c.opts.Prune, func(k values.CacheKey, v entities.ResolvedValue) bool {
		records = append(records, newRecord(k, v))
		return true
	})
	slices.SortFunc(records, func(a, b record) int {
		return strings.Compare(a.Key, b.Key)
	})

	data, err := encode(records, c.opts.Compression)
	if err != nil {
		return err
	}

	if err := writeAtomic(c.path, data); err != nil {
		return err
	}

	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()

	c.opts.Logger.Debug("cache flushed", "path", c.path, "entries", len(records))
	return nil
}

func newRecord(k values.CacheKey, v entities.ResolvedValue) record {
	return record{
		Key:       k.String(),
		Text:      v.Text,
		Template:  v.Provenance.Template,
		Engine:    k.Engine.String(),
		Node:      v.Provenance.Node,
		InputHash: v.Provenance.InputHash,
	}
}

func (r record) entry() (values.CacheKey, entities.ResolvedValue, error) {
	key, err := values.ParseCacheKey(r.Key)
	if err != nil {
		return values.CacheKey{}, entities.ResolvedValue{}, err
	}
	value := entities.Rendered(r.Text, entities.Provenance{
		Node:      r.Node,
		Template:  r.Template,
		Engine:    key.Engine,
		InputHash: r.InputHash,
	})
	return key, value, nil
}

// encode serializes records into the cache file format. Payloads that do
// not shrink are stored uncompressed.
func encode(records []record, c Compression) ([]byte, error) {
	if records == nil {
		records = []record{}
	}
	payload, err := encMode.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encoding cache: %w", err)
	}

	body, err := compress(payload, c)
	if errors.Is(err, errIncompressible) {
		body, c = payload, CompressionNone
	} else if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(body)))
	buf.Write(magic[:])
	buf.WriteByte(formatVersion)
	buf.WriteByte(byte(c))
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(payload)))
	buf.Write(size[:])
	buf.Write(body)
	return buf.Bytes(), nil
}

// decode parses the cache file format.
func decode(data []byte) ([]record, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := data[len(magic)]; v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	c := Compression(data[len(magic)+1])
	size := binary.BigEndian.Uint64(data[len(magic)+2 : headerSize])
	if size > maxPayload {
		return nil, fmt.Errorf("%w: payload length %d", ErrCorrupt, size)
	}

	payload, err := decompress(data[headerSize:], c, int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	var records []record
	if err := cbor.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return records, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing cache: %w", err)
	}
	return nil
}
