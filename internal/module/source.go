package module

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"wisp/internal/memory"
)

// FileLoader resolves a unit by name against a search path and caches the
// decoded result, the same search-path/cache shape the teacher's
// ModuleLoader uses for its source-file imports — generalized here from
// parsing `.sn` source text to decoding this VM's own gob-encoded Unit
// wire format, since surface syntax is out of this core's scope.
type FileLoader struct {
	mu         sync.RWMutex
	cache      map[string]Unit
	searchPath []string
}

// NewFileLoader returns a loader searching the current directory, a
// local "units" directory, and any directories added with AddSearchPath.
func NewFileLoader() *FileLoader {
	return &FileLoader{
		cache:      make(map[string]Unit),
		searchPath: []string{".", "./units"},
	}
}

// AddSearchPath appends a directory to the search path.
func (fl *FileLoader) AddSearchPath(path string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.searchPath = append(fl.searchPath, path)
}

// SearchPath returns the current search path.
func (fl *FileLoader) SearchPath() []string {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return append([]string(nil), fl.searchPath...)
}

// ClearCache drops every cached unit.
func (fl *FileLoader) ClearCache() {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.cache = make(map[string]Unit)
}

// Resolve loads the unit named name, consulting the cache first, then
// searching the configured path for a "<name>.wisp" file.
func (fl *FileLoader) Resolve(name string) (Unit, error) {
	fl.mu.RLock()
	if u, ok := fl.cache[name]; ok {
		fl.mu.RUnlock()
		return u, nil
	}
	fl.mu.RUnlock()

	path, err := fl.find(name)
	if err != nil {
		return Unit{}, err
	}
	u, err := ReadUnitFile(path)
	if err != nil {
		return Unit{}, fmt.Errorf("loading unit %s: %w", name, err)
	}

	fl.mu.Lock()
	fl.cache[name] = u
	fl.mu.Unlock()
	return u, nil
}

func (fl *FileLoader) find(name string) (string, error) {
	if strings.HasSuffix(name, ".wisp") {
		if fileExists(name) {
			return name, nil
		}
		return "", fmt.Errorf("unit file not found: %s", name)
	}
	for _, dir := range fl.SearchPath() {
		candidate := filepath.Join(dir, name+".wisp")
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("unit not found in search path: %s", name)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func init() {
	gob.Register(memory.Str(""))
	gob.Register(memory.Int(0))
	gob.Register(memory.Char(0))
	gob.Register(memory.Bool(false))
	gob.Register(memory.Nil{})
	gob.Register(memory.Pair{})
	gob.Register(memory.Inst{})
}

// DecodeUnit gob-decodes a Unit from data, the wire format used both by
// on-disk ".wisp" unit files and by the remote loader's fetch responses.
func DecodeUnit(data []byte) (Unit, error) {
	var u Unit
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&u); err != nil {
		return Unit{}, fmt.Errorf("decoding unit: %w", err)
	}
	return u, nil
}

// EncodeUnit gob-encodes unit.
func EncodeUnit(unit Unit) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(unit); err != nil {
		return nil, fmt.Errorf("encoding unit: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadUnitFile decodes a gob-encoded Unit from path.
func ReadUnitFile(path string) (Unit, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Unit{}, err
	}
	return DecodeUnit(b)
}

// WriteUnitFile gob-encodes unit to path, creating it if necessary.
func WriteUnitFile(path string, unit Unit) error {
	b, err := EncodeUnit(unit)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
