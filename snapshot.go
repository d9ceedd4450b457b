package parammap

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/go-yaml/yaml"
	"github.com/golang/glog"
)

// Snapshot is a persisted copy of the wire values of a lookup table.
type Snapshot map[Key]uint16

func (s Snapshot) clone() Snapshot {
	r := make(Snapshot, len(s))
	for k, v := range s {
		r[k] = v
	}
	return r
}

// SnapshotStore persists one snapshot per project id. Loading a project that
// has no snapshot yields an empty snapshot, not an error.
type SnapshotStore interface {
	Save(projectID string, s Snapshot) error
	Load(projectID string) (Snapshot, error)
	Delete(projectID string) error
}

// MemoryStore keeps snapshots for the lifetime of the process.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
}

var _ SnapshotStore = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

func (m *MemoryStore) Save(projectID string, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[projectID] = s.clone()
	return nil
}

func (m *MemoryStore) Load(projectID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[projectID]
	if !ok {
		return Snapshot{}, nil
	}
	return s.clone(), nil
}

func (m *MemoryStore) Delete(projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, projectID)
	return nil
}

// FileStore keeps one YAML file per project id in a directory.
type FileStore struct {
	dir string
}

var _ SnapshotStore = &FileStore{}

// NewFileStore returns a FileStore writing to dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("couldn't create snapshot directory: %v", err)
	}
	return &FileStore{dir: dir}, nil
}

type snapshotFile struct {
	ProjectID string          `yaml:"projectId"`
	Values    []snapshotValue `yaml:"values"`
}

type snapshotValue struct {
	Device    int         `yaml:"device"`
	Type      MessageType `yaml:"type"`
	Parameter int         `yaml:"parameter"`
	Value     int         `yaml:"value"`
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func (f *FileStore) path(projectID string) string {
	name := unsafeFileChars.ReplaceAllString(projectID, "_")
	if name == "" {
		name = "_default"
	}
	return filepath.Join(f.dir, name+".yaml")
}

func (f *FileStore) Save(projectID string, s Snapshot) error {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })

	doc := snapshotFile{ProjectID: projectID, Values: make([]snapshotValue, 0, len(keys))}
	for _, k := range keys {
		doc.Values = append(doc.Values, snapshotValue{
			Device:    k.DeviceID(),
			Type:      k.Type(),
			Parameter: k.ParameterNumber(),
			Value:     int(s[k]),
		})
	}
	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("couldn't encode snapshot %q: %v", projectID, err)
	}

	p := f.path(projectID)
	tmp := p + ".tmp"
	if err := ioutil.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("couldn't write snapshot %q: %v", projectID, err)
	}
	return os.Rename(tmp, p)
}

func (f *FileStore) Load(projectID string) (Snapshot, error) {
	raw, err := ioutil.ReadFile(f.path(projectID))
	if os.IsNotExist(err) {
		return Snapshot{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("couldn't read snapshot %q: %v", projectID, err)
	}
	doc := snapshotFile{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("couldn't parse snapshot %q: %v", projectID, err)
	}
	s := make(Snapshot, len(doc.Values))
	for _, v := range doc.Values {
		k, err := NewKey(v.Device, v.Type, v.Parameter)
		if err != nil {
			glog.Warningf("snapshot %q: skipping value: %v", projectID, err)
			continue
		}
		if err := validateMidiValue(v.Value); err != nil {
			glog.Warningf("snapshot %q: skipping %s: %v", projectID, k, err)
			continue
		}
		s[k] = uint16(v.Value)
	}
	return s, nil
}

func (f *FileStore) Delete(projectID string) error {
	if err := os.Remove(f.path(projectID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
