package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/repairkit/fixtree/pkg/schema"
)

// localDocument is the on-disk shape of the local mirror. The keys match
// what browser clients keep in their own storage, so a mirror file can be
// imported or exported verbatim.
type localDocument struct {
	Workflows []schema.SavedWorkflow `json:"fixtree_workflows"`
	Folders   []string               `json:"fixtree_folders"`
}

// LocalStore is a single-file JSON mirror of the workflow and folder state.
// It is the fallback read source when the remote store is unreachable and
// is mutated unconditionally on every sync operation so it never drifts
// ahead of what the user last saw.
type LocalStore struct {
	mu   sync.Mutex
	path string
}

// NewLocalStore creates a mirror backed by the given file path. The file is
// created lazily on first write.
func NewLocalStore(path string) *LocalStore {
	return &LocalStore{path: path}
}

// Path returns the mirror file location.
func (l *LocalStore) Path() string { return l.path }

// Workflows returns the mirrored workflow list. A missing file is an empty
// mirror, not an error.
func (l *LocalStore) Workflows() ([]schema.SavedWorkflow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc, err := l.read()
	if err != nil {
		return nil, err
	}
	return doc.Workflows, nil
}

// Folders returns the mirrored folder names.
func (l *LocalStore) Folders() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc, err := l.read()
	if err != nil {
		return nil, err
	}
	return doc.Folders, nil
}

// PutWorkflow replaces the mirrored workflow matching the same name and
// effective folder, or appends it when no match exists.
func (l *LocalStore) PutWorkflow(wf schema.SavedWorkflow) error {
	return l.update(func(doc *localDocument) {
		for i := range doc.Workflows {
			if sameWorkflow(doc.Workflows[i].Metadata, wf.Metadata.Name, wf.Metadata.EffectiveFolder()) {
				doc.Workflows[i] = wf
				return
			}
		}
		doc.Workflows = append(doc.Workflows, wf)
	})
}

// DeleteWorkflow removes the mirrored workflow matching the name and folder.
// Deleting a workflow that is not mirrored is a no-op; the mirror trails the
// remote store and may simply never have seen the record.
func (l *LocalStore) DeleteWorkflow(name, folder string) error {
	return l.update(func(doc *localDocument) {
		out := doc.Workflows[:0]
		for _, wf := range doc.Workflows {
			if !sameWorkflow(wf.Metadata, name, folder) {
				out = append(out, wf)
			}
		}
		doc.Workflows = out
	})
}

// UpdateWorkflows applies fn to every mirrored workflow matching the name
// and folder.
func (l *LocalStore) UpdateWorkflows(name, folder string, fn func(*schema.SavedWorkflow)) error {
	return l.update(func(doc *localDocument) {
		for i := range doc.Workflows {
			if sameWorkflow(doc.Workflows[i].Metadata, name, folder) {
				fn(&doc.Workflows[i])
			}
		}
	})
}

// RenameFolder renames a mirrored folder and migrates every workflow
// assigned to it, including records still on the legacy appliance field.
func (l *LocalStore) RenameFolder(oldName, newName string) error {
	return l.update(func(doc *localDocument) {
		for i, f := range doc.Folders {
			if f == oldName {
				doc.Folders[i] = newName
			}
		}
		for i := range doc.Workflows {
			meta := &doc.Workflows[i].Metadata
			if meta.Folder == oldName {
				meta.Folder = newName
			}
			if meta.Appliance == oldName {
				meta.Appliance = ""
				meta.Folder = newName
			}
		}
	})
}

// DeleteFolder removes a mirrored folder and reassigns its workflows.
func (l *LocalStore) DeleteFolder(name, reassignTo string) error {
	return l.update(func(doc *localDocument) {
		out := doc.Folders[:0]
		for _, f := range doc.Folders {
			if f != name {
				out = append(out, f)
			}
		}
		doc.Folders = out
		for i := range doc.Workflows {
			meta := &doc.Workflows[i].Metadata
			if meta.Folder == name || meta.Appliance == name {
				meta.Folder = reassignTo
				meta.Appliance = ""
			}
		}
	})
}

// SetFolders replaces the mirrored folder list.
func (l *LocalStore) SetFolders(folders []string) error {
	return l.update(func(doc *localDocument) {
		doc.Folders = folders
	})
}

// ReplaceAll overwrites the whole mirror in one write. The sync layer uses
// this after a full remote load.
func (l *LocalStore) ReplaceAll(workflows []schema.SavedWorkflow, folders []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(&localDocument{Workflows: workflows, Folders: folders})
}

// sameWorkflow matches by name plus the modern folder field or the legacy
// appliance field, so records written before the folder migration still
// get patched.
func sameWorkflow(meta schema.WorkflowMetadata, name, folder string) bool {
	return meta.Name == name && (meta.Folder == folder || meta.Appliance == folder)
}

func (l *LocalStore) update(fn func(*localDocument)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc, err := l.read()
	if err != nil {
		return err
	}
	fn(doc)
	return l.write(doc)
}

func (l *LocalStore) read() (*localDocument, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return &localDocument{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read local mirror: %w", err)
	}
	doc := &localDocument{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse local mirror: %w", err)
	}
	return doc, nil
}

// write persists the document with a temp-file rename so a crash mid-write
// never leaves a truncated mirror.
func (l *LocalStore) write(doc *localDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal local mirror: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create mirror dir: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write local mirror: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace local mirror: %w", err)
	}
	return nil
}
