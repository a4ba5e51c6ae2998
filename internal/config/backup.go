package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// MaxBackups bounds how many backups are kept; creating one beyond the
// limit drops the oldest.
const MaxBackups = 10

// Backup scopes: which part of the configuration tree a backup covers.
const (
	BackupApp     = "app"
	BackupEngines = "engine"
	BackupAll     = "all"
)

// BackupInfo describes one stored backup.
type BackupInfo struct {
	ID         string    `json:"id"`
	ConfigType string    `json:"config_type"`
	Label      string    `json:"label,omitempty"`
	Auto       bool      `json:"auto_flag,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Files      int       `json:"files"`
	SizeBytes  int64     `json:"size_bytes"`
}

// backupIndex is the shape of configs/backups/backup_index.json.
type backupIndex struct {
	Backups []BackupInfo `json:"backups"`
}

func (r *Registry) backupIndexPath() string {
	return filepath.Join(r.backupsDir(), "backup_index.json")
}

func (r *Registry) loadBackupIndex() (backupIndex, error) {
	var idx backupIndex
	data, err := os.ReadFile(r.backupIndexPath())
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return idx, err
	}
	if err := json.Unmarshal(data, &idx); err != nil {
		return backupIndex{}, fmt.Errorf("backup index malformed: %w", err)
	}
	return idx, nil
}

func (r *Registry) saveBackupIndex(idx backupIndex) error {
	sort.Slice(idx.Backups, func(i, j int) bool {
		return idx.Backups[i].CreatedAt.After(idx.Backups[j].CreatedAt)
	})
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(r.backupIndexPath(), data)
}

// CreateBackup snapshots the app, engine and template configs into a new
// backup directory and records it in the index, evicting the oldest backup
// beyond MaxBackups.
func (r *Registry) CreateBackup(label string) (BackupInfo, error) {
	return r.createBackup(BackupAll, label, false)
}

// CreateScopedBackup snapshots only the named part of the tree.
func (r *Registry) CreateScopedBackup(configType, label string) (BackupInfo, error) {
	return r.createBackup(configType, label, false)
}

func (r *Registry) backupSources(configType string) []string {
	switch configType {
	case BackupApp:
		return []string{r.appDir()}
	case BackupEngines:
		return []string{r.enginesDir()}
	default:
		return []string{r.appDir(), r.enginesDir(), r.templatesDir()}
	}
}

func (r *Registry) createBackup(configType, label string, auto bool) (BackupInfo, error) {
	return r.createBackupKeeping(configType, label, auto, "")
}

// createBackupKeeping snapshots the tree; keep names a backup id that must
// survive eviction even when it is the oldest.
func (r *Registry) createBackupKeeping(configType, label string, auto bool, keep string) (BackupInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id := uuid.NewString()
	dest := filepath.Join(r.backupsDir(), id)

	info := BackupInfo{ID: id, ConfigType: configType, Label: label, Auto: auto, CreatedAt: time.Now()}
	for _, src := range r.backupSources(configType) {
		files, size, err := copyTree(src, filepath.Join(dest, filepath.Base(src)))
		if err != nil {
			os.RemoveAll(dest)
			return BackupInfo{}, fmt.Errorf("snapshotting %s: %w", filepath.Base(src), err)
		}
		info.Files += files
		info.SizeBytes += size
	}

	idx, err := r.loadBackupIndex()
	if err != nil {
		log.Warn("backup index unreadable, rebuilding", "err", err)
		idx = backupIndex{}
	}
	idx.Backups = append(idx.Backups, info)
	sort.Slice(idx.Backups, func(i, j int) bool {
		return idx.Backups[i].CreatedAt.After(idx.Backups[j].CreatedAt)
	})
	for len(idx.Backups) > MaxBackups {
		victim := -1
		for i := len(idx.Backups) - 1; i >= 0; i-- {
			if idx.Backups[i].ID != keep {
				victim = i
				break
			}
		}
		if victim < 0 {
			break
		}
		oldest := idx.Backups[victim]
		os.RemoveAll(filepath.Join(r.backupsDir(), oldest.ID))
		idx.Backups = append(idx.Backups[:victim], idx.Backups[victim+1:]...)
		log.Debug("evicted oldest backup", "id", oldest.ID)
	}
	if err := r.saveBackupIndex(idx); err != nil {
		return BackupInfo{}, err
	}
	log.Info("config backup created", "id", id, "files", info.Files)
	return info, nil
}

// Backups lists stored backups, newest first.
func (r *Registry) Backups() ([]BackupInfo, error) {
	idx, err := r.loadBackupIndex()
	if err != nil {
		return nil, err
	}
	sort.Slice(idx.Backups, func(i, j int) bool {
		return idx.Backups[i].CreatedAt.After(idx.Backups[j].CreatedAt)
	})
	return idx.Backups, nil
}

// RestoreBackup replaces the live configuration with the named backup and
// reloads the registry state.
func (r *Registry) RestoreBackup(id string) error {
	idx, err := r.loadBackupIndex()
	if err != nil {
		return err
	}
	found := false
	for _, b := range idx.Backups {
		if b.ID == id {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("backup %q not found", id)
	}
	// Snapshot the live tree first so a restore is itself undoable. The
	// backup being restored is shielded from eviction.
	if _, err := r.createBackupKeeping(BackupAll, "pre-restore", true, id); err != nil {
		log.Warn("pre-restore snapshot failed", "err", err)
	}
	src := filepath.Join(r.backupsDir(), id)

	r.mu.Lock()
	for _, dir := range []string{r.appDir(), r.enginesDir(), r.templatesDir()} {
		backupPart := filepath.Join(src, filepath.Base(dir))
		if _, err := os.Stat(backupPart); err != nil {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("clearing %s: %w", filepath.Base(dir), err)
		}
		if _, _, err := copyTree(backupPart, dir); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("restoring %s: %w", filepath.Base(dir), err)
		}
	}
	r.app = DefaultAppConfig()
	r.engines = make(map[string]EngineRecord)
	r.loadApp()
	if err := r.loadEngines(); err != nil {
		log.Warn("engine registry unreadable after restore", "err", err)
	}
	r.mu.Unlock()

	r.notify("restore")
	log.Info("config restored from backup", "id", id)
	return nil
}

// DeleteBackup removes a backup and its index entry.
func (r *Registry) DeleteBackup(id string) error {
	idx, err := r.loadBackupIndex()
	if err != nil {
		return err
	}
	kept := idx.Backups[:0]
	removed := false
	for _, b := range idx.Backups {
		if b.ID == id {
			removed = true
			continue
		}
		kept = append(kept, b)
	}
	if !removed {
		return fmt.Errorf("backup %q not found", id)
	}
	idx.Backups = kept
	os.RemoveAll(filepath.Join(r.backupsDir(), id))
	return r.saveBackupIndex(idx)
}

// CleanupBackups drops backups older than maxAge, reporting how many were
// removed.
func (r *Registry) CleanupBackups(maxAge time.Duration) (int, error) {
	idx, err := r.loadBackupIndex()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	kept := idx.Backups[:0]
	removed := 0
	for _, b := range idx.Backups {
		if b.CreatedAt.Before(cutoff) {
			os.RemoveAll(filepath.Join(r.backupsDir(), b.ID))
			removed++
			continue
		}
		kept = append(kept, b)
	}
	idx.Backups = kept
	if removed > 0 {
		if err := r.saveBackupIndex(idx); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// copyTree copies a directory recursively, returning file count and bytes.
func copyTree(src, dest string) (int, int64, error) {
	files := 0
	var size int64
	err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		n, err := copyFile(path, target)
		if err != nil {
			return err
		}
		files++
		size += n
		return nil
	})
	return files, size, err
}

func copyFile(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer out.Close()
	return io.Copy(out, in)
}
