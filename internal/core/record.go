package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

const recordFileName = "manifest.yaml"

// RecordPath returns the installation record path for a project.
func RecordPath(projectRoot, folderName string) string {
	return filepath.Join(projectRoot, folderName, "_config", recordFileName)
}

// ReadRecord reads the installation record. Returns nil, nil if the project
// has none.
func ReadRecord(projectRoot, folderName string) (*Record, error) {
	data, err := os.ReadFile(RecordPath(projectRoot, folderName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading installation record: %w", err)
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing installation record: %w", err)
	}
	return &rec, nil
}

// WriteRecord writes the installation record atomically. Modules are sorted
// by name for deterministic output.
func WriteRecord(projectRoot, folderName string, rec *Record) error {
	sort.Slice(rec.Modules, func(i, j int) bool {
		return rec.Modules[i].Name < rec.Modules[j].Name
	})
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling installation record: %w", err)
	}
	return writeFileAtomic(RecordPath(projectRoot, folderName), data)
}

// Module returns the record of an installed module.
func (r *Record) Module(name string) (ModuleRecord, bool) {
	if r == nil {
		return ModuleRecord{}, false
	}
	for _, m := range r.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return ModuleRecord{}, false
}

// Upsert replaces the record of entry.Name, keeping its original install
// date, or appends it.
func (r *Record) Upsert(entry ModuleRecord) {
	for i, m := range r.Modules {
		if m.Name == entry.Name {
			if !m.InstallDate.IsZero() {
				entry.InstallDate = m.InstallDate
			}
			r.Modules[i] = entry
			return
		}
	}
	r.Modules = append(r.Modules, entry)
}

// updateRecord folds a session's installs into the project record.
func updateRecord(projectRoot, folderName, version string, ides []string, installed []*InstallResult, now time.Time) (*Record, error) {
	rec, err := ReadRecord(projectRoot, folderName)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &Record{Installation: RecordInfo{InstallDate: now}}
	}
	rec.Installation.Version = version
	rec.Installation.LastUpdated = now
	if len(ides) > 0 {
		rec.IDEs = ides
	}
	for _, res := range installed {
		rec.Upsert(ModuleRecord{
			Name:        res.Module,
			Version:     res.Version,
			Source:      res.Kind,
			InstallDate: now,
			LastUpdated: now,
		})
	}
	if err := WriteRecord(projectRoot, folderName, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
