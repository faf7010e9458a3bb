package files

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Sidecar is the JSON metadata file written next to each versioned
// blend file ({name}.{version}.json). It carries enough identity for an
// external tool to resolve the asset without opening the database.
type Sidecar struct {
	UUID               string         `json:"uuid"`
	Name               string         `json:"name"`
	AssetType          string         `json:"asset_type"`
	VariantName        string         `json:"variant_name"`
	AssetID            string         `json:"asset_id"`
	SourceAssetName    string         `json:"source_asset_name,omitempty"`
	Version            int            `json:"version"`
	VersionLabel       string         `json:"version_label"`
	VersionGroupID     string         `json:"version_group_id"`
	IsLatest           bool           `json:"is_latest"`
	RepresentationType string         `json:"representation_type"`
	Description        string         `json:"description"`
	Author             string         `json:"author"`
	Tags               []string       `json:"tags"`
	CreatedDate        string         `json:"created_date,omitempty"`
	ModifiedDate       string         `json:"modified_date,omitempty"`
	SourceApplication  string         `json:"source_application"`
	MetadataVersion    int            `json:"metadata_version"`
	Extended           map[string]any `json:"extended,omitempty"`
}

// ArchiveMeta is the meta.json snapshot written into each archived
// version folder.
type ArchiveMeta struct {
	AssetID      string `json:"asset_id,omitempty"`
	AssetName    string `json:"asset_name,omitempty"`
	VariantName  string `json:"variant_name,omitempty"`
	VersionLabel string `json:"version_label,omitempty"`
	ArchivedAt   string `json:"archived_at"`
	ArchivedFrom string `json:"archived_from,omitempty"`
}

// WriteSidecar writes a sidecar JSON file atomically via a temp file
// and rename.
func WriteSidecar(path string, sc *Sidecar) error {
	if sc.MetadataVersion == 0 {
		sc.MetadataVersion = 1
	}
	if sc.Tags == nil {
		sc.Tags = []string{}
	}
	return writeJSONAtomic(path, sc)
}

// ReadSidecar reads a sidecar JSON file.
func ReadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// UpdateSidecarName rewrites the name field of an existing sidecar and
// stamps the modification time. Used by rename, which must not touch
// any other recorded field.
func UpdateSidecarName(path, newName string) error {
	sc, err := ReadSidecar(path)
	if err != nil {
		return err
	}
	sc.Name = newName
	sc.ModifiedDate = time.Now().UTC().Format(time.RFC3339)
	return writeJSONAtomic(path, sc)
}

// WriteArchiveMeta writes the meta.json snapshot for an archived
// version folder.
func WriteArchiveMeta(dir string, meta *ArchiveMeta) error {
	if meta.ArchivedAt == "" {
		meta.ArchivedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return writeJSONAtomic(filepath.Join(dir, "meta.json"), meta)
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
