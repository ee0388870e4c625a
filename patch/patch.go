// Package patch models the per-subdir repodata and patch-instructions
// documents described in spec.md §3/§6/§4.7: the JSON overlay a channel
// indexer applies on top of raw repodata, and the raw repodata records
// themselves. The core only ever appends filenames to an Instructions'
// Remove list; every other field is read-modify-write passthrough.
package patch

import (
	"encoding/json"
	"fmt"

	"condamirror/record"
)

const repodataVersion = 1

var knownInstructionKeys = map[string]bool{
	"packages":                    true,
	"conda.packages":              true,
	"remove":                      true,
	"revoke":                      true,
	"patch_instructions_version":  true,
}

// Instructions is a platform-specific patch_instructions.json document.
// Extra preserves any key this package doesn't model, so a read-modify
// -write round trip leaves unrecognized fields intact.
type Instructions struct {
	Packages      map[string]json.RawMessage
	CondaPackages map[string]json.RawMessage
	Remove        []string
	Revoke        []string
	Version       int
	Extra         map[string]json.RawMessage
}

// Empty returns the empty Instructions (no entries, version 1) a
// ChannelReader should return for a subdir with no
// patch_instructions.json on disk.
func Empty() Instructions {
	return Instructions{Version: repodataVersion}
}

// AppendRemove appends filenames to the Remove list if they are not
// already present. This is the only mutation the core ever performs on
// an Instructions value.
func (in *Instructions) AppendRemove(filenames ...string) {
	existing := make(map[string]bool, len(in.Remove))
	for _, f := range in.Remove {
		existing[f] = true
	}
	for _, f := range filenames {
		if existing[f] {
			continue
		}
		in.Remove = append(in.Remove, f)
		existing[f] = true
	}
}

// UnmarshalJSON decodes an Instructions document, capturing any field
// this package doesn't recognize in Extra so it survives a later
// MarshalJSON unmodified.
func (in *Instructions) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("patch: decode instructions: %w", err)
	}

	*in = Instructions{Version: repodataVersion}
	in.Extra = make(map[string]json.RawMessage)

	for k, v := range raw {
		switch k {
		case "packages":
			if err := json.Unmarshal(v, &in.Packages); err != nil {
				return fmt.Errorf("patch: decode packages: %w", err)
			}
		case "conda.packages":
			if err := json.Unmarshal(v, &in.CondaPackages); err != nil {
				return fmt.Errorf("patch: decode conda.packages: %w", err)
			}
		case "remove":
			if err := json.Unmarshal(v, &in.Remove); err != nil {
				return fmt.Errorf("patch: decode remove: %w", err)
			}
		case "revoke":
			if err := json.Unmarshal(v, &in.Revoke); err != nil {
				return fmt.Errorf("patch: decode revoke: %w", err)
			}
		case "patch_instructions_version":
			if err := json.Unmarshal(v, &in.Version); err != nil {
				return fmt.Errorf("patch: decode patch_instructions_version: %w", err)
			}
		default:
			in.Extra[k] = v
		}
	}
	return nil
}

// MarshalJSON encodes the Instructions, merging Extra's unrecognized
// fields back in alongside the fields this package models.
func (in Instructions) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(in.Extra)+5)
	for k, v := range in.Extra {
		if knownInstructionKeys[k] {
			continue
		}
		out[k] = v
	}

	version := in.Version
	if version == 0 {
		version = repodataVersion
	}

	fields := map[string]any{
		"packages":                   orEmptyMap(in.Packages),
		"conda.packages":             orEmptyMap(in.CondaPackages),
		"remove":                     orEmptySlice(in.Remove),
		"revoke":                     orEmptySlice(in.Revoke),
		"patch_instructions_version": version,
	}
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("patch: encode %s: %w", k, err)
		}
		out[k] = b
	}
	return json.Marshal(out)
}

func orEmptyMap(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return map[string]json.RawMessage{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// RepoData is a platform-specific repodata.json document: the upstream
// index the ChannelReader reads package records out of.
type RepoData struct {
	Subdir        string
	Packages      map[string]json.RawMessage
	CondaPackages map[string]json.RawMessage
	Removed       []string
	Version       int
}

type rawRecord struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Build       string   `json:"build"`
	BuildNumber int      `json:"build_number"`
	Subdir      string   `json:"subdir"`
	Depends     []string `json:"depends"`
	SHA256      string   `json:"sha256"`
	Size        int64    `json:"size"`
	Timestamp   int64    `json:"timestamp"`
	URL         string   `json:"url"`
}

// DecodeRecord parses a single repodata package entry into a
// record.Record. subdir and filename come from the enclosing context
// (the repodata.json's own info.subdir and the map key respectively)
// rather than always being present in the entry itself.
func DecodeRecord(subdir, filename string, baseURL string, raw json.RawMessage) (record.Record, error) {
	var rr rawRecord
	if err := json.Unmarshal(raw, &rr); err != nil {
		return record.Record{}, fmt.Errorf("patch: decode record %s: %w", filename, err)
	}
	if rr.Subdir != "" {
		subdir = rr.Subdir
	}
	url := rr.URL
	if url == "" && baseURL != "" {
		url = baseURL + "/" + subdir + "/" + filename
	}
	return record.Record{
		Name:        rr.Name,
		Version:     rr.Version,
		Build:       rr.Build,
		BuildNumber: rr.BuildNumber,
		Subdir:      subdir,
		Filename:    filename,
		URL:         url,
		SHA256:      rr.SHA256,
		Size:        rr.Size,
		Depends:     rr.Depends,
		Timestamp:   rr.Timestamp,
	}, nil
}

// ParseRepoData decodes a repodata.json document. It validates that
// repodata_version equals 1, per spec.md §6.
func ParseRepoData(subdir string, data []byte) (RepoData, error) {
	var doc struct {
		Info struct {
			Subdir string `json:"subdir"`
		} `json:"info"`
		RepodataVersion int                        `json:"repodata_version"`
		Packages        map[string]json.RawMessage `json:"packages"`
		PackagesConda   map[string]json.RawMessage `json:"packages.conda"`
		Removed         []string                   `json:"removed"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return RepoData{}, fmt.Errorf("patch: decode repodata: %w", err)
	}
	if doc.RepodataVersion != repodataVersion {
		return RepoData{}, fmt.Errorf("patch: unsupported repodata_version %d", doc.RepodataVersion)
	}
	if doc.Info.Subdir != "" {
		subdir = doc.Info.Subdir
	}
	return RepoData{
		Subdir:        subdir,
		Packages:      doc.Packages,
		CondaPackages: doc.PackagesConda,
		Removed:       doc.Removed,
		Version:       repodataVersion,
	}, nil
}

// Apply folds toRemove's filenames into the given per-subdir
// instructions, grouped by each record's Subdir, and returns the
// updated map. instructions may be nil, in which case a fresh map is
// allocated; a subdir with no existing entry gets Empty(). This is the
// bridge between diff.Differ's output and the on-disk
// patch_instructions.json documents a ChannelReader writes back, per
// the CLI wiring described for cmd/condamirror.
func Apply(instructions map[string]Instructions, toRemove []record.Record) map[string]Instructions {
	out := make(map[string]Instructions, len(instructions))
	for subdir, in := range instructions {
		out[subdir] = in
	}
	for _, r := range toRemove {
		in, ok := out[r.Subdir]
		if !ok {
			in = Empty()
		}
		in.AppendRemove(r.Filename)
		out[r.Subdir] = in
	}
	return out
}

// Records decodes every package entry in rd into record.Records. Per
// spec.md §9, when the same identity key appears in both `packages` and
// `packages.conda`, the `packages.conda` entry wins — it is the newer
// format conda-build prefers — giving a deterministic tiebreak instead
// of an arbitrary one.
func (rd RepoData) Records(baseURL string) ([]record.Record, error) {
	byIdentity := make(map[record.Identity]record.Record)
	order := make([]record.Identity, 0, len(rd.Packages)+len(rd.CondaPackages))

	decodeInto := func(set map[string]json.RawMessage, overwrite bool) error {
		for filename, raw := range set {
			rec, err := DecodeRecord(rd.Subdir, filename, baseURL, raw)
			if err != nil {
				return err
			}
			id := rec.Identity()
			if _, exists := byIdentity[id]; !exists {
				order = append(order, id)
			} else if !overwrite {
				continue
			}
			byIdentity[id] = rec
		}
		return nil
	}

	if err := decodeInto(rd.Packages, false); err != nil {
		return nil, err
	}
	if err := decodeInto(rd.CondaPackages, true); err != nil {
		return nil, err
	}

	out := make([]record.Record, 0, len(order))
	for _, id := range order {
		out = append(out, byIdentity[id])
	}
	return out, nil
}
