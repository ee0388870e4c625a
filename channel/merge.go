package channel

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"condamirror/patch"
)

// Merge copies every subdir's repodata, patch instructions, and package
// artifacts from src into l, overwriting matching files. Grounded on
// original_source/src/conda_replicate/adapters/channel.py's
// LocalCondaChannel.merge (shutil.copytree). SPEC_FULL.md §4 supplements
// the distilled spec with this operation: it is how a mirror absorbs
// another locally-built mirror (e.g. one produced by a disconnected
// worker) without re-resolving.
func (l *Local) Merge(ctx context.Context, src *Local) error {
	subdirs, err := src.FindSubdirs(ctx)
	if err != nil {
		return err
	}
	for _, subdir := range subdirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyTree(src.subdirPath(subdir), l.subdirPath(subdir)); err != nil {
			return fmt.Errorf("channel: merge subdir %q: %w", subdir, err)
		}
	}
	return nil
}

func copyTree(srcDir, dstDir string) error {
	return filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstDir, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		return copyFile(path, dst)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// PurgeRemoved deletes every file named in each subdir's repodata
// `removed` list from the filesystem, then clears that list and
// rewrites repodata.json. Grounded on
// original_source/.../channel.py's LocalCondaChannel._purge_removed_packages,
// which conda-build's update_index step runs after applying patch
// instructions; SPEC_FULL.md §4 keeps this as a supplementary operation
// the core's diff/patch output feeds into but does not itself perform.
func (l *Local) PurgeRemoved(ctx context.Context) error {
	subdirs, err := l.FindSubdirs(ctx)
	if err != nil {
		return err
	}
	for _, subdir := range subdirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		rd, err := l.readRepodata(subdir)
		if err != nil {
			return err
		}
		if len(rd.Removed) == 0 {
			continue
		}
		for _, filename := range rd.Removed {
			path := filepath.Join(l.subdirPath(subdir), filename)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("channel: purge %q: %w", filename, err)
			}
		}
		rd.Removed = nil
		if err := l.writeRepodata(subdir, rd); err != nil {
			return err
		}
	}
	return nil
}

func (l *Local) writeRepodata(subdir string, rd patch.RepoData) error {
	doc := map[string]any{
		"info":             map[string]string{"subdir": rd.Subdir},
		"repodata_version": 1,
		"packages":         orEmptyRaw(rd.Packages),
		"packages.conda":   orEmptyRaw(rd.CondaPackages),
		"removed":          orEmptyStrings(rd.Removed),
	}
	data, err := marshalIndent(doc)
	if err != nil {
		return fmt.Errorf("channel: encode repodata for %q: %w", subdir, err)
	}
	return l.atomicWrite(subdir, repodataFilename, data)
}
