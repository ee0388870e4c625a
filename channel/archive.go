package channel

import (
	"archive/tar"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// WritePatchGenerator bundles every subdir's patch_instructions.json
// into a single patch_generator.tar.zst at the channel root, for
// conda-build's update_index --patch-generator step to consume.
// Grounded on original_source/.../channel.py's
// LocalCondaChannel.write_patch_generator (tarfile, "w:bz2"); this
// repository writes zstd instead of bzip2 per SPEC_FULL.md §3's choice
// of klauspost/compress/zstd as the one compression codec wired
// throughout (matching the zstd-compressed repodata.json.zst conda
// channels already distribute, rather than introducing a second codec).
func (l *Local) WritePatchGenerator(ctx context.Context) error {
	subdirs, err := l.FindSubdirs(ctx)
	if err != nil {
		return err
	}

	archivePath := filepath.Join(l.root, patchGeneratorFilename)
	tmp := archivePath + "." + uuid.NewString() + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("channel: create patch generator: %w", err)
	}
	defer os.Remove(tmp)

	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("channel: create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	for _, subdir := range subdirs {
		if err := ctx.Err(); err != nil {
			tw.Close()
			zw.Close()
			f.Close()
			return err
		}
		path := filepath.Join(l.subdirPath(subdir), instructionsFilename)
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			tw.Close()
			zw.Close()
			f.Close()
			return fmt.Errorf("channel: stat %q: %w", path, err)
		}
		if err := addFileToTar(tw, path, filepath.Join(subdir, instructionsFilename), info); err != nil {
			tw.Close()
			zw.Close()
			f.Close()
			return err
		}
	}

	if err := tw.Close(); err != nil {
		zw.Close()
		f.Close()
		return fmt.Errorf("channel: close tar writer: %w", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("channel: close zstd writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("channel: close patch generator file: %w", err)
	}
	return os.Rename(tmp, archivePath)
}

func addFileToTar(tw *tar.Writer, path, arcname string, info os.FileInfo) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = arcname
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = tw.Write(data)
	return err
}
