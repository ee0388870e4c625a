// Package channel implements the ChannelReader contract the resolver
// queries, plus the local-mirror write path: merging another local
// channel's tree into an on-disk channel and purging removed packages. See spec.md
// §4.2 and SPEC_FULL.md §4.
package channel

import (
	"context"

	"condamirror/patch"
	"condamirror/record"
)

// Reader is the only channel contract the resolver core depends on. An
// implementation may be a local filesystem tree, an HTTP channel, or
// (in tests) an in-memory fixture.
type Reader interface {
	// Query returns every record in the given subdirs whose name
	// matches spec and which spec.Match accepts. Order is not
	// guaranteed.
	Query(ctx context.Context, specString string, subdirs []string) ([]record.Record, error)
	// Iter is equivalent to Query("*", subdirs): every record across
	// the given subdirs.
	Iter(ctx context.Context, subdirs []string) ([]record.Record, error)
	// FindSubdirs returns every subdir this channel contains.
	FindSubdirs(ctx context.Context) ([]string, error)
	// ReadInstructions returns the patch instructions for subdir, or
	// patch.Empty() if none exist.
	ReadInstructions(ctx context.Context, subdir string) (patch.Instructions, error)
}
