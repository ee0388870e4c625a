// Package diff computes the add/remove sets between a resolver's
// output and a reference channel's current contents.
package diff

import (
	"condamirror/internal/logging"
	"condamirror/record"
)

// Differ computes add/remove sets. The zero value is not usable; use
// New.
type Differ struct {
	log logging.Logger
}

// New returns a Differ that logs through log. A nil log is replaced
// with logging.Nop, matching resolve.New and the channel readers.
func New(log logging.Logger) *Differ {
	if log == nil {
		log = logging.Nop
	}
	return &Differ{log: log}
}

// Compute returns the records present in upstream but not local
// (toAdd) and the records present in local but not upstream
// (toRemove), using the channel-independent identity key (§3) rather
// than struct equality. O(n+m) via a hash set.
func (d *Differ) Compute(upstream, local []record.Record) (toAdd, toRemove []record.Record) {
	upstreamByID := make(map[record.Identity]record.Record, len(upstream))
	for _, r := range upstream {
		upstreamByID[r.Identity()] = r
	}
	localByID := make(map[record.Identity]record.Record, len(local))
	for _, r := range local {
		localByID[r.Identity()] = r
	}

	for id, r := range upstreamByID {
		if _, ok := localByID[id]; !ok {
			toAdd = append(toAdd, r)
		}
	}
	for id, r := range localByID {
		if _, ok := upstreamByID[id]; !ok {
			toRemove = append(toRemove, r)
		}
	}

	d.log.Info("diff computed", logging.F("add", len(toAdd)), logging.F("remove", len(toRemove)))
	return toAdd, toRemove
}
