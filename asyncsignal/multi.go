package asyncsignal

import (
	"errors"
	"slices"

	"github.com/joeycumines/go-asyncslot/hostloop"
)

// Multi is a [Source] that combines several sources. A slot connected to
// it is called with two arguments: the key of the source that emitted, and
// a copy of that emission's arguments.
type Multi struct {
	sources map[any]Source
}

// NewMulti returns a source combining sources, keyed by the value each
// emission is tagged with.
func NewMulti(sources map[any]Source) *Multi {
	return &Multi{sources: sources}
}

// Connect connects slot to every source. The returned connection is always
// nil, as there is one per source, each dropped along with the slot.
func (m *Multi) Connect(slot *hostloop.Slot, opts ...hostloop.ConnectOption) (*hostloop.Connection, error) {
	var errs []error
	for key, src := range m.sources {
		connectOpts := append(slices.Clip(opts), hostloop.WithTransform(func(args []any) []any {
			return []any{key, slices.Clone(args)}
		}))
		if _, err := src.Connect(slot, connectOpts...); err != nil {
			errs = append(errs, err)
		}
	}
	return nil, errors.Join(errs...)
}
