// Package objstore implements the per-connection registry mapping
// protocol object IDs to live objects.
package objstore

import (
	"cmp"
	"fmt"
	"iter"

	"deedles.dev/wlcommit/wire"
	"golang.org/x/exp/slices"
)

// ServerIDStart is the first ID in the range reserved for objects
// created by the server.
const ServerIDStart = 0xFF000000

type Store struct {
	objects map[uint32]wire.Object
	nextID  uint32
}

func New() *Store {
	return &Store{
		objects: make(map[uint32]wire.Object),
		nextID:  ServerIDStart,
	}
}

// Add inserts obj. If obj has no ID yet, it is assigned one from the
// server's range. It is an error to add an object under an ID that is
// already in use.
func (s *Store) Add(obj wire.Object) error {
	id := obj.ID()
	if id == 0 {
		id = s.nextID
		obj.SetID(id)
		s.nextID++
	}

	if _, ok := s.objects[id]; ok {
		return fmt.Errorf("object ID %v is already in use", id)
	}

	s.objects[id] = obj
	return nil
}

func (s *Store) Get(id uint32) wire.Object {
	return s.objects[id]
}

// Lookup returns the object with the given ID if it exists and has
// type T.
func Lookup[T wire.Object](s *Store, id uint32) (T, bool) {
	obj, ok := s.objects[id].(T)
	return obj, ok
}

// Delete removes the object with the given ID and calls its Delete
// method.
func (s *Store) Delete(id uint32) {
	obj := s.objects[id]
	delete(s.objects, id)
	if obj != nil {
		obj.Delete()
	}
}

// All yields every object in descending ID order, which deletes newer
// objects before the ones they were created from.
func (s *Store) All() iter.Seq[wire.Object] {
	ids := make([]uint32, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uint32) int { return cmp.Compare(b, a) })

	return func(yield func(wire.Object) bool) {
		for _, id := range ids {
			obj, ok := s.objects[id]
			if !ok {
				continue
			}
			if !yield(obj) {
				return
			}
		}
	}
}

func (s *Store) Len() int {
	return len(s.objects)
}
