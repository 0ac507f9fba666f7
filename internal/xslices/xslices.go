// Package xslices contains slice helpers not covered by the slices
// packages.
package xslices

func Filter[T any, S ~[]T](s S, f func(T) bool) (r S) {
	r = make(S, 0, len(s))
	for _, v := range s {
		if f(v) {
			r = append(r, v)
		}
	}
	return r
}

// RemoveAll deletes every occurrence of v from s in place.
func RemoveAll[T comparable, S ~[]T](s *S, v T) {
	*s = Filter(*s, func(c T) bool { return c != v })
}
