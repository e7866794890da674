package utils

// Reverse returns a reversed copy of s. Handy for addresses, which Bluetooth puts on
// the air least significant byte first.
func Reverse[S ~[]E, E any](s S) S {
  out := make(S, len(s))

  for i, v := range s {
    out[len(s)-1-i] = v
  }

  return out
}
