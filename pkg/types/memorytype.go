package types

// MemoryType classifies an Interaction along the short-term / long-term axis.
// The two values differ in decay treatment and promotion rules, never in
// physical storage location.
type MemoryType string

const (
	ShortTerm MemoryType = "short-term"
	LongTerm  MemoryType = "long-term"
)

// IsValidMemoryType reports whether t is one of the two recognized buckets.
func IsValidMemoryType(t MemoryType) bool {
	return t == ShortTerm || t == LongTerm
}
