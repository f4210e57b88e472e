package ports

// History models the shareable link's mutable layer-parameter text as an
// explicit value with a single writer. The sync controller diffs against
// Current before every Replace, so an unchanged rewrite performs no write
// at all.
type History interface {
	// Current returns the link text as last written (or as loaded at boot).
	Current() string

	// Replace overwrites the link text without growing history.
	Replace(text string)

	// Writes returns how many times Replace has been called.
	Writes() int
}
