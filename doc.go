// Package freshen decides, after every edit to a syntax tree, exactly which
// declarations need their cached semantic analysis thrown away.
//
// # Pipeline
//
// A [syntax.Tree] fires a notification before each structural mutation.
// The [Engine] reduces the four notification shapes (insert, replace, move,
// remove) to one [Event] and then:
//
//  1. Invalidates every declaration inside the removed and inserted
//     subtrees. Wholesale insertion or deletion of declarations is never
//     filtered.
//  2. Skips the rest when the edit is noise: whitespace for whitespace,
//     comment for comment, one parser placeholder for another, or a single
//     character that is half of a block comment delimiter being typed.
//  3. Walks up from the edit site to the narrowest enclosing declaration and
//     invalidates it. Renaming a declaration invalidates its whole subtree.
//     Scope boundaries (imports, module headers), dynamic member containers
//     and the file root stop the walk.
//
// Invalidations go out through a [Hub] to every subscribed [Listener].
//
// # Usage
//
//	e := freshen.New(freshen.WithLogger(logger))
//	e.Subscribe(cache)
//	e.Watch(tree)
//
//	// Later, from a background checker:
//	e.NotifyExternal(decl)
//
// Listeners can tell edit-driven invalidations from external ones by the
// external flag passed to [Listener.Invalidate].
//
// # Concurrency
//
// The Engine is driven by a single writer, synchronously, inside the tree's
// mutation callbacks. Only the Hub is safe for concurrent use: listeners may
// be added and removed from any goroutine while notifications are in
// flight.
package freshen
