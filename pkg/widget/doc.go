// Package widget holds the catalog of widget kinds.
//
// A kind is versioned ("text@1") and defines the empty value of a widget, how
// an incoming value is normalized into its stored shape, and the equality rule
// used to decide whether a write changed the widget. The catalog is additive:
// new kinds and new versions may be registered, existing ones never change
// their wire shape.
package widget
