// Package viewport talks to the browser that renders the document.
//
// The capture pipeline only depends on the Controller interface. Rod
// implements it on a Chrome page through go-rod, and Browser launches or
// attaches to Chrome and opens pages with the configured viewport size and
// device scale factor.
package viewport
