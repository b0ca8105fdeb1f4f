// Package memory holds the bounded, ordered conversation log owned by one
// agent loop. Appends are O(1); when a capacity is set the oldest message is
// evicted silently since history is best-effort model context, not a durable
// record. Readers always receive copies.
package memory
