// Package events provides an in-process publish/subscribe broker for node
// lifecycle events (request transitions, job outcomes, result release).
// Subscribers receive events on buffered channels; slow subscribers drop
// events rather than block the node.
package events
