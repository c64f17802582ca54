/*
Package events provides an in-process publish/subscribe broker for
DepotGate state-change notifications.

Staging, shipping, and purging publish an event after their durable writes
commit. Subscribers get a buffered channel; a slow subscriber drops events
rather than blocking the publisher. Events are ephemeral — the receipt log
is the durable record — so dropped events lose nothing auditable.
*/
package events
