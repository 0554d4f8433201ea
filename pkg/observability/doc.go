/*
Package observability projects the run, log and error state of a tool session.

It provides the execution indicator, the bounded log panel, the package loading
indicator and the notice bus, an Aggregator that combines them into snapshots
for streaming, and Prometheus metrics attached through lifecycle hooks.
*/
package observability
