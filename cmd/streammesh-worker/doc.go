// Command streammesh-worker runs one StreamMesh state worker: a keyed
// state backend owning a key-group range, with a write-ahead changelog,
// asynchronous checkpointing and an HTTP API.
package main
