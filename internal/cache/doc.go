// Package cache holds generated result images in a fixed-capacity in-memory
// LRU. Keys are opaque strings built by the generate package; values are the
// encoded image blobs returned by the remote generator. The cache is an explicit
// instance owned by the service that creates it, never a process global, and
// its contents intentionally do not survive a restart.
package cache
