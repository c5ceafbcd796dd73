package es

import "log/slog"

// Version is the sequence number of the last event applied to an aggregate.
// Sequence numbers are gapless and start at 0, so an aggregate whose stream
// holds N events has version N-1. NewStream marks an aggregate with no
// committed events.
type Version int64

// NewStream is the version of an aggregate before its first commit.
const NewStream Version = -1

func (v Version) Int64() int64 { return int64(v) }

// Next returns the sequence number the next event will receive.
func (v Version) Next() Version { return v + 1 }

func (v Version) SlogAttr() slog.Attr { return v.SlogAttrWithKey("version") }

func (v Version) SlogAttrWithKey(key string) slog.Attr {
	return slog.Int64(key, int64(v))
}
