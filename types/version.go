package types

// Version is the canonical project version.
// The CLI, library and stream framing share this version.
const Version = "0.1.0"

// WireVersion is the packet header version written by the encoder.
// Decoders reject any other value.
const WireVersion uint8 = 1
