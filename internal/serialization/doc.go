// Package serialization reads and writes model weights in the SafeTensors
// format:
//
//	[8 bytes: header size (uint64 LE)]
//	[header: JSON, tensor name -> {dtype, shape, data_offsets}, plus __metadata__]
//	[data: raw little-endian tensor bytes]
//
// Only F32 tensors are produced. The writer stores an xxhash64 digest of the
// data section under the "checksum" metadata key and the reader verifies it
// when present, so truncated or corrupted files fail loudly. Files without a
// checksum (written by other tools) load unverified.
package serialization
