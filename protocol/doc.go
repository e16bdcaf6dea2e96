// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Length-prefixed framing over a stream connection.
//
// Wire format: a 2-byte big-endian header holding (length-1) followed by
// 1..65536 payload bytes. There is no magic, version or checksum.
//
// Encoder frames outbound payloads in front of a connection engine;
// Decoder reassembles inbound chunks of any alignment into one message per
// frame. Codec pairs them and shuts both down together.
package protocol
