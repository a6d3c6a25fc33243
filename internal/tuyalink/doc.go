// Package tuyalink is a client for the Tuya local (LAN) protocol, version 3.3.
//
// It implements tuya.DeviceLink over TCP port 6668. Frames are 55AA framed
// with a CRC32 trailer; payloads are JSON encrypted with AES-128-ECB under
// the device's local key.
//
// # Frame layout
//
//	prefix(4)=000055AA seq(4) cmd(4) len(4) [retcode(4)] payload crc32(4) suffix(4)=0000AA55
//
// len counts everything after itself. Only frames sent by the device carry
// the return code.
//
// # Commands used
//
//   - DP_QUERY (10): read every datapoint
//   - CONTROL (7): write datapoints; payload prefixed with the "3.3" header
//   - STATUS (8): unsolicited state push, skipped while waiting for a reply
//   - HEART_BEAT (9): keepalive
//
// A Session is not safe for concurrent use; the connection manager in the
// tuya package serialises access.
package tuyalink
