// Package transport provides the platform socket options Transceiver binds
// its sockets with, plus a byte-buffer pool.
package transport

import "sync"

// MaxPacketSize is the size of the buffer Transceiver reads each inbound
// mDNS datagram into. RFC 6762 §17 allows messages larger than the classic 512
// byte DNS limit (jumbo frames up to 9000 bytes).
const MaxPacketSize = 9000

// bufferPool recycles MaxPacketSize byte buffers for GetBuffer/PutBuffer
// callers. Transceiver's receive loops allocate their own buffer and do not
// use it.
var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, MaxPacketSize)
		return &buf
	},
}

// GetBuffer returns a pointer to a MaxPacketSize buffer from the pool.
// Callers must return it with PutBuffer, typically via defer.
func GetBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// PutBuffer returns a buffer to the pool. The buffer must not be used again
// after this call.
func PutBuffer(bufPtr *[]byte) {
	buf := *bufPtr
	for i := range buf {
		buf[i] = 0
	}
	bufferPool.Put(bufPtr)
}
