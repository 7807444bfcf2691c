package auth

import (
	"bytes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// Conn seals every Write into one length-prefixed record:
//
//	len u32 | nonce[12] | ciphertext
//
// The nonce is a 4-byte direction prefix followed by a 64-bit counter, so
// the two directions never share a nonce under the session key. A reader
// accepts only the peer's prefix with the next counter value.
type Conn struct {
	net.Conn
	aead       cipher.AEAD
	prefix     uint32
	peerPrefix uint32
	sendCtr    uint64
	recvCtr    uint64
	recvBuf    bytes.Buffer
	mu         sync.Mutex
}

// ErrRecordOrder is returned for a record whose nonce is not the peer's next
// one.
var ErrRecordOrder = errors.New("record out of sequence")

const (
	maxRecordSize = 64 * 1024
	clientPrefix  = 0x474c4f56 // "GLOV"
	serverPrefix  = 0x444f4e47 // "DONG"
)

// WrapConn seals conn with sessionKey.
func WrapConn(conn net.Conn, sessionKey []byte, isClient bool) (net.Conn, error) {
	aead, err := chacha20poly1305.New(sessionKey)
	if err != nil {
		return nil, err
	}
	prefix, peer := uint32(serverPrefix), uint32(clientPrefix)
	if isClient {
		prefix, peer = clientPrefix, serverPrefix
	}
	return &Conn{Conn: conn, aead: aead, prefix: prefix, peerPrefix: peer}, nil
}

func (s *Conn) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := make([]byte, 4+chacha20poly1305.NonceSize, 4+chacha20poly1305.NonceSize+len(p)+s.aead.Overhead())
	nonce := rec[4:]
	binary.BigEndian.PutUint32(nonce[0:4], s.prefix)
	binary.BigEndian.PutUint64(nonce[4:], s.sendCtr)
	s.sendCtr++

	rec = s.aead.Seal(rec, nonce, p, nil)
	binary.BigEndian.PutUint32(rec[0:4], uint32(len(rec)-4))

	if _, err := s.Conn.Write(rec); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *Conn) Read(p []byte) (int, error) {
	if s.recvBuf.Len() == 0 {
		var hdr [4]byte
		if _, err := io.ReadFull(s.Conn, hdr[:]); err != nil {
			return 0, err
		}
		length := binary.BigEndian.Uint32(hdr[:])
		if length < chacha20poly1305.NonceSize || length > maxRecordSize {
			return 0, io.ErrUnexpectedEOF
		}
		pkt := make([]byte, length)
		if _, err := io.ReadFull(s.Conn, pkt); err != nil {
			return 0, err
		}
		nonce := pkt[:chacha20poly1305.NonceSize]
		if binary.BigEndian.Uint32(nonce[0:4]) != s.peerPrefix || binary.BigEndian.Uint64(nonce[4:]) != s.recvCtr {
			return 0, ErrRecordOrder
		}
		pt, err := s.aead.Open(nil, nonce, pkt[chacha20poly1305.NonceSize:], nil)
		if err != nil {
			return 0, err
		}
		s.recvCtr++
		s.recvBuf.Write(pt)
	}
	return s.recvBuf.Read(p)
}
