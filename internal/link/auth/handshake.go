package auth

import (
	"bufio"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	HandshakeMagic = "MGL1\x00"
	NonceSize      = 32
	authContext    = "MotionGlove-Auth-v1"

	replyOK     = "OK\x00"
	replyDenied = "NO\x00"
)

var (
	// ErrUnauthorized means the peer does not know the password.
	ErrUnauthorized = errors.New("link authentication failed")
	// ErrNotHandshake means the peer did not open with the handshake magic,
	// typically an unauthenticated glove talking to a protected dongle.
	ErrNotHandshake = errors.New("peer did not start an auth handshake")
)

func clientMAC(key, clientNonce []byte) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(authContext))
	_, _ = mac.Write(clientNonce)
	return mac.Sum(nil)
}

// ReadClientNonce reads the 32-byte client nonce; the magic is already consumed.
func ReadClientNonce(r io.Reader) (clientNonce []byte, err error) {
	clientNonce = make([]byte, NonceSize)
	if _, err = io.ReadFull(r, clientNonce); err != nil {
		return nil, fmt.Errorf("read client nonce: %w", err)
	}
	return clientNonce, nil
}

// WriteServerHandshake generates the server nonce and sends "OK\0" + nonce.
func WriteServerHandshake(w io.Writer) (serverNonce []byte, err error) {
	serverNonce = make([]byte, NonceSize)
	if _, err = rand.Read(serverNonce); err != nil {
		return nil, fmt.Errorf("generate server nonce: %w", err)
	}
	if _, err = w.Write(append([]byte(replyOK), serverNonce...)); err != nil {
		return nil, fmt.Errorf("write response: %w", err)
	}
	return serverNonce, nil
}

// IsAuthHandshake reports whether the next bytes in r are the handshake magic.
func IsAuthHandshake(r *bufio.Reader) (bool, error) {
	b, err := r.Peek(len(HandshakeMagic))
	if err != nil {
		return false, err
	}
	return string(b) == HandshakeMagic, nil
}

// HandleAuthHandshake runs one side of the handshake and returns both nonces.
//
//	client -> magic | client_nonce[32] | HMAC(key, ctx | client_nonce)
//	server -> "OK\0" | server_nonce[32]   (or "NO\0" and close)
func HandleAuthHandshake(r *bufio.Reader, w io.Writer, key []byte, isClient bool) (clientNonce, serverNonce []byte, err error) {
	if len(key) == 0 {
		return nil, nil, fmt.Errorf("handshake: missing key")
	}

	if isClient {
		clientNonce = make([]byte, NonceSize)
		if _, err := rand.Read(clientNonce); err != nil {
			return nil, nil, fmt.Errorf("generate client nonce: %w", err)
		}
		msg := append([]byte(HandshakeMagic), clientNonce...)
		msg = append(msg, clientMAC(key, clientNonce)...)
		if _, err := w.Write(msg); err != nil {
			return nil, nil, fmt.Errorf("write handshake: %w", err)
		}

		reply := make([]byte, len(replyOK))
		if _, err := io.ReadFull(r, reply); err != nil {
			return nil, nil, fmt.Errorf("read handshake response: %w", err)
		}
		switch string(reply) {
		case replyOK:
		case replyDenied:
			return nil, nil, ErrUnauthorized
		default:
			return nil, nil, fmt.Errorf("invalid handshake response %q", reply)
		}

		serverNonce = make([]byte, NonceSize)
		if _, err := io.ReadFull(r, serverNonce); err != nil {
			return nil, nil, fmt.Errorf("read server nonce: %w", err)
		}
		return clientNonce, serverNonce, nil
	}

	ok, err := IsAuthHandshake(r)
	if err != nil {
		return nil, nil, fmt.Errorf("peek handshake magic: %w", err)
	}
	if !ok {
		return nil, nil, ErrNotHandshake
	}
	if _, err = r.Discard(len(HandshakeMagic)); err != nil {
		return nil, nil, fmt.Errorf("discard handshake magic: %w", err)
	}
	if clientNonce, err = ReadClientNonce(r); err != nil {
		return nil, nil, err
	}
	clientAuth := make([]byte, sha256.Size)
	if _, err := io.ReadFull(r, clientAuth); err != nil {
		return nil, nil, fmt.Errorf("read client auth: %w", err)
	}
	if !hmac.Equal(clientAuth, clientMAC(key, clientNonce)) {
		_, _ = w.Write([]byte(replyDenied))
		return nil, nil, ErrUnauthorized
	}
	if serverNonce, err = WriteServerHandshake(w); err != nil {
		return nil, nil, err
	}
	return clientNonce, serverNonce, nil
}

// bufferedConn reads through the handshake reader so no byte it buffered is lost.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }

// Client runs the dialing side of the handshake and returns the sealed conn.
func Client(conn net.Conn, key []byte) (net.Conn, error) {
	return handshake(conn, key, true)
}

// Server runs the accepting side of the handshake and returns the sealed conn.
func Server(conn net.Conn, key []byte) (net.Conn, error) {
	return handshake(conn, key, false)
}

func handshake(conn net.Conn, key []byte, isClient bool) (net.Conn, error) {
	r := bufio.NewReader(conn)
	cn, sn, err := HandleAuthHandshake(r, conn, key, isClient)
	if err != nil {
		return nil, err
	}
	return WrapConn(&bufferedConn{Conn: conn, r: r}, DeriveSessionKey(key, sn, cn), isClient)
}
