package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// MaxFrameSize bounds a single frame. A length prefix above this is
// treated as pipe corruption rather than an allocation request.
const MaxFrameSize = 16 << 20

// Conn frames messages over a bidirectional byte pipe. Each frame is a
// 4-byte big-endian length prefix followed by a JSON body. Reads and
// writes are independently locked so one side's reader goroutine can block
// in ReadResponse while a writer sends.
type Conn struct {
	rw io.ReadWriteCloser

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewConn wraps a byte pipe in the frame codec.
func NewConn(rw io.ReadWriteCloser) *Conn {
	return &Conn{rw: rw}
}

// WriteRequest frames and sends a request.
func (c *Conn) WriteRequest(req Request) error {
	return c.writeFrame(req)
}

// WriteResponse frames and sends a response.
func (c *Conn) WriteResponse(resp Response) error {
	return c.writeFrame(resp)
}

// ReadRequest reads the next request frame. io.EOF means the far side
// closed the pipe cleanly.
func (c *Conn) ReadRequest() (Request, error) {
	var req Request
	err := c.readFrame(&req)
	return req, err
}

// ReadResponse reads the next response frame.
func (c *Conn) ReadResponse() (Response, error) {
	var resp Response
	err := c.readFrame(&resp)
	return resp, err
}

// Close closes the underlying pipe.
func (c *Conn) Close() error {
	return c.rw.Close()
}

func (c *Conn) writeFrame(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit %d", len(body), MaxFrameSize)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := c.rw.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write frame prefix: %w", err)
	}
	if _, err := c.rw.Write(body); err != nil {
		return fmt.Errorf("failed to write frame body: %w", err)
	}
	return nil
}

func (c *Conn) readFrame(v any) error {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	var prefix [4]byte
	if _, err := io.ReadFull(c.rw, prefix[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return io.EOF
		}
		return fmt.Errorf("failed to read frame prefix: %w", err)
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit %d", size, MaxFrameSize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(c.rw, body); err != nil {
		return fmt.Errorf("failed to read frame body: %w", err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	return nil
}
