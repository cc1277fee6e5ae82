package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize 单帧最大长度（字节）
const MaxFrameSize = 64 * 1024

// ErrProtocolViolation 帧长度非法或对端在读取长度前关闭，调用方必须关闭连接
var ErrProtocolViolation = errors.New("protocol violation")

// WriteFrame 写入一帧：4 字节大端长度 + 帧体
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) == 0 || len(body) > MaxFrameSize {
		return fmt.Errorf("%w: frame length %d", ErrProtocolViolation, len(body))
	}

	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[4:], body)

	// io.Writer 约定短写必返回错误，这里仍循环直到写完
	for written := 0; written < len(buf); {
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		written += n
	}
	return nil
}

// ReadFrame 读取一帧，短读会被补齐
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: peer closed: %v", ErrProtocolViolation, err)
		}
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame length %d", ErrProtocolViolation, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated body: %v", ErrProtocolViolation, err)
		}
		return nil, err
	}
	return body, nil
}
