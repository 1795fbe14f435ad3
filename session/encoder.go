package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const recordFormatVersion = 1

// refreshHashOffset is the zero-based position of the refresh hash inside an
// encoded record. rotateRefreshScript depends on it.
const refreshHashOffset = 1

// ErrCorruptRecord is returned when a stored blob cannot be decoded.
var ErrCorruptRecord = errors.New("session record corrupt")

// Encode serializes r as:
//
//	version(1) | refresh hash(32) | issuedAt(8) | token | profile fields
//
// with every string prefixed by a big-endian uint16 length.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil record")
	}

	var buf bytes.Buffer
	buf.Grow(64 + len(r.AccessToken))

	buf.WriteByte(recordFormatVersion)
	buf.Write(r.RefreshHash[:])
	if err := binary.Write(&buf, binary.BigEndian, r.IssuedAt); err != nil {
		return nil, err
	}

	fields := []string{
		r.AccessToken,
		r.Profile.UserID,
		r.Profile.Email,
		r.Profile.Name,
		r.Profile.Role,
		r.Profile.Mobile,
		r.Profile.Address,
		r.Profile.Sex,
		r.Profile.AvatarURL,
	}
	for _, f := range fields {
		if err := writeString(&buf, f); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by [Encode].
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	if version != recordFormatVersion {
		return nil, errors.New("invalid session record version")
	}

	r := &Record{}
	if _, err := io.ReadFull(reader, r.RefreshHash[:]); err != nil {
		return nil, ErrCorruptRecord
	}
	if err := binary.Read(reader, binary.BigEndian, &r.IssuedAt); err != nil {
		return nil, ErrCorruptRecord
	}

	targets := []*string{
		&r.AccessToken,
		&r.Profile.UserID,
		&r.Profile.Email,
		&r.Profile.Name,
		&r.Profile.Role,
		&r.Profile.Mobile,
		&r.Profile.Address,
		&r.Profile.Sex,
		&r.Profile.AvatarURL,
	}
	for _, dst := range targets {
		s, err := readString(reader)
		if err != nil {
			return nil, ErrCorruptRecord
		}
		*dst = s
	}

	if reader.Len() != 0 {
		return nil, ErrCorruptRecord
	}

	return r, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return errors.New("session record field too long")
	}
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	buf.Write(l[:])
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var l [2]byte
	if _, err := io.ReadFull(r, l[:]); err != nil {
		return "", err
	}
	n := int(binary.BigEndian.Uint16(l[:]))
	if n > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", err
	}
	return string(out), nil
}
