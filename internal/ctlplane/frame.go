// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctlplane

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"grimm.is/tundra/internal/errors"
)

// maxFrame bounds a single frame; control messages are small and
// anything bigger is a broken or hostile peer.
const maxFrame = 1 << 20

// WriteFrame writes a 4-byte big-endian length followed by the JSON
// encoding of v.
func WriteFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "encoding frame")
	}
	if len(payload) > maxFrame {
		return errors.Errorf(errors.KindInternal, "frame of %d bytes exceeds limit", len(payload))
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "writing frame header")
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "writing frame payload")
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON frame into v. io.EOF is
// returned untouched so callers can distinguish clean hangup.
func ReadFrame(r io.Reader, v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return errors.Wrap(err, errors.KindUnavailable, "reading frame header")
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrame {
		return errors.Errorf(errors.KindValidation, "frame of %d bytes exceeds limit", n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "reading frame payload")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return errors.Wrap(err, errors.KindValidation, "decoding frame")
	}
	return nil
}
