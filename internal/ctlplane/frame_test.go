// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctlplane

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"grimm.is/tundra/internal/errors"
	"grimm.is/tundra/internal/netcfg"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	level := 3
	in := Request{
		Op:       OpAddRoutes,
		Handle:   "h-1",
		Targets:  []netcfg.Target{{Network: "10.0.0.0", Prefix: 8}},
		Gateway:  "10.8.0.1",
		LogLevel: &level,
	}
	if err := WriteFrame(&buf, in); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	var out Request
	if err := ReadFrame(&buf, &out); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if out.Op != in.Op || out.Handle != in.Handle || out.Gateway != in.Gateway {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if len(out.Targets) != 1 || out.Targets[0].Network != "10.0.0.0" {
		t.Errorf("targets mismatch: %+v", out.Targets)
	}
	if out.LogLevel == nil || *out.LogLevel != 3 {
		t.Errorf("log level mismatch: %v", out.LogLevel)
	}
}

func TestFrameCleanEOF(t *testing.T) {
	var out Request
	if err := ReadFrame(bytes.NewReader(nil), &out); err != io.EOF {
		t.Errorf("empty stream: %v, want io.EOF", err)
	}
}

func TestFrameOversizeRejected(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], maxFrame+1)
	var out Request
	err := ReadFrame(bytes.NewReader(hdr[:]), &out)
	if errors.GetKind(err) != errors.KindValidation {
		t.Errorf("oversize frame: %v, want validation error", err)
	}
}

func TestFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Request{Op: OpStatus}); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:buf.Len()-2]

	var out Request
	if err := ReadFrame(bytes.NewReader(truncated), &out); err == nil {
		t.Error("truncated payload should not decode")
	}
}
