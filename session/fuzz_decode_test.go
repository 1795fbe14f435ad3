package session

import (
	"testing"
)

// FuzzRecordDecode exercises the binary record decoder with arbitrary inputs.
// Goal: no panics; anything that decodes must re-encode to the same bytes.
func FuzzRecordDecode(f *testing.F) {
	encoded, err := Encode(testRecord("u-fuzz", "token-fuzz", HashToken("refresh-fuzz")))
	if err == nil {
		f.Add(encoded)
	}

	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{1})
	f.Add([]byte{255, 255, 255})

	if len(encoded) > 10 {
		f.Add(encoded[:10])
	}
	if len(encoded) > 45 {
		f.Add(encoded[:45])
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		rec, err := Decode(data)
		if err != nil {
			return
		}
		if rec == nil {
			t.Fatal("Decode returned nil record without error")
		}
		again, err := Encode(rec)
		if err != nil {
			t.Fatalf("re-encode failed: %v", err)
		}
		if string(again) != string(data) {
			t.Fatal("decode/encode is not stable")
		}
	})
}
