package packet

import (
	"bytes"
	"errors"
	"testing"
)

// TestEncodeLength 可变字节整数的边界值
// 参考MQTT v3.1.1章节 2.2.3 Remaining Length
func TestEncodeLength(t *testing.T) {
	testCases := []struct {
		name     string
		value    uint32
		expected []byte
	}{
		{"Zero", 0, []byte{0x00}},
		{"OneByteMax", 127, []byte{0x7F}},
		{"TwoByteMin", 128, []byte{0x80, 0x01}},
		{"TwoByteMax", 16383, []byte{0xFF, 0x7F}},
		{"ThreeByteMin", 16384, []byte{0x80, 0x80, 0x01}},
		{"ThreeByteMax", 2097151, []byte{0xFF, 0xFF, 0x7F}},
		{"FourByteMin", 2097152, []byte{0x80, 0x80, 0x80, 0x01}},
		{"FourByteMax", 268435455, []byte{0xFF, 0xFF, 0xFF, 0x7F}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EncodeLength(tc.value)
			if err != nil {
				t.Fatalf("EncodeLength(%d) error: %v", tc.value, err)
			}
			if !bytes.Equal(got, tc.expected) {
				t.Errorf("EncodeLength(%d) = %x, want %x", tc.value, got, tc.expected)
			}

			value, n, err := DecodeLength(got)
			if err != nil {
				t.Fatalf("DecodeLength(%x) error: %v", got, err)
			}
			if value != tc.value || n != len(tc.expected) {
				t.Errorf("DecodeLength(%x) = (%d, %d), want (%d, %d)", got, value, n, tc.value, len(tc.expected))
			}
		})
	}
}

func TestEncodeLengthTooLarge(t *testing.T) {
	if _, err := EncodeLength(uint32(MaxRemainingLength + 1)); !errors.Is(err, ErrValueTooLarge) {
		t.Errorf("EncodeLength(max+1) error = %v, want ErrValueTooLarge", err)
	}
	if _, err := EncodeLength(-1); !errors.Is(err, ErrValueTooLarge) {
		t.Errorf("EncodeLength(-1) error = %v, want ErrValueTooLarge", err)
	}
}

func TestDecodeLength(t *testing.T) {
	testCases := []struct {
		name  string
		input []byte
		value uint32
		n     int
		err   error
	}{
		{"Empty", nil, 0, 0, ErrIncomplete},
		{"DanglingContinuation", []byte{0x80}, 0, 0, ErrIncomplete},
		{"ThreeContinuations", []byte{0x80, 0x80, 0x80}, 0, 0, ErrIncomplete},
		{"FourthContinuation", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x01}, 0, 0, ErrMalformedLength},
		{"TrailingBytesIgnored", []byte{0x05, 0xAA, 0xBB}, 5, 1, nil},
		{"NonMinimal", []byte{0x80, 0x00}, 0, 2, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			value, n, err := DecodeLength(tc.input)
			if !errors.Is(err, tc.err) {
				t.Fatalf("DecodeLength(%x) error = %v, want %v", tc.input, err, tc.err)
			}
			if value != tc.value || n != tc.n {
				t.Errorf("DecodeLength(%x) = (%d, %d), want (%d, %d)", tc.input, value, n, tc.value, tc.n)
			}
		})
	}
}

func TestReadString(t *testing.T) {
	testCases := []struct {
		name    string
		input   []byte
		want    string
		wantErr bool
	}{
		{"Empty", []byte{0x00, 0x00}, "", false},
		{"ASCII", []byte{0x00, 0x03, 'a', '/', 'b'}, "a/b", false},
		{"MultiByte", append([]byte{0x00, 0x06}, "测试"...), "测试", false},
		{"Short", []byte{0x00, 0x05, 'a'}, "", true},
		{"InvalidUTF8", []byte{0x00, 0x01, 0xFF}, "", true},
		{"NUL", []byte{0x00, 0x01, 0x00}, "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := readString(bytes.NewBuffer(tc.input))
			if (err != nil) != tc.wantErr {
				t.Fatalf("readString error = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("readString = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestS2B(t *testing.T) {
	b, err := s2b("test")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, []byte{0x00, 0x04, 't', 'e', 's', 't'}) {
		t.Errorf("s2b = %x", b)
	}
	if _, err := s2b(make([]byte, 0x10000)); err == nil {
		t.Error("s2b should reject fields longer than 65535 bytes")
	}
}

func TestVersionClientID(t *testing.T) {
	testCases := []struct {
		name string
		id   string
		want string
	}{
		{"Short", "client", "client"},
		{"Exact", "abcdefghijklmnopqrstuvw", "abcdefghijklmnopqrstuvw"},
		{"Long", "abcdefghijklmnopqrstuvwxyz", "abcdefghijklmnopqrstuvw"},
		// 22 ASCII bytes then a 3 byte rune straddling the limit.
		{"RuneBoundary", "abcdefghijklmnopqrstuv测", "abcdefghijklmnopqrstuv"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := V311.ClientID(tc.id); got != tc.want {
				t.Errorf("ClientID(%q) = %q, want %q", tc.id, got, tc.want)
			}
		})
	}
}

func TestLookupVersion(t *testing.T) {
	if v, ok := LookupVersion("MQTT", VERSION311); !ok || v != V311 {
		t.Errorf("LookupVersion(MQTT, 4) = %v, %v", v, ok)
	}
	if v, ok := LookupVersion("MQIsdp", VERSION31); !ok || v != V31 {
		t.Errorf("LookupVersion(MQIsdp, 3) = %v, %v", v, ok)
	}
	if _, ok := LookupVersion("MQTT", 5); ok {
		t.Error("LookupVersion(MQTT, 5) should fail")
	}
}

func TestKindMap(t *testing.T) {
	for kind := byte(0x0); kind <= 0xF; kind++ {
		if name, exists := Kind[kind]; !exists || name == "" {
			t.Errorf("Kind map missing entry for %d", kind)
		}
	}
}
