package adapters

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestToLongSkipsZeroTime(t *testing.T) {
	if _, ok := ToLong(time.Time{}); ok {
		t.Fatalf("zero time must be unset")
	}
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	ms, ok := ToLong(ts)
	if !ok || ms != ts.UnixMilli() {
		t.Fatalf("unexpected encoding %d %v", ms, ok)
	}
	if got := ToTime(ms); !got.Equal(ts) || got.Location() != time.UTC {
		t.Fatalf("expected %v, got %v", ts, got)
	}
}

func TestToTimeToleratesAbsentValues(t *testing.T) {
	if got := ToTime(nil); !got.IsZero() {
		t.Fatalf("expected zero time, got %v", got)
	}
	if got := ToTime("not a number"); !got.IsZero() {
		t.Fatalf("expected zero time, got %v", got)
	}
}

func TestTimeRoundTripProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)
	properties.Property("epoch millis survive encode/decode", prop.ForAll(
		func(ms int64) bool {
			ts := time.UnixMilli(ms).UTC()
			if ts.IsZero() {
				return true
			}
			enc, ok := ToLong(ts)
			return ok && ToTime(enc).Equal(ts)
		},
		gen.Int64Range(-62135596800000+1, 253402300799000),
	))
	properties.TestingRun(t)
}

func TestScalarAndList(t *testing.T) {
	if _, ok := Scalar[string](nil); ok {
		t.Fatalf("nil must not yield a value")
	}
	if v, ok := Scalar[string]([]any{"a", "b"}); !ok || v != "a" {
		t.Fatalf("expected first element, got %q %v", v, ok)
	}
	if v, ok := Scalar[int64](7); !ok || v != 7 {
		t.Fatalf("expected widened int, got %d %v", v, ok)
	}
	if v, ok := Scalar[int64](float64(3)); !ok || v != 3 {
		t.Fatalf("expected integral float to convert, got %d %v", v, ok)
	}
	if _, ok := Scalar[bool]("true"); ok {
		t.Fatalf("string must not convert to bool")
	}
	if got := List[string](nil); got != nil {
		t.Fatalf("expected nil list, got %#v", got)
	}
	if diff := cmp.Diff([]string{"x"}, List[string]("x")); diff != "" {
		t.Fatalf("scalar list mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "c"}, List[string]([]any{"a", int64(1), "c"})); diff != "" {
		t.Fatalf("mixed list mismatch:\n%s", diff)
	}
}

func TestChecksumEncoding(t *testing.T) {
	in := map[string]string{"sha1": "abc", "md5": "def"}
	enc := EncodeChecksums(in)
	if diff := cmp.Diff([]string{"{md5}def", "{sha1}abc"}, enc); diff != "" {
		t.Fatalf("encoding mismatch:\n%s", diff)
	}
	out := DecodeChecksums(append(enc, "garbage", "{}x"))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("decoding mismatch:\n%s", diff)
	}
	if DecodeChecksums(nil) != nil {
		t.Fatalf("expected nil for no checksums")
	}
}
