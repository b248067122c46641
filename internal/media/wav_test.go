package media

import "testing"

func TestParseWAV_RoundTripsSamplesToWAV(t *testing.T) {
	original := []float32{0, 0.25, -0.25, 0.5, -0.5, 0.999, -1}
	wav := SamplesToWAV(original, 16000)

	samples, rate, err := ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if rate != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", rate)
	}
	if len(samples) != len(original) {
		t.Fatalf("expected %d samples, got %d", len(original), len(samples))
	}
	for i, s := range original {
		want := int16(s * 32767)
		if samples[i] != want {
			t.Fatalf("sample %d: want %d got %d", i, want, samples[i])
		}
	}
}

func TestParseWAV_RejectsNonRIFF(t *testing.T) {
	if _, _, err := ParseWAV([]byte("not a wav file at all")); err == nil {
		t.Fatalf("expected error for non-RIFF input")
	}
}
