package emotion

import "testing"

func TestNextIsDeterministic(t *testing.T) {
	first := Next(Neutral, "I'm so happy!")
	if first != Happy {
		t.Fatalf("expected happy, got %s", first)
	}
	for i := 0; i < 20; i++ {
		if got := Next(Neutral, "I'm so happy!"); got != first {
			t.Fatalf("non-deterministic result on call %d: got %s want %s", i, got, first)
		}
	}
}

func TestNextHysteresisKeepsMoodOnWeakSignal(t *testing.T) {
	// A single unemphasized keyword is below the switch threshold.
	if got := Next(Neutral, "sad"); got != Neutral {
		t.Fatalf("weak signal should not flip mood, got %s", got)
	}
	if got := Next(Happy, "that is annoying"); got != Happy {
		t.Fatalf("weak signal should not flip mood, got %s", got)
	}
}

func TestNextStrongSignalSwitches(t *testing.T) {
	if got := Next(Happy, "I hate this, I'm so mad!!"); got != Angry {
		t.Fatalf("expected angry, got %s", got)
	}
	if got := Next(Neutral, "I feel so lonely and I keep crying"); got != Sad {
		t.Fatalf("expected sad, got %s", got)
	}
	if got := Next(Neutral, "you're so cute, wink wink"); got != Flirty {
		t.Fatalf("expected flirty, got %s", got)
	}
}

func TestNextEmptyInputKeepsCurrent(t *testing.T) {
	if got := Next(Sad, ""); got != Sad {
		t.Fatalf("empty input must keep current mood, got %s", got)
	}
	if got := Next(Sad, "   "); got != Sad {
		t.Fatalf("blank input must keep current mood, got %s", got)
	}
}

func TestNextInvalidCurrentFallsBackToNeutral(t *testing.T) {
	if got := Next(Emotion("confused"), "hello"); got != Neutral {
		t.Fatalf("invalid current mood should normalize to neutral, got %s", got)
	}
}

func TestNextEmphasisAloneIsNotASignal(t *testing.T) {
	if got := Next(Neutral, "okay!!!"); got != Neutral {
		t.Fatalf("punctuation without a keyword should not flip mood, got %s", got)
	}
}

func TestParse(t *testing.T) {
	if mood, ok := Parse(" Happy "); !ok || mood != Happy {
		t.Fatalf("Parse failed: %s %v", mood, ok)
	}
	if _, ok := Parse("euphoric"); ok {
		t.Fatal("expected unknown label to fail")
	}
}
