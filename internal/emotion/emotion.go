package emotion

import "strings"

// Emotion is the closed set of moods a companion can be in.
type Emotion string

const (
	Neutral Emotion = "neutral"
	Happy   Emotion = "happy"
	Sad     Emotion = "sad"
	Angry   Emotion = "angry"
	Flirty  Emotion = "flirty"
)

// All returns every emotion in a fixed order. The order doubles as the
// deterministic tie-break when two buckets score equally.
func All() []Emotion {
	return []Emotion{Neutral, Happy, Sad, Angry, Flirty}
}

// Parse maps a raw label to an Emotion.
func Parse(raw string) (Emotion, bool) {
	switch Emotion(strings.ToLower(strings.TrimSpace(raw))) {
	case Neutral:
		return Neutral, true
	case Happy:
		return Happy, true
	case Sad:
		return Sad, true
	case Angry:
		return Angry, true
	case Flirty:
		return Flirty, true
	default:
		return "", false
	}
}

// Valid reports whether e is one of the known emotions.
func (e Emotion) Valid() bool {
	_, ok := Parse(string(e))
	return ok
}

const (
	keywordScore    = 3
	intensifierCap  = 2
	exclamationCap  = 3
	switchThreshold = 4
)

var keywordBuckets = map[Emotion][]string{
	Happy: {
		"happy", "glad", "great", "awesome", "amazing", "wonderful", "fantastic",
		"thank", "haha", "lol", "yay", "woohoo", "best day", "good news", "love it",
		"so fun", "hooray", "delighted", "cheerful", ":)",
	},
	Sad: {
		"sad", "unhappy", "cry", "crying", "tears", "lonely", "depressed", "down",
		"miserable", "upset", "hurt", "heartbroken", "grieving", "terrible day",
		"awful day", "sigh", "hopeless", "miss them", ":(",
	},
	Angry: {
		"angry", "mad", "furious", "hate", "annoyed", "annoying", "pissed", "rage",
		"fed up", "sick of", "shut up", "stupid", "worst", "unfair", "outrageous",
		"infuriating", "can't stand",
	},
	Flirty: {
		"cute", "handsome", "gorgeous", "beautiful", "kiss", "darling", "sweetheart",
		"date me", "flirt", "wink", "blush", "love you", "adore you", "babe", "honey",
		"dreamy", "charming", "miss your voice", "thinking of you",
	},
}

var intensifiers = []string{"so ", "really ", "very ", "totally ", "absolutely "}

// Next returns the emotion that follows current after observing text.
// The classifier is a keyword-and-emphasis scorer with hysteresis: the
// winning bucket must reach switchThreshold before the mood shifts, so a
// single weak signal never flaps the state. Identical inputs always yield
// identical outputs.
func Next(current Emotion, text string) Emotion {
	if !current.Valid() {
		current = Neutral
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return current
	}

	scores := make(map[Emotion]int, len(keywordBuckets))
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label] += keywordScore
			}
		}
	}

	// Emphasis amplifies an existing signal; it never creates one.
	emphasis := strings.Count(text, "!")
	if emphasis > exclamationCap {
		emphasis = exclamationCap
	}
	intensity := 0
	for _, word := range intensifiers {
		intensity += strings.Count(normalized, word)
	}
	if intensity > intensifierCap {
		intensity = intensifierCap
	}
	for label, score := range scores {
		if score > 0 {
			scores[label] = score + emphasis + intensity
		}
	}

	best := current
	bestScore := 0
	for _, label := range All() {
		if s := scores[label]; s > bestScore {
			best = label
			bestScore = s
		}
	}

	if best == current {
		return current
	}
	if bestScore >= switchThreshold {
		return best
	}
	return current
}
