package sentiment

import "testing"

func TestTagNegativeOnly(t *testing.T) {
	cases := map[string]int{
		"me siento mal":            -1,
		"estoy triste y con miedo": -2,
		"ANSIEDAD y angustia":      -2,
		"mal, mal y más mal":       -1,
	}
	for text, want := range cases {
		got := Tag(text)
		if got.Mood != Negative {
			t.Fatalf("%q: expected negative mood, got %s", text, got.Mood)
		}
		if got.Score != want {
			t.Fatalf("%q: expected score %d, got %d", text, want, got.Score)
		}
	}
}

func TestTagMixedEndsNegative(t *testing.T) {
	got := Tag("estoy feliz y contento, todo genial pero algo triste")
	if got.Mood != Negative {
		t.Fatalf("expected negative mood for mixed text, got %s", got.Mood)
	}
	if got.Score != 2 {
		t.Fatalf("expected score 2, got %d", got.Score)
	}

	balanced := Tag("me siento bien pero con ansiedad")
	if balanced.Mood != Negative || balanced.Score != 0 {
		t.Fatalf("expected negative/0, got %s/%d", balanced.Mood, balanced.Score)
	}
}

func TestTagPositive(t *testing.T) {
	got := Tag("Hoy estoy FELIZ")
	if got.Mood != Positive || got.Score != 1 {
		t.Fatalf("expected positive/1, got %s/%d", got.Mood, got.Score)
	}
}

func TestTagNoKeywords(t *testing.T) {
	for _, text := range []string{"", "hoy fui al parque con mi perro", "   "} {
		got := Tag(text)
		if got.Mood != Neutral || got.Score != 0 {
			t.Fatalf("%q: expected neutral/0, got %s/%d", text, got.Mood, got.Score)
		}
	}
}

func TestTagMatchesSubstrings(t *testing.T) {
	// "normal" contains "mal"; the neutral list never offsets it.
	got := Tag("un día normal")
	if got.Mood != Negative || got.Score != -1 {
		t.Fatalf("expected negative/-1, got %s/%d", got.Mood, got.Score)
	}
}

func TestNeutralWordsIsACopy(t *testing.T) {
	words := NeutralWords()
	words[0] = "changed"
	if NeutralWords()[0] != "normal" {
		t.Fatal("NeutralWords leaked internal slice")
	}
}
