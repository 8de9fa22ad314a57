package normalize

import (
	"reflect"
	"testing"
)

func TestFold(t *testing.T) {
	cases := map[string]string{
		"  Web ":  "web",
		"MOBILE":  "mobile",
		"":        "",
		"\tÉté\n": "été",
	}
	for in, want := range cases {
		if got := Fold(in); got != want {
			t.Fatalf("Fold(%q) = %q; want %q", in, got, want)
		}
	}
	if Locale(" EN ") != "en" {
		t.Fatalf("Locale should fold")
	}
}

func TestLower_KeepsSpaceFoldsUnicode(t *testing.T) {
	if got := Lower(" ÉCOLE Straße "); got != " école straße " {
		t.Fatalf("Lower = %q", got)
	}
}

func TestTags_Canonical(t *testing.T) {
	got := Tags([]string{"Web", "web", " WEB ", "", "desktop", "Mobile"})
	want := []string{"desktop", "mobile", "web"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tags() = %#v; want %#v", got, want)
	}
	if !reflect.DeepEqual(Tags([]string{"Web", "web", " WEB "}), Tags([]string{"web"})) {
		t.Fatalf("equivalent tag sets must normalize identically")
	}
	if got := Tags(nil); got == nil || len(got) != 0 {
		t.Fatalf("Tags(nil) should be empty non-nil, got %#v", got)
	}
}

func TestCSV_KeepsOrder(t *testing.T) {
	got := CSV(" EN, fr ,es,en,, ")
	want := []string{"en", "fr", "es"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("CSV() = %#v; want %#v", got, want)
	}
	if got := CSV("   "); len(got) != 0 {
		t.Fatalf("blank CSV should be empty, got %#v", got)
	}
}
