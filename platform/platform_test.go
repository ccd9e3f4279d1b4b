package platform

import "testing"

func TestNormalizeYouTubeVariants(t *testing.T) {
	urls := []string{
		"https://www.youtube.com/watch?v=abc123XYZ05",
		"https://youtube.com/watch?v=abc123XYZ05&t=42s",
		"https://youtu.be/abc123XYZ05",
		"https://youtu.be/abc123XYZ05?si=share",
		"https://www.youtube.com/shorts/abc123XYZ05",
		"https://www.youtube.com/shorts/abc123XYZ05?feature=share",
	}

	const want = "youtube:abc123XYZ05"
	for _, raw := range urls {
		key, canonical := YouTube.Normalize(raw)
		if !canonical {
			t.Errorf("Normalize(%q) fell back to degraded mode", raw)
		}
		if key != want {
			t.Errorf("Normalize(%q) = %q, want %q", raw, key, want)
		}
	}
}

func TestNormalizeInstagram(t *testing.T) {
	cases := map[string]string{
		"https://instagram.com/reel/Cxyz123/":            "instagram:Cxyz123",
		"https://www.instagram.com/p/Cxyz123/":           "instagram:Cxyz123",
		"https://www.instagram.com/reels/Cxyz123/?img=1": "instagram:Cxyz123",
	}

	for raw, want := range cases {
		key, canonical := Instagram.Normalize(raw)
		if !canonical {
			t.Errorf("Normalize(%q) fell back to degraded mode", raw)
		}
		if key != want {
			t.Errorf("Normalize(%q) = %q, want %q", raw, key, want)
		}
	}
}

func TestNormalizeFallback(t *testing.T) {
	raw := "https://www.youtube.com/playlist?list=PL123"
	key, canonical := YouTube.Normalize(raw)
	if canonical {
		t.Fatalf("expected degraded fallback for %q", raw)
	}
	if key != "https://www.youtube.com/playlist" {
		t.Errorf("fallback key = %q", key)
	}

	// Idempotent: normalizing the fallback key yields the same key.
	again, _ := YouTube.Normalize(key)
	if again != key {
		t.Errorf("fallback not idempotent: %q -> %q", key, again)
	}
}

func TestNormalizeMalformedURLDoesNotPanic(t *testing.T) {
	key, canonical := Instagram.Normalize("::not a url::/?x=1")
	if canonical {
		t.Fatal("malformed URL must use fallback")
	}
	if key != "::not a url::" {
		t.Errorf("fallback key = %q", key)
	}
}

func TestParse(t *testing.T) {
	if p, ok := Parse("youtube"); !ok || p != YouTube {
		t.Errorf("Parse(youtube) = %v, %v", p, ok)
	}
	if p, ok := Parse(" Instagram "); !ok || p != Instagram {
		t.Errorf("Parse(Instagram) = %v, %v", p, ok)
	}
	if _, ok := Parse("tiktok"); ok {
		t.Error("Parse(tiktok) should be rejected")
	}
}

func TestValidURL(t *testing.T) {
	if !YouTube.ValidURL("https://youtu.be/abc123XYZ05") {
		t.Error("youtu.be link should validate for youtube")
	}
	if YouTube.ValidURL("https://vimeo.com/12345") {
		t.Error("vimeo link must not validate for youtube")
	}
	if !Instagram.ValidURL("http://www.instagram.com/p/Cxyz123/") {
		t.Error("instagram post link should validate")
	}
	if Instagram.ValidURL("https://instagram.com") {
		t.Error("bare host must not validate")
	}
}
