package models

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"
)

func TestTrackView(t *testing.T) {
	duration := int64(1000)
	track := Track{
		ID:         "42",
		Title:      "Song",
		Artist:     "Artist",
		Album:      "Album",
		DurationMS: &duration,
		Thumb:      "/library/metadata/42/thumb/1700000000",
		PartKey:    "/library/parts/7/1/file.flac",
	}

	t.Run("NewTrackView", func(t *testing.T) {
		view := NewTrackView(track, "abc123")

		if view.StreamURL != "/api/stream/abc123" {
			t.Errorf("expected stream URL, got %s", view.StreamURL)
		}
		if view.ArtURL == nil {
			t.Fatal("expected art URL")
		}
		if view.DurationMS == nil || *view.DurationMS != 1000 {
			t.Errorf("expected duration to carry over, got %v", view.DurationMS)
		}
	})

	t.Run("never serializes part key", func(t *testing.T) {
		for _, v := range []any{track, NewTrackView(track, "abc123")} {
			data, err := json.Marshal(v)
			if err != nil {
				t.Fatalf("marshal failed: %v", err)
			}
			if strings.Contains(string(data), "/library/parts") {
				t.Errorf("part key leaked: %s", data)
			}
		}
	})

	t.Run("null fields when absent", func(t *testing.T) {
		data, _ := json.Marshal(NewTrackView(Track{ID: "1"}, "t"))

		if !strings.Contains(string(data), `"artUrl":null`) || !strings.Contains(string(data), `"durationMs":null`) {
			t.Errorf("expected null art and duration, got %s", data)
		}
	})
}

func TestArtPath(t *testing.T) {
	t.Run("round trips through query string", func(t *testing.T) {
		path := "/library/metadata/42/thumb/1700000000?size=large&x=~+"
		u := ArtURL(path)
		if u == nil {
			t.Fatal("expected art URL")
		}

		parsed, err := url.Parse(*u)
		if err != nil {
			t.Fatalf("invalid URL: %v", err)
		}
		if parsed.Path != ArtPath {
			t.Errorf("expected %s, got %s", ArtPath, parsed.Path)
		}

		got, err := DecodeArtPath(parsed.Query().Get("path"))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if got != path {
			t.Errorf("expected %q, got %q", path, got)
		}
	})

	t.Run("empty thumb has no URL", func(t *testing.T) {
		if ArtURL("") != nil {
			t.Error("expected nil")
		}
	})

	t.Run("rejects invalid base64", func(t *testing.T) {
		if _, err := DecodeArtPath("not base64!"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestStreamURL(t *testing.T) {
	if got := StreamURL("a/b"); got != "/api/stream/a%2Fb" {
		t.Errorf("expected escaped ticket, got %s", got)
	}
}
