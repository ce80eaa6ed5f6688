package forge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lippkg/lipr/client"
)

func newTestForge(api, raw *httptest.Server) *GitHub {
	// Short delays keep test retries from sleeping for real.
	c := client.NewClient(client.WithBaseDelay(time.Millisecond), client.WithMaxRetries(1))
	opts := []GitHubOption{}
	if api != nil {
		opts = append(opts, WithAPIURL(api.URL))
	}
	if raw != nil {
		opts = append(opts, WithRawURL(raw.URL))
	}
	return NewGitHub(c, opts...)
}

func TestParseRepository(t *testing.T) {
	repo, err := ParseRepository("acme/widget")
	if err != nil {
		t.Fatalf("ParseRepository failed: %v", err)
	}
	if repo.Owner != "acme" || repo.Name != "widget" {
		t.Errorf("repo = %+v", repo)
	}
	if repo.FullName() != "acme/widget" {
		t.Errorf("FullName = %q", repo.FullName())
	}

	for _, bad := range []string{"", "acme", "acme/", "/widget", "a/b/c"} {
		if _, err := ParseRepository(bad); err == nil {
			t.Errorf("ParseRepository(%q) accepted, want error", bad)
		}
	}
}

func TestSearchManifestsPaginatesAndDedupes(t *testing.T) {
	page := func(repos ...string) string {
		items := ""
		for i, r := range repos {
			if i > 0 {
				items += ","
			}
			items += fmt.Sprintf(`{"repository":{"full_name":%q}}`, r)
		}
		return fmt.Sprintf(`{"total_count":3,"items":[%s]}`, items)
	}

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/code" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		switch r.URL.Query().Get("page") {
		case "1":
			// Same repo surfaced twice via different paths.
			_, _ = w.Write([]byte(page("acme/widget", "acme/widget")))
		case "2":
			_, _ = w.Write([]byte(page("acme/gadget", "other/tool")))
		default:
			_, _ = w.Write([]byte(`{"total_count":3,"items":[]}`))
		}
	}))
	defer api.Close()

	g := newTestForge(api, nil)
	repos, err := g.SearchManifests(context.Background(), "probe-marker")
	if err != nil {
		t.Fatalf("SearchManifests failed: %v", err)
	}

	want := []string{"acme/widget", "acme/gadget", "other/tool"}
	if len(repos) != len(want) {
		t.Fatalf("repos = %v, want %v", repos, want)
	}
	for i, w := range want {
		if repos[i].FullName() != w {
			t.Errorf("repos[%d] = %s, want %s", i, repos[i], w)
		}
	}
}

func TestSearchManifestsPageFailureIsFatal(t *testing.T) {
	calls := 0
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("page") == "1" {
			_, _ = w.Write([]byte(`{"total_count":200,"items":[{"repository":{"full_name":"acme/widget"}}]}`))
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer api.Close()

	g := newTestForge(api, nil)
	if _, err := g.SearchManifests(context.Background(), "probe"); err == nil {
		t.Error("expected error when a page request fails")
	}
}

func TestListTags(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widget/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"name":"v1.0.0"},{"name":"not-a-version"}]`))
	}))
	defer api.Close()

	g := newTestForge(api, nil)
	tags, err := g.ListTags(context.Background(), Repository{Owner: "acme", Name: "widget"})
	if err != nil {
		t.Fatalf("ListTags failed: %v", err)
	}
	if len(tags) != 2 || tags[0] != "v1.0.0" {
		t.Errorf("tags = %v", tags)
	}
}

func TestListTagsEmpty(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer api.Close()

	g := newTestForge(api, nil)
	tags, err := g.ListTags(context.Background(), Repository{Owner: "acme", Name: "bare"})
	if err != nil {
		t.Fatalf("a repository without tags is not an error: %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("tags = %v, want empty", tags)
	}
}

func TestFetchManifest(t *testing.T) {
	raw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acme/widget/v1.0.0/tooth.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"tooth":"github.com/acme/widget"}`))
	}))
	defer raw.Close()

	g := newTestForge(nil, raw)
	repo := Repository{Owner: "acme", Name: "widget"}

	body, err := g.FetchManifest(context.Background(), repo, "v1.0.0")
	if err != nil {
		t.Fatalf("FetchManifest failed: %v", err)
	}
	if len(body) == 0 {
		t.Error("empty body")
	}

	_, err = g.FetchManifest(context.Background(), repo, "v9.9.9")
	if !errors.Is(err, client.ErrNotFound) {
		t.Errorf("FetchManifest = %v, want ErrNotFound", err)
	}
}

func TestFetchManifestNotFoundDoesNotTripBreaker(t *testing.T) {
	raw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer raw.Close()

	g := newTestForge(nil, raw)
	repo := Repository{Owner: "acme", Name: "widget"}

	// Well past the consecutive-failure threshold.
	for i := 0; i < 10; i++ {
		_, err := g.FetchManifest(context.Background(), repo, fmt.Sprintf("v%d.0.0", i))
		if !errors.Is(err, client.ErrNotFound) {
			t.Fatalf("fetch %d: %v, want ErrNotFound", i, err)
		}
	}
}

func TestFetchMetadata(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widget" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"stargazers_count":128,"pushed_at":"2026-08-01T12:00:00Z"}`))
	}))
	defer api.Close()

	g := newTestForge(api, nil)
	meta, err := g.FetchMetadata(context.Background(), Repository{Owner: "acme", Name: "widget"})
	if err != nil {
		t.Fatalf("FetchMetadata failed: %v", err)
	}
	if meta.Stars != 128 {
		t.Errorf("Stars = %d, want 128", meta.Stars)
	}
	if meta.UpdatedAt != time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) {
		t.Errorf("UpdatedAt = %v", meta.UpdatedAt)
	}
}

func TestFetchMetadataError(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer api.Close()

	g := newTestForge(api, nil)
	if _, err := g.FetchMetadata(context.Background(), Repository{Owner: "gone", Name: "repo"}); err == nil {
		t.Error("expected error")
	}
}
