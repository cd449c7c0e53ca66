package viewer

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/websocket"

	"github.com/brensch/neatsnake/game"
	"github.com/brensch/neatsnake/harness"
	"github.com/brensch/neatsnake/logging"
	"github.com/brensch/neatsnake/rules"
	"github.com/brensch/neatsnake/store"
)

// writeEpisodes records n straight-line episodes into one batch in dir and
// returns their recorders.
func writeEpisodes(t *testing.T, dir string, n int) []*store.Recorder {
	t.Helper()
	var recs []*store.Recorder
	var rows []store.StepRow
	for i := 0; i < n; i++ {
		env, err := rules.NewEnvironment(rules.Config{Size: 8}, rand.New(rand.NewSource(int64(i))))
		if err != nil {
			t.Fatalf("new env: %v", err)
		}
		rec := store.NewRecorder("cand", "test", int64(i))
		opts := harness.DefaultOptions()
		opts.OnStep = rec.OnStep
		if _, err := harness.Evaluate(context.Background(), env, harness.Constant(game.ActionStraight), opts); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		recs = append(recs, rec)
		rows = append(rows, rec.Rows()...)
	}
	if _, err := store.WriteEpisodeBatchParquetAtomic(dir, rows); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	return recs
}

func newTestServer(t *testing.T, roots ...string) (*httptest.Server, *Hub) {
	t.Helper()
	log := logging.Discard()
	hub := NewHub(log)
	s := NewServer(roots, hub, log)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
		_ = s.Close()
	})
	return ts, hub
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_IndexListsEpisodes(t *testing.T) {
	dir := t.TempDir()
	recs := writeEpisodes(t, dir, 2)
	ts, _ := newTestServer(t, dir)

	resp := get(t, ts.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := doc.Find("tr.episode").Length(); got != 2 {
		t.Fatalf("got %d episode rows", got)
	}
	if total := strings.TrimSpace(doc.Find("#total").Text()); total != "2 episodes" {
		t.Fatalf("total=%q", total)
	}
	ids := map[string]bool{}
	doc.Find("tr.episode").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("data-id")
		ids[id] = true
		href, _ := s.Find("a").Attr("href")
		if href != "/episodes/"+id {
			t.Errorf("link %q for %s", href, id)
		}
	})
	for _, r := range recs {
		if !ids[r.EpisodeID] {
			t.Fatalf("episode %s missing from index", r.EpisodeID)
		}
	}
}

func TestServer_EpisodeAPIAndPage(t *testing.T) {
	dir := t.TempDir()
	rec := writeEpisodes(t, dir, 1)[0]
	ts, _ := newTestServer(t, dir)

	var listed EpisodesResponse
	if err := json.NewDecoder(get(t, ts.URL+"/api/episodes").Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if listed.Total != 1 || len(listed.Episodes) != 1 {
		t.Fatalf("list = %+v", listed)
	}
	sum := listed.Episodes[0]
	if sum.EpisodeID != rec.EpisodeID || int(sum.Steps) != len(rec.Rows()) || !sum.Died {
		t.Fatalf("summary = %+v", sum)
	}

	var ep EpisodeResponse
	if err := json.NewDecoder(get(t, ts.URL+"/api/episodes/"+rec.EpisodeID).Body).Decode(&ep); err != nil {
		t.Fatalf("decode episode: %v", err)
	}
	if len(ep.Steps) != len(rec.Rows()) {
		t.Fatalf("got %d steps want %d", len(ep.Steps), len(rec.Rows()))
	}
	for i, s := range ep.Steps {
		want := rec.Rows()[i]
		if s.Step != want.Step || len(s.Body) != len(want.BodyX) || len(s.Features) != rules.NumFeatures {
			t.Fatalf("step %d = %+v", i, s)
		}
	}

	doc, err := goquery.NewDocumentFromReader(get(t, ts.URL+"/episodes/"+rec.EpisodeID).Body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Find("#episode-id").Text() != rec.EpisodeID {
		t.Fatalf("episode page shows %q", doc.Find("#episode-id").Text())
	}
	if !strings.Contains(doc.Find("pre.board").Text(), "O") {
		t.Fatalf("board has no head:\n%s", doc.Find("pre.board").Text())
	}
	if doc.Find("tr.step.terminal").Length() != 1 {
		t.Fatalf("want exactly one terminal step row")
	}

	if resp := get(t, ts.URL+"/api/episodes/nope"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown episode status=%d", resp.StatusCode)
	}
}

func TestServer_EmptyRoots(t *testing.T) {
	ts, _ := newTestServer(t, t.TempDir())
	var listed EpisodesResponse
	if err := json.NewDecoder(get(t, ts.URL+"/api/episodes").Body).Decode(&listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if listed.Total != 0 || len(listed.Episodes) != 0 {
		t.Fatalf("list = %+v", listed)
	}
}

func TestHub_StreamsFrames(t *testing.T) {
	ts, hub := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	env, err := rules.Restore(&game.GameState{
		Size:      6,
		Body:      []game.Point{{X: 3, Y: 1}},
		Direction: game.Up,
		Food:      game.Point{X: 0, Y: 5},
	}, nil)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	opts := harness.DefaultOptions()
	opts.Resume = true
	opts.OnStep = hub.Observer("ep-1", "cand-1")
	if _, err := harness.Evaluate(context.Background(), env, harness.Constant(game.ActionStraight), opts); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frames []LiveFrame
	for len(frames) < 2 {
		var f LiveFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read: %v", err)
		}
		frames = append(frames, f)
	}
	if frames[0].EpisodeID != "ep-1" || frames[0].Step != 1 || frames[0].Body[0] != (Point{X: 3, Y: 0}) {
		t.Fatalf("first frame = %+v", frames[0])
	}
	if !frames[1].Terminal || frames[1].Action != "straight" {
		t.Fatalf("second frame = %+v", frames[1])
	}
}
