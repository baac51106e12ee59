package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), true)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close database: %v", err)
		}
	})
	return db
}

func TestUpsertAdRefreshesJudgmentKeepsNotes(t *testing.T) {
	db := openTestDB(t)

	first := Ad{
		URL:       "https://example.com/ad/1",
		RunID:     "run-1",
		Title:     "Televizor Samsung",
		Score:     6.5,
		Verdict:   "UNCLEAR",
		Notes:     "de verificat personal",
		ScrapedAt: time.Now().UTC(),
	}
	if err := db.UpsertAd(&first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := Ad{
		URL:       "https://example.com/ad/1",
		RunID:     "run-2",
		Title:     "Televizor Samsung 43",
		Score:     8.0,
		Verdict:   "WORTH_IT",
		Notes:     "",
		ScrapedAt: time.Now().UTC(),
	}
	if err := db.UpsertAd(&second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	rows, total, err := db.ListAds(AdQuery{})
	if err != nil {
		t.Fatalf("list ads: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("expected a single row after re-evaluation, got %d", total)
	}
	got := rows[0]
	if got.RunID != "run-2" || got.Score != 8.0 || got.Verdict != "WORTH_IT" {
		t.Fatalf("expected refreshed judgment, got %+v", got)
	}
	if got.Notes != "de verificat personal" {
		t.Fatalf("operator notes must survive re-evaluation, got %q", got.Notes)
	}
}

func TestListAdsFiltersAndOrder(t *testing.T) {
	db := openTestDB(t)

	seed := []Ad{
		{URL: "https://example.com/a", RunID: "run-1", Score: 7.0},
		{URL: "https://example.com/b", RunID: "run-1", Score: 9.0},
		{URL: "https://example.com/c", RunID: "run-1", Score: 4.0, SoftDropped: true, DropReason: "score_below_threshold"},
		{URL: "https://example.com/d", RunID: "run-2", Score: 8.0},
	}
	for i := range seed {
		if err := db.UpsertAd(&seed[i]); err != nil {
			t.Fatalf("seed upsert: %v", err)
		}
	}

	t.Run("default excludes soft drops", func(t *testing.T) {
		rows, total, err := db.ListAds(AdQuery{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if total != 3 {
			t.Fatalf("expected 3 visible ads got %d", total)
		}
		if rows[0].Score != 9.0 || rows[len(rows)-1].Score != 7.0 {
			t.Fatalf("expected score-descending order, got %+v", rows)
		}
	})

	t.Run("include drops", func(t *testing.T) {
		_, total, err := db.ListAds(AdQuery{IncludeDrops: true})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if total != 4 {
			t.Fatalf("expected 4 ads got %d", total)
		}
	})

	t.Run("min score", func(t *testing.T) {
		min := 8.0
		rows, _, err := db.ListAds(AdQuery{MinScore: &min})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("expected 2 ads at or above 8.0 got %d", len(rows))
		}
	})

	t.Run("run filter", func(t *testing.T) {
		rows, _, err := db.ListAds(AdQuery{RunID: "run-2"})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(rows) != 1 || rows[0].URL != "https://example.com/d" {
			t.Fatalf("expected only run-2 ads, got %+v", rows)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		rows, total, err := db.ListAds(AdQuery{Limit: 2, Offset: 2})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if total != 3 {
			t.Fatalf("total must ignore pagination, got %d", total)
		}
		if len(rows) != 1 {
			t.Fatalf("expected 1 row on last page got %d", len(rows))
		}
	})
}

func TestProfileRoundTrip(t *testing.T) {
	db := openTestDB(t)

	p := Profile{Name: "tv flip", Domain: "electronics_tv_flip", CfgJSON: `{"max_price_ron": 400}`}
	p.SetQueries([]string{"tv defect", "televizor nu porneste"})
	p.SetHardYes([]string{"backlight ok"})
	p.SetHardNo([]string{"ecran spart"})
	if err := db.CreateProfile(&p); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if p.ID == 0 {
		t.Fatalf("expected assigned id")
	}

	got, err := db.GetProfile(p.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if len(got.Queries()) != 2 || got.HardYes()[0] != "backlight ok" {
		t.Fatalf("expected decoded lists, got %+v", got)
	}

	if err := db.DeleteProfile(p.ID); err != nil {
		t.Fatalf("delete profile: %v", err)
	}
	if _, err := db.GetProfile(p.ID); err == nil {
		t.Fatalf("expected lookup failure after delete")
	}
}

func TestRunUpsert(t *testing.T) {
	db := openTestDB(t)

	run := Run{RunID: "run-1", ProfileID: 1, Status: "running", Total: 10}
	if err := db.SaveRun(&run); err != nil {
		t.Fatalf("save run: %v", err)
	}

	finished := Run{RunID: "run-1", ProfileID: 1, Status: "completed", Processed: 10, Kept: 3, SoftDropped: 4, HardDropped: 3, Total: 10}
	if err := db.SaveRun(&finished); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	got, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != "completed" || got.Kept != 3 || got.HardDropped != 3 {
		t.Fatalf("expected refreshed run row, got %+v", got)
	}
}
