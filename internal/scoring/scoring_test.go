package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/hitoshi/seedman/internal/model"
)

func TestRatio_ZeroDownloaded_ReturnsZero(t *testing.T) {
	if got := Ratio(1000, 0); got != 0 {
		t.Errorf("Ratio(1000, 0) = %v, want 0", got)
	}
}

func TestRatio_Normal(t *testing.T) {
	if got := Ratio(300, 150); got != 2.0 {
		t.Errorf("Ratio(300, 150) = %v, want 2.0", got)
	}
}

func TestActiveMonths_ThirtyDays_IsOneMonth(t *testing.T) {
	added := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recorded := added.Add(30 * 24 * time.Hour)
	if got := ActiveMonths(added, recorded); got != 1.0 {
		t.Errorf("ActiveMonths = %v, want 1.0", got)
	}
}

func TestPopularity_NilSample_ReturnsZero(t *testing.T) {
	tor := &model.Torrent{AddedAt: time.Now()}
	if got := Popularity(tor, nil); got != 0 {
		t.Errorf("Popularity = %v, want 0", got)
	}
}

func TestPopularity_ZeroActiveDuration_ReturnsZero(t *testing.T) {
	added := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tor := &model.Torrent{AddedAt: added}
	s := &model.StatSample{
		RecordedAt:      added, // 経過時間0
		UploadedBytes:   100,
		DownloadedBytes: 50,
	}
	if got := Popularity(tor, s); got != 0 {
		t.Errorf("Popularity = %v, want 0", got)
	}
}

func TestPopularity_NegativeActiveDuration_ReturnsZero(t *testing.T) {
	added := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tor := &model.Torrent{AddedAt: added}
	s := &model.StatSample{
		RecordedAt:      added.Add(-time.Hour),
		UploadedBytes:   100,
		DownloadedBytes: 50,
	}
	if got := Popularity(tor, s); got != 0 {
		t.Errorf("Popularity = %v, want 0", got)
	}
}

func TestPopularity_ExactFormula(t *testing.T) {
	// popularity = (uploaded/downloaded) / ((recorded - added) / 2592000)
	added := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recorded := added.Add(15 * 24 * time.Hour) // 0.5ヶ月
	tor := &model.Torrent{AddedAt: added}
	s := &model.StatSample{
		RecordedAt:      recorded,
		UploadedBytes:   400,
		DownloadedBytes: 100,
	}

	want := 4.0 / 0.5 // ratio=4, months=0.5
	if got := Popularity(tor, s); math.Abs(got-want) > 1e-9 {
		t.Errorf("Popularity = %v, want %v", got, want)
	}
}

func TestPopularity_ZeroDownloaded_RatioGuard(t *testing.T) {
	added := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tor := &model.Torrent{AddedAt: added}
	s := &model.StatSample{
		RecordedAt:      added.Add(30 * 24 * time.Hour),
		UploadedBytes:   100,
		DownloadedBytes: 0,
	}
	if got := Popularity(tor, s); got != 0 {
		t.Errorf("Popularity = %v, want 0（ratioのゼロガード）", got)
	}
}
