package partial

import (
	"testing"

	"lnscraper/pkg/models"
)

func posts(contents ...string) []models.Post {
	out := make([]models.Post, len(contents))
	for i, c := range contents {
		out[i] = models.Post{Content: c}
	}
	return out
}

func TestAccumulatorPreservesOrder(t *testing.T) {
	acc := NewAccumulator(Config{ConsecutiveFailureLimit: 3})

	acc.RecordSuccess(posts("a", "b"))
	acc.RecordPageFailure("page-2", "timeout")
	acc.RecordSuccess(posts("c"))

	result := acc.Finalize()
	if len(result.Posts) != 3 {
		t.Fatalf("collected %d posts, want 3", len(result.Posts))
	}
	for i, want := range []string{"a", "b", "c"} {
		if result.Posts[i].Content != want {
			t.Errorf("Posts[%d] = %q, want %q", i, result.Posts[i].Content, want)
		}
	}
	if len(result.PageFailures) != 1 || result.PageFailures[0].Marker != "page-2" {
		t.Errorf("PageFailures = %+v, want one entry for page-2", result.PageFailures)
	}
}

func TestAccumulatorConsecutiveFailureThreshold(t *testing.T) {
	acc := NewAccumulator(Config{ConsecutiveFailureLimit: 3})

	acc.RecordSuccess(posts("a"))
	acc.RecordPageFailure("p1", "x")
	acc.RecordPageFailure("p2", "x")
	if !acc.ShouldContinue() {
		t.Fatal("stopped below the threshold")
	}

	// A success in between resets the run.
	acc.RecordSuccess(posts("b"))
	acc.RecordPageFailure("p3", "x")
	acc.RecordPageFailure("p4", "x")
	if !acc.ShouldContinue() {
		t.Fatal("reset run not honored")
	}

	acc.RecordPageFailure("p5", "x")
	if acc.ShouldContinue() {
		t.Fatal("did not stop at the threshold")
	}

	result := acc.Finalize()
	if !result.Degraded {
		t.Error("result not marked degraded after hitting the threshold")
	}
	if len(result.Posts) != 2 {
		t.Errorf("collected %d posts, want 2; degradation must keep prior items", len(result.Posts))
	}
}

func TestAccumulatorMaxItems(t *testing.T) {
	acc := NewAccumulator(Config{MaxItems: 3})

	acc.RecordSuccess(posts("a", "b"))
	if !acc.ShouldContinue() {
		t.Fatal("stopped below the item cap")
	}
	acc.RecordSuccess(posts("c", "d"))
	if acc.ShouldContinue() {
		t.Fatal("did not stop at the item cap")
	}

	result := acc.Finalize()
	if result.Degraded {
		t.Error("item cap must not mark the result degraded")
	}
}

func TestAccumulatorMaxItemsCountsPriorItems(t *testing.T) {
	acc := NewAccumulator(Config{MaxItems: 100, PriorItems: 90})

	acc.RecordSuccess(make([]models.Post, 9))
	if !acc.ShouldContinue() {
		t.Fatal("stopped below the item cap")
	}

	acc.RecordSuccess(make([]models.Post, 1))
	if acc.ShouldContinue() {
		t.Fatal("cap must count items carried over from earlier runs")
	}
}

func TestAccumulatorRequestStop(t *testing.T) {
	acc := NewAccumulator(Config{})

	acc.RecordSuccess(posts("a"))
	if !acc.ShouldContinue() {
		t.Fatal("unexpected stop")
	}
	acc.RequestStop()
	if acc.ShouldContinue() {
		t.Fatal("stop request not honored")
	}
}

func TestAccumulatorFinalizeIdempotent(t *testing.T) {
	acc := NewAccumulator(Config{ConsecutiveFailureLimit: 2})
	acc.RecordSuccess(posts("a"))

	first := acc.Finalize()
	// Late records after finalize must not change the snapshot.
	acc.RecordSuccess(posts("b"))
	second := acc.Finalize()

	if first != second {
		t.Error("Finalize returned different snapshots")
	}
	if len(second.Posts) != 1 {
		t.Errorf("snapshot has %d posts, want 1", len(second.Posts))
	}
}

func TestAccumulatorSuccessRate(t *testing.T) {
	acc := NewAccumulator(Config{})
	acc.RecordSuccess(posts("a", "b", "c"))
	acc.RecordPageFailure("p1", "x")

	result := acc.Finalize()
	if got := result.SuccessRate(); got != 0.75 {
		t.Errorf("SuccessRate = %v, want 0.75", got)
	}

	empty := &Result{}
	if got := empty.SuccessRate(); got != 0 {
		t.Errorf("empty SuccessRate = %v, want 0", got)
	}
}
