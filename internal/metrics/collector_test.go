package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpExtract, 10*time.Millisecond)
	c.RecordTiming(OpExtract, 30*time.Millisecond)

	snap := c.Snapshot()
	if snap.Extract == nil {
		t.Fatal("Extract snapshot is nil")
	}
	if snap.Extract.Count != 2 {
		t.Errorf("Count = %d, want 2", snap.Extract.Count)
	}
	if snap.Extract.MinTimeMs != 10 || snap.Extract.MaxTimeMs != 30 {
		t.Errorf("min/max = %d/%d, want 10/30", snap.Extract.MinTimeMs, snap.Extract.MaxTimeMs)
	}
	if snap.Extract.AvgTimeMs != 20 {
		t.Errorf("AvgTimeMs = %v, want 20", snap.Extract.AvgTimeMs)
	}
	if snap.Extract.TotalInputTokens != nil {
		t.Error("token stats should be nil for non-LLM operations")
	}
	if snap.RenderDocument != nil {
		t.Error("unrecorded operations should be nil")
	}
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 1000, 200)
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 3000, 600)

	snap := c.Snapshot().LLMGenerate
	if snap == nil || snap.TotalInputTokens == nil {
		t.Fatal("LLMGenerate token stats missing")
	}
	if *snap.TotalInputTokens != 4000 || *snap.TotalOutputTokens != 800 {
		t.Errorf("totals = %d/%d, want 4000/800", *snap.TotalInputTokens, *snap.TotalOutputTokens)
	}
	if *snap.MinInputTokens != 1000 || *snap.MaxOutputTokens != 600 {
		t.Errorf("min input / max output = %d/%d", *snap.MinInputTokens, *snap.MaxOutputTokens)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.RecordTiming(OpIngest, time.Second)
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 1, 1)
	c.Time(OpPipelineRun)()
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.Time(OpPipelineRun)()
		}()
	}
	wg.Wait()

	if got := c.Snapshot().PipelineRun.Count; got != 50 {
		t.Errorf("Count = %d, want 50", got)
	}
}
