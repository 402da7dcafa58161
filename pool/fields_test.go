package pool

import (
	"strings"
	"sync"
	"testing"
)

func TestSplitMatchesStrings(t *testing.T) {
	lines := []string{
		"",
		"|",
		"a",
		"a|b|c",
		"C0000005|ENG|P|L0000005|PF|S0007492|Y|A26634265||M0019694|D012711|MSH|PEP|D012711|(131)I-Macroaggregated Albumin|0|N|256|",
		"||x||",
	}
	buf := AcquireFields()
	defer ReleaseFields(buf)

	for _, line := range lines {
		got := Split(buf, line, '|')
		want := strings.Split(line, "|")
		if len(got) != len(want) {
			t.Fatalf("Split(%q) len = %d; want %d", line, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Split(%q)[%d] = %q; want %q", line, i, got[i], want[i])
			}
		}
	}
}

func TestFieldsPool(t *testing.T) {
	s := AcquireFields()
	if s == nil {
		t.Fatal("AcquireFields returned nil")
	}
	Split(s, "a|b|c", '|')
	if len(*s) != 3 {
		t.Errorf("len = %d; want 3", len(*s))
	}
	ReleaseFields(s)

	// Get another one - should be reset
	s2 := AcquireFields()
	if len(*s2) != 0 {
		t.Errorf("len after acquire = %d; want 0 (should be reset)", len(*s2))
	}
	ReleaseFields(s2)
}

func TestFieldsPool_NilRelease(t *testing.T) {
	ReleaseFields(nil) // Should not panic
}

func TestFieldsPool_OversizedNotPooled(t *testing.T) {
	s := AcquireFields()
	Split(s, strings.Repeat("x|", maxPooledFields+10), '|')
	ReleaseFields(s) // dropped, not pooled

	s2 := AcquireFields()
	defer ReleaseFields(s2)
	if len(*s2) != 0 {
		t.Errorf("len = %d; want 0", len(*s2))
	}
}

func TestFieldsPool_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := AcquireFields()
			defer ReleaseFields(buf)
			if f := Split(buf, "a|b", '|'); len(f) != 2 {
				t.Errorf("len = %d; want 2", len(f))
			}
		}()
	}
	wg.Wait()
}
