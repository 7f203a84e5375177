package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewBlankPathIsNil(t *testing.T) {
	require.Nil(t, New("   "))

	var w *Writer
	require.NoError(t, w.Record(Event{Event: EventStart}))
	require.NoError(t, w.Close())
	require.Equal(t, "", w.Path())
}

func TestRecordAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	w := New(path)
	w.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	require.NoError(t, w.Record(Event{Event: EventStart, Mode: Mode(true)}))
	require.NoError(t, w.Record(Event{Event: EventExecution, TsMs: 42, TokenID: "123", Result: "filled", Ok: true}))
	require.NoError(t, w.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 2)

	var first, second Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, int64(1_700_000_000_000), first.TsMs)
	require.Equal(t, "live", first.Mode)
	require.Equal(t, int64(42), second.TsMs)
	require.Equal(t, "filled", second.Result)
	require.NotContains(t, lines[0], "token_id")
}

func TestRecordRequiresEventName(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "events.jsonl"))
	require.Error(t, w.Record(Event{}))
}

func TestRecordConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	w := New(path)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = w.Record(Event{Event: EventExecution, Orders: i})
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 50)
	for _, l := range lines {
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(l), &ev))
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	require.NoError(t, sc.Err())
	return out
}
