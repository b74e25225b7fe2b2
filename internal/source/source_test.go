package source

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bt-tracker-checker/config"
)

func TestParseList(t *testing.T) {
	input := `
# public trackers
udp://tracker.opentrackr.org:1337/announce

  http://tracker.example.org/announce  
udp://tracker.opentrackr.org:1337/announce
`
	list, err := ParseList(strings.NewReader(input), false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"udp://tracker.opentrackr.org:1337/announce",
		"http://tracker.example.org/announce",
		"udp://tracker.opentrackr.org:1337/announce",
	}, list)

	list, err = ParseList(strings.NewReader(input), true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"udp://tracker.opentrackr.org:1337/announce",
		"http://tracker.example.org/announce",
	}, list)
}

func TestParseList_TooFew(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		dedupe bool
	}{
		{"空输入", "", false},
		{"只有注释", "# nothing\n\n", false},
		{"单个端点", "udp://a:1\n", false},
		{"去重后不足", "udp://a:1\nudp://a:1\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseList(strings.NewReader(tt.input), tt.dedupe)
			assert.True(t, errors.Is(err, ErrTooFewEndpoints), "got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("udp://a:1\nhttp://b/announce\n"), 0644))

	list, err := Load(config.InputConfig{Method: "file", File: path}, nil)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = Load(config.InputConfig{Method: "pipe"}, strings.NewReader("udp://a:1\nudp://b:2\nudp://c:3"))
	require.NoError(t, err)
	assert.Len(t, list, 3)

	_, err = Load(config.InputConfig{Method: "file", File: filepath.Join(t.TempDir(), "missing.txt")}, nil)
	assert.Error(t, err)

	_, err = Load(config.InputConfig{Method: "pipe"}, nil)
	assert.Error(t, err)

	_, err = Load(config.InputConfig{Method: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}

func TestListWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("udp://a:1\nudp://b:2\n"), 0644))

	lw, err := NewListWatcher(config.InputConfig{Method: "file", File: path, Watch: true}, nil)
	require.NoError(t, err)
	defer lw.Close()

	changes := make(chan []string, 4)
	lw.AddChangeCallback(func(list []string) { changes <- list })

	require.NoError(t, os.WriteFile(path, []byte("udp://a:1\nudp://b:2\nhttp://c/announce\n"), 0644))

	select {
	case list := <-changes:
		assert.Equal(t, []string{"udp://a:1", "udp://b:2", "http://c/announce"}, list)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestListWatcher_SkipsInvalidList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("udp://a:1\nudp://b:2\n"), 0644))

	lw, err := NewListWatcher(config.InputConfig{Method: "file", File: path, Watch: true}, nil)
	require.NoError(t, err)
	defer lw.Close()

	changes := make(chan []string, 4)
	lw.AddChangeCallback(func(list []string) { changes <- list })

	require.NoError(t, os.WriteFile(path, []byte("udp://only:1\n"), 0644))

	select {
	case list := <-changes:
		t.Fatalf("unexpected reload with %v", list)
	case <-time.After(debounceDelay + 500*time.Millisecond):
	}
}

func TestListWatcher_MissingFile(t *testing.T) {
	_, err := NewListWatcher(config.InputConfig{File: filepath.Join(t.TempDir(), "nope.txt")}, nil)
	assert.Error(t, err)
}

func TestListWatcher_CloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("udp://a:1\nudp://b:2\n"), 0644))

	lw, err := NewListWatcher(config.InputConfig{File: path}, nil)
	require.NoError(t, err)
	assert.NoError(t, lw.Close())
	assert.NoError(t, lw.Close())
}
