package native

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCanonicalFields(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(
		`{"requestId":"d1","status":"progress","percent":42.4,"speed":1.5,"downloaded":100,"total":400,"eta":12}`,
	), &msg))

	u := msg.Normalize()
	assert.Equal(t, "d1", u.RequestID)
	assert.Equal(t, 42, u.Percent)
	assert.Equal(t, 1.5, u.Speed)
	assert.Equal(t, int64(100), u.Downloaded)
	assert.Equal(t, int64(400), u.Total)
	assert.Equal(t, int64(12), u.ETA)
	assert.True(t, u.IsProgress())
}

func TestNormalizeAliasFields(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(
		`{"url":"https://example.com/v","status":"downloading","progress":61.7,"downloadSpeed":2.5,"downloadedBytes":200,"totalBytes":800,"timeRemaining":30,"path":"/tmp/v.mp4","message":"boom"}`,
	), &msg))

	u := msg.Normalize()
	assert.Equal(t, "https://example.com/v", u.URL)
	assert.Equal(t, 62, u.Percent)
	assert.Equal(t, 2.5, u.Speed)
	assert.Equal(t, int64(200), u.Downloaded)
	assert.Equal(t, int64(800), u.Total)
	assert.Equal(t, int64(30), u.ETA)
	assert.Equal(t, "/tmp/v.mp4", u.FilePath)
	assert.Equal(t, "boom", u.Error)
	assert.True(t, u.IsProgress())
}

func TestNormalizeFirstPresentAliasWins(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(
		`{"status":"progress","percent":10,"progress":90,"speed":1,"downloadSpeed":9}`,
	), &msg))

	u := msg.Normalize()
	assert.Equal(t, 10, u.Percent)
	assert.Equal(t, float64(1), u.Speed)
}

func TestNormalizeClampsPercent(t *testing.T) {
	cases := []struct {
		raw  float64
		want int
	}{
		{-5, 0},
		{0, 0},
		{49.5, 50},
		{100, 100},
		{137, 100},
	}
	for _, tc := range cases {
		p := tc.raw
		u := (&Message{Status: StatusProgress, Percent: &p}).Normalize()
		assert.Equal(t, tc.want, u.Percent, "raw %v", tc.raw)
	}
}

func TestNormalizeFileSizeOnlyFromFileSize(t *testing.T) {
	total := int64(500)
	size := int64(700)

	u := (&Message{Status: StatusFinished, TotalBytes: &total}).Normalize()
	assert.Equal(t, int64(0), u.FileSize)
	assert.Equal(t, int64(500), u.Total)

	u = (&Message{Status: StatusFinished, FileSize: &size}).Normalize()
	assert.Equal(t, int64(700), u.FileSize)
	assert.Equal(t, int64(700), u.Total)
}

func TestStatusSynonyms(t *testing.T) {
	assert.True(t, Update{Status: StatusDownloading}.IsProgress())
	assert.True(t, Update{Status: StatusCompleted}.IsFinished())
	assert.True(t, Update{Status: StatusFailed}.IsFailure())
	assert.False(t, Update{Status: "nonsense"}.IsProgress())
	assert.False(t, Update{Status: "nonsense"}.IsFinished())
	assert.False(t, Update{Status: "nonsense"}.IsFailure())
}

func TestProbeReplyDecoding(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(
		`{"status":"ok","qualities":[1080,720,480],"audio_only":true,"formats":[{"id":"137","height":1080,"ext":"mp4","fps":30,"sizeMB":52.3,"vcodec":"avc1","acodec":"none","progressive":false}]}`,
	), &msg))

	assert.Equal(t, []int{1080, 720, 480}, msg.Qualities)
	assert.True(t, msg.AudioOnly)
	require.Len(t, msg.Formats, 1)
	assert.Equal(t, "137", msg.Formats[0].ID)
	require.NotNil(t, msg.Formats[0].SizeMB)
	assert.InDelta(t, 52.3, *msg.Formats[0].SizeMB, 0.001)
	assert.False(t, msg.Formats[0].Progressive)
}
