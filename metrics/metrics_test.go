package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricTags(t *testing.T) {
	r, restore := Install()
	defer restore()

	assert.NoError(t, Count("testcount", 42, nil, 1.0))
	assert.Equal(t, map[string]string{}, r.Counts[0].Tags)

	SetAppName("pagecrypt")
	defer resetDefaultTags()

	assert.NoError(t, Count("testcount", 1, map[string]string{"kind": "symmetric"}, 1.0))
	assert.Equal(t, map[string]string{"app": "pagecrypt", "kind": "symmetric"}, r.Counts[1].Tags)

	assert.Equal(t, int64(43), r.Total("testcount", nil))
	assert.Equal(t, int64(1), r.Total("testcount", map[string]string{"kind": "symmetric"}))
	assert.Equal(t, int64(0), r.Total("othercount", nil))
}

func TestTime(t *testing.T) {
	r, restore := Install()
	defer restore()

	tm := Time("pagecrypt.kdf", nil, 1.0)
	tm.SetTags(map[string]string{"foo": "bar"})
	tm.Done()

	if assert.Len(t, r.Timings, 1) {
		assert.Equal(t, "pagecrypt.kdf", r.Timings[0].Name)
		assert.Equal(t, "bar", r.Timings[0].Tags["foo"])
		assert.True(t, r.Timings[0].Value >= 0)
	}
}

func TestConvertTags(t *testing.T) {
	assert.Equal(t, []string{"notice:encryptedpage"}, convertTags(map[string]string{" Notice ": "EncryptedPage"}))
	assert.Equal(t, []string{"kind:symmetric", "path:owner"}, convertTags(map[string]string{
		"path": "owner",
		"kind": "symmetric",
		" ":    "dropped",
	}))
}
