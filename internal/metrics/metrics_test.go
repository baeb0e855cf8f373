package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertTags_LowercasesAndSorts(t *testing.T) {
	got := convertTags(map[string]string{"Reason": " Stale ", "cause": "Tampered"})
	assert.Equal(t, []string{"cause:tampered", "reason:stale"}, got)
	assert.Empty(t, convertTags(nil))
}

func TestFakeReporter_TotalsAndTags(t *testing.T) {
	f := NewFakeReporter()

	require.NoError(t, f.Count("backup.decrypt_failed", 1, map[string]string{"cause": "tampered"}))
	require.NoError(t, f.Count("backup.decrypt_failed", 2, map[string]string{"cause": "key_mismatch"}))
	require.NoError(t, f.Count("backup.written", 1, nil))

	assert.Equal(t, int64(3), f.Total("backup.decrypt_failed"))
	assert.Equal(t, int64(2), f.Tagged("backup.decrypt_failed", map[string]string{"cause": "key_mismatch"}))
	assert.Equal(t, int64(1), f.Tagged("backup.written", nil))
	assert.Equal(t, int64(0), f.Total("backup.synced"))
}

func TestNoopReporter(t *testing.T) {
	var r Reporter = NoopReporter{}
	assert.NoError(t, r.Count("x", 1, nil))
	assert.NoError(t, r.Close())
}

func TestDataDogReporter_UDPClient(t *testing.T) {
	// statsd over UDP does not need a listening agent
	r, err := NewDataDogReporter("127.0.0.1:8125", "draftkeeper.")
	require.NoError(t, err)
	assert.NoError(t, r.Count("backup.written", 1, map[string]string{"reason": "test"}))
	assert.NoError(t, r.Close())
}
