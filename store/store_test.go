package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetHas(t *testing.T) {
	require := require.New(t)
	s := openTestStore(t)

	ok, err := s.Has("topics/T")
	require.NoError(err)
	require.False(ok)

	require.NoError(s.Put("topics/T", []byte("payload")))

	ok, err = s.Has("topics/T")
	require.NoError(err)
	require.True(ok)

	v, err := s.Get("topics/T")
	require.NoError(err)
	require.Equal([]byte("payload"), v)
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	require := require.New(t)
	s := openTestStore(t)

	_, err := s.Get("nope")
	require.ErrorIs(err, ErrNotFound)
}

func TestCreateOnceRejectsSecondWrite(t *testing.T) {
	require := require.New(t)
	s := openTestStore(t)

	require.NoError(s.CreateOnce("pending_content/v1", []byte("first")))
	err := s.CreateOnce("pending_content/v1", []byte("second"))
	require.ErrorIs(err, ErrAlreadyExists)

	v, err := s.Get("pending_content/v1")
	require.NoError(err)
	require.Equal([]byte("first"), v)
}

func TestScanPrefixEnumeratesOnlyMatchingKeys(t *testing.T) {
	require := require.New(t)
	s := openTestStore(t)

	require.NoError(s.Put("election/T/reputation/p1", []byte("90")))
	require.NoError(s.Put("election/T/reputation/p2", []byte("80")))
	require.NoError(s.Put("election/U/reputation/p3", []byte("90")))

	var seen []string
	require.NoError(s.ScanPrefix(ReputationPrefix("T"), func(key string, value []byte) (bool, error) {
		seen = append(seen, key)
		return true, nil
	}))

	require.ElementsMatch([]string{
		"election/T/reputation/p1",
		"election/T/reputation/p2",
	}, seen)
}

func TestScanPrefixCanStopEarly(t *testing.T) {
	require := require.New(t)
	s := openTestStore(t)

	require.NoError(s.Put("content/v1", []byte("a")))
	require.NoError(s.Put("content/v2", []byte("b")))
	require.NoError(s.Put("content/v3", []byte("c")))

	count := 0
	require.NoError(s.ScanPrefix(ContentPrefix(), func(key string, value []byte) (bool, error) {
		count++
		return count < 1, nil
	}))
	require.Equal(1, count)
}

func TestDelete(t *testing.T) {
	require := require.New(t)
	s := openTestStore(t)

	require.NoError(s.Put("topics/T", []byte("x")))
	require.NoError(s.Delete("topics/T"))

	ok, err := s.Has("topics/T")
	require.NoError(err)
	require.False(ok)
}
