package stages

import (
	"testing"
	"time"

	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/moot/internal/testutil"
	"github.com/dyluth/moot/pkg/blackboard"
)

// testDeps wires every node against miniredis and scripted capability fakes.
func testDeps(t *testing.T) (Deps, *testutil.ScriptedReasoner, *testutil.StubRetriever) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	store, err := blackboard.NewStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reasoner := testutil.NewScriptedReasoner()
	retriever := &testutil.StubRetriever{}

	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)

	return Deps{
		Store:     store,
		Reasoner:  reasoner,
		Retriever: retriever,
		Timeout:   time.Second,
		Log:       logrus.NewEntry(l),
	}, reasoner, retriever
}

func TestTruncate(t *testing.T) {
	t.Run("short strings pass through", func(t *testing.T) {
		assert.Equal(t, "short", truncate("short", 10))
	})

	t.Run("cuts on a byte boundary for ASCII", func(t *testing.T) {
		assert.Equal(t, "abcde...", truncate("abcdefgh", 5))
	})

	t.Run("never splits a multi-byte rune", func(t *testing.T) {
		s := "judgment § 77 rendered"
		for max := 1; max < len(s); max++ {
			got := truncate(s, max)
			assert.True(t, utf8.ValidString(got), "max=%d produced invalid UTF-8: %q", max, got)
		}
	})
}
