package assessment

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShuffleDeterministic(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}

	for seed := int64(-3); seed < 50; seed++ {
		first := Shuffle(ids, seed)
		second := Shuffle(ids, seed)
		require.Equal(t, first, second, "seed %d", seed)

		sorted := append([]string(nil), first...)
		sort.Strings(sorted)
		require.Equal(t, ids, sorted, "seed %d must permute", seed)
	}
}

func TestShuffleDoesNotMutateInput(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	_ = Shuffle(ids, 42)
	require.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestShuffleSmallInputs(t *testing.T) {
	require.Empty(t, Shuffle(nil, 1))
	require.Equal(t, []string{"only"}, Shuffle([]string{"only"}, 7))
}

func TestShuffleVariesWithSeed(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	seen := map[string]struct{}{}
	for seed := int64(0); seed < 20; seed++ {
		order := Shuffle(ids, seed)
		key := ""
		for _, id := range order {
			key += id
		}
		seen[key] = struct{}{}
	}
	require.Greater(t, len(seen), 1)
}

func TestQuestionOrderRespectsRandomizeFlag(t *testing.T) {
	def := mustDefinition(t, `{"randomize":false,"questions":[{"id":"a"},{"id":"b"},{"id":"c"}]}`)
	require.Equal(t, []string{"a", "b", "c"}, QuestionOrder(def, 99))

	def.Randomize = true
	require.Equal(t, Shuffle([]string{"a", "b", "c"}, 99), QuestionOrder(def, 99))
}

func TestSeedFunc(t *testing.T) {
	var source SeedSource = SeedFunc(func() (int64, error) { return 11, nil })
	seed, err := source.NextSeed()
	require.NoError(t, err)
	require.Equal(t, int64(11), seed)

	_, err = CryptoSeedSource{}.NextSeed()
	require.NoError(t, err)
}
