package assessment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAnswers(t *testing.T) {
	def := mustDefinition(t, mixedDefinition)

	answers, err := ParseAnswers([]byte(`{
		"q1": 1,
		"q2": null,
		"c1": {"languageId": 71, "sourceCode": "print(input())"}
	}`), def)
	require.NoError(t, err)
	require.Len(t, answers, 2)

	mcq, ok := answers.MCQ("q1")
	require.True(t, ok)
	require.Equal(t, 1, mcq.Index)

	_, ok = answers.MCQ("q2")
	require.False(t, ok)

	code, ok := answers.Code("c1")
	require.True(t, ok)
	require.Equal(t, 71, code.LanguageID)
	require.True(t, code.Submitted())
}

func TestParseAnswersAcceptsLegacyCodeKey(t *testing.T) {
	def := mustDefinition(t, mixedDefinition)

	answers, err := ParseAnswers([]byte(`{"c1":{"languageId":71,"code":"x = 1"}}`), def)
	require.NoError(t, err)

	code, ok := answers.Code("c1")
	require.True(t, ok)
	require.Equal(t, "x = 1", code.SourceCode)
}

func TestParseAnswersRejectsMismatches(t *testing.T) {
	def := mustDefinition(t, mixedDefinition)

	cases := map[string]string{
		"unknown question": `{"zz": 1}`,
		"mcq as object":    `{"q1": {"index": 1}}`,
		"mcq as string":    `{"q1": "1"}`,
		"code as number":   `{"c1": 3}`,
		"bad language":     `{"c1": {"languageId": "py", "sourceCode": "x"}}`,
		"not an object":    `[1, 2]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAnswers([]byte(raw), def)
			require.ErrorIs(t, err, ErrInvalidAnswers)
		})
	}
}

func TestParseAnswersEmpty(t *testing.T) {
	def := mustDefinition(t, mixedDefinition)

	answers, err := ParseAnswers(nil, def)
	require.NoError(t, err)
	require.Empty(t, answers)
}

func TestAnswersMarshalRoundTrip(t *testing.T) {
	def := mustDefinition(t, mixedDefinition)
	answers := Answers{
		"q1": McqAnswer{Index: 0},
		"c1": CodeAnswer{LanguageID: 71, SourceCode: "pass"},
	}

	payload, err := answers.MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `{"c1":{"languageId":71,"sourceCode":"pass"},"q1":0}`, string(payload))

	parsed, err := ParseAnswers(payload, def)
	require.NoError(t, err)
	require.Equal(t, answers, parsed)
}

func TestCodeAnswerSubmitted(t *testing.T) {
	require.False(t, CodeAnswer{LanguageID: 0, SourceCode: "x"}.Submitted())
	require.False(t, CodeAnswer{LanguageID: 71, SourceCode: "   \n"}.Submitted())
	require.True(t, CodeAnswer{LanguageID: 71, SourceCode: "x"}.Submitted())
}
