package scorer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResponse(t *testing.T) {
	t.Run("numbers", func(t *testing.T) {
		resp, err := DecodeResponse([]byte(`{"result":{"7":"1"},"score":2,"scoretotal":3}`))
		require.NoError(t, err)
		assert.Equal(t, Mapping{Entries: []Entry{{Key: "7", Value: String("1")}}}, resp.Result)
		assert.Equal(t, 2.0, resp.Score)
		assert.Equal(t, 3.0, resp.ScoreTotal)
		assert.False(t, resp.Complete())
		assert.False(t, resp.Passed())
	})

	t.Run("numeric strings", func(t *testing.T) {
		resp, err := DecodeResponse([]byte(`{"result":"1","score":"3","scoretotal":" 3 "}`))
		require.NoError(t, err)
		assert.Equal(t, String("1"), resp.Result)
		assert.True(t, resp.Complete())
		assert.True(t, resp.Passed())
	})

	t.Run("missing fields", func(t *testing.T) {
		resp, err := DecodeResponse([]byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, Absent{}, resp.Result)
		assert.Equal(t, 0.0, resp.Score)
		assert.True(t, math.IsNaN(resp.ScoreTotal))
		assert.False(t, resp.Complete())
		assert.False(t, resp.Passed())
	})

	t.Run("zero total completes nothing but passes", func(t *testing.T) {
		resp, err := DecodeResponse([]byte(`{"score":0,"scoretotal":0}`))
		require.NoError(t, err)
		assert.False(t, resp.Complete())
		assert.True(t, resp.Passed())
	})

	t.Run("non-object body", func(t *testing.T) {
		resp, err := DecodeResponse([]byte(`[1]`))
		require.NoError(t, err)
		assert.Equal(t, Absent{}, resp.Result)
	})

	t.Run("garbage score", func(t *testing.T) {
		resp, err := DecodeResponse([]byte(`{"score":"n/a","scoretotal":"n/a"}`))
		require.NoError(t, err)
		assert.True(t, math.IsNaN(resp.Score))
		assert.False(t, resp.Passed())
	})

	t.Run("not json", func(t *testing.T) {
		_, err := DecodeResponse([]byte(`<html>login</html>`))
		assert.Error(t, err)
	})
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "3", FormatScore(3))
	assert.Equal(t, "2.5", FormatScore(2.5))
	assert.Equal(t, "?", FormatScore(math.NaN()))
}

func TestRequestForm(t *testing.T) {
	req := Request{QuizID: "9", SessionID: "s", Answers: []Answer{
		{QuestionID: "1", Token: "a"},
		{QuestionID: "2", Token: "b"},
	}}
	assert.Equal(t, "answer_1=a&answer_2=b&nid=9&sid=s", req.Form().Encode())
}

func TestResolveEndpoint(t *testing.T) {
	got, err := ResolveEndpoint("https://lms.example/course/quiz?q=old#top", "")
	require.NoError(t, err)
	assert.Equal(t, "https://lms.example/course/quiz?q=cvocp/ajax/submitquizanswer", got)

	got, err = ResolveEndpoint("", "https://other.example/submit")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example/submit", got)

	_, err = ResolveEndpoint("quiz.html", "")
	assert.Error(t, err)
}
