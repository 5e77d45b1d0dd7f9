package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wellFormed = `Here is the summary.

## 주요 포인트
- Point 1: 서울의 학생용 컴퓨터 비율이 가장 높다
- Point 2: 교사용 비율은 지역별 차이가 작다
* Point 3: 2023년 전체 보유량이 증가했다

## 데이터의 의미
디지털 격차가 줄어드는 추세로 보인다. 이 해석은 절대적이지 않으며 정확하지 않을 수 있다.
`

func TestParseSummary(t *testing.T) {
	s, err := ParseSummary(wellFormed)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"서울의 학생용 컴퓨터 비율이 가장 높다",
		"교사용 비율은 지역별 차이가 작다",
		"2023년 전체 보유량이 증가했다",
	}, s.KeyPoints)
	assert.True(t, strings.HasPrefix(s.Implications, "디지털 격차가"))
	assert.NotContains(t, s.Implications, "\n")
}

func TestParseSummaryCapsImplications(t *testing.T) {
	long := KeyPointsHeading + "\n- one\n" + ImplicationsHeading + "\n" + strings.Repeat("word ", 80)
	s, err := ParseSummary(long)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(s.Implications), MaxImplicationWords)
}

func TestParseSummaryRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"no key points":     ImplicationsHeading + "\ntext",
		"no implications":   KeyPointsHeading + "\n- a",
		"out of order":      ImplicationsHeading + "\ntext\n" + KeyPointsHeading + "\n- a",
		"empty bullets":     KeyPointsHeading + "\nnothing\n" + ImplicationsHeading + "\ntext",
		"empty implication": KeyPointsHeading + "\n- a\n" + ImplicationsHeading + "\n  ",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSummary(in)
			assert.ErrorIs(t, err, ErrMalformedSummary)
		})
	}
}

func TestSummaryPrompt(t *testing.T) {
	p := SummaryPrompt("school_code,x\n001,1", "지역별 차이")
	assert.Contains(t, p, "<data>\nschool_code,x\n001,1\n</data>")
	assert.Contains(t, p, "<summary_request>\n지역별 차이\n</summary_request>")
	assert.Contains(t, p, KeyPointsHeading)
	assert.Contains(t, p, ImplicationsHeading)
}

func TestSummarize(t *testing.T) {
	var got string
	gen := GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		got = prompt
		return wellFormed, nil
	})
	s, raw, err := Summarize(context.Background(), gen, "data", "request")
	require.NoError(t, err)
	assert.Equal(t, wellFormed, raw)
	assert.Len(t, s.KeyPoints, 3)
	assert.Contains(t, got, "<summary_request>\nrequest\n</summary_request>")

	boom := errors.New("boom")
	_, _, err = Summarize(context.Background(), GeneratorFunc(func(context.Context, string) (string, error) {
		return "", boom
	}), "d", "r")
	assert.ErrorIs(t, err, boom)
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), " ", DefaultOptions())
	assert.ErrorIs(t, err, ErrAPIKeyRequired)
}
