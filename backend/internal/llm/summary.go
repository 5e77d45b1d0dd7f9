package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Section headings the summary response must carry.
const (
	KeyPointsHeading    = "## 주요 포인트"
	ImplicationsHeading = "## 데이터의 의미"
)

// MaxImplicationWords caps the implications paragraph.
const MaxImplicationWords = 60

const summaryTemplate = `You will be given a set of data and asked to provide a summarized review of it. Your task is to analyze the data and present a concise summary based on a specific request.

Here is the data you will be working with:
<data>
%s
</data>

The user has requested a specific summary of this data. Here is their request:
<summary_request>
%s
</summary_request>

To complete this task, follow these steps:

1. Carefully read and analyze the provided data.
2. Focus on the aspects of the data that are relevant to the summary request.
3. Identify key trends, patterns, or insights that address the summary request.
4. Synthesize your findings into a concise summary.
5. If appropriate, include any notable statistics or figures that support your summary.

You MUST format your response EXACTLY as follows:

` + KeyPointsHeading + `
- Point 1: [First key point]
- Point 2: [Second key point]
- Point 3: [Third key point]

` + ImplicationsHeading + `
[Exactly 60 words or less about the social implications of this data. Include a note that this interpretation is not absolute and may not be totally accurate.]

Important reminders:
- Base your summary solely on the provided data. Do not introduce external information or make assumptions beyond what is presented in the data.
- Ensure your summary directly addresses the user's specific request.
- Be objective in your analysis and avoid personal opinions or speculations.
- If the data is insufficient to fully address the summary request, state this clearly in your response.
- There is no need for further analysis other than the ones written here
- You MUST follow the exact format specified above with the two sections and bullet points
- Do not add any additional sections or content beyond what is specified`

// Summary is a parsed summary response.
type Summary struct {
	KeyPoints    []string `json:"key_points" yaml:"key_points"`
	Implications string   `json:"implications" yaml:"implications"`
}

// SummaryPrompt fills the summary template with data and the request.
func SummaryPrompt(data, request string) string {
	return fmt.Sprintf(summaryTemplate, data, request)
}

var pointPrefix = regexp.MustCompile(`(?i)^point\s*\d+\s*:\s*`)

// ParseSummary extracts the key points and the implications paragraph from
// a response. Implications longer than MaxImplicationWords are truncated.
func ParseSummary(text string) (Summary, error) {
	kp := strings.Index(text, KeyPointsHeading)
	im := strings.Index(text, ImplicationsHeading)
	if kp < 0 {
		return Summary{}, fmt.Errorf("%w: missing %q", ErrMalformedSummary, KeyPointsHeading)
	}
	if im < 0 {
		return Summary{}, fmt.Errorf("%w: missing %q", ErrMalformedSummary, ImplicationsHeading)
	}
	if im < kp {
		return Summary{}, fmt.Errorf("%w: sections out of order", ErrMalformedSummary)
	}

	var s Summary
	for _, line := range strings.Split(text[kp+len(KeyPointsHeading):im], "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "*") {
			continue
		}
		point := strings.TrimSpace(line[1:])
		point = pointPrefix.ReplaceAllString(point, "")
		if point != "" {
			s.KeyPoints = append(s.KeyPoints, point)
		}
	}
	if len(s.KeyPoints) == 0 {
		return Summary{}, fmt.Errorf("%w: no key points", ErrMalformedSummary)
	}

	words := strings.Fields(text[im+len(ImplicationsHeading):])
	if len(words) == 0 {
		return Summary{}, fmt.Errorf("%w: empty implications", ErrMalformedSummary)
	}
	if len(words) > MaxImplicationWords {
		words = words[:MaxImplicationWords]
	}
	s.Implications = strings.Join(words, " ")
	return s, nil
}

// Summarize asks gen for a summary of data and parses it. The raw response
// is returned alongside, also when parsing fails.
func Summarize(ctx context.Context, gen Generator, data, request string) (Summary, string, error) {
	raw, err := gen.Generate(ctx, SummaryPrompt(data, request))
	if err != nil {
		return Summary{}, "", err
	}
	s, err := ParseSummary(raw)
	return s, raw, err
}
