package ai

import "fmt"

// ExtractionFailureToken is what the extraction prompt asks the model to
// answer when either endpoint is missing.
const ExtractionFailureToken = "error"

const extractionSystemPrompt = "You are an assistant that extracts information and responds in JSON format."

const narrationSystemPrompt = "You are a geography assistant, who is good at organising. " +
	"Your job is to compose an instruction article."

// buildExtractionPrompt embeds the user's query in the extraction template.
func buildExtractionPrompt(question string) string {
	return fmt.Sprintf(`從以下問句中提取起點、終點，以及偏好：省錢(最便宜)，或省時間(最快)，或是無偏好。
若能順利提取起點、終點，就以下 json 格式回應：
{
  "origin": (中文地名),
  "destination": (中文地名),
  "preference": ("省錢" or "省時間" or "無")
}
如果找不到起點、或是找不到終點，就回應："%s"

問句：%s
`, ExtractionFailureToken, question)
}

// buildNarrationPrompt embeds the intent-plus-itinerary payload in the article template.
func buildNarrationPrompt(payload string) string {
	return fmt.Sprintf(`Read the information below, then write an instruction article in traditional Chinese colloquially.
Notice:
- You are an enthusiastic tour guide. You are talking to only one person.
- Time is represented by second now. Convert all the time representations into minute, hour, or day.
- Format date as "month/day hour:minute". Don't show year. E.g. 06/20 23:04.
- Don't show longitude nor latitude.
- For each traveling section, organize a paragraph.
- Label the sections with numbers.
- Don't use markdown syntax.
- MRT is 捷運.
- Start the article with greeting, fare, overall traveling time, departing and arrival time. Continue with 交通資訊.

json text:
%s
`, payload)
}
