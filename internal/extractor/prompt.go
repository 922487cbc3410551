package extractor

import "fmt"

const systemPrompt = `You are a memory extraction system. You read conversation transcripts and extract discrete, durable facts about the user.

## Fact types
- preference: likes, dislikes, and choices ("User prefers TypeScript over JavaScript")
- fact: concrete statements about the user or their world ("User works at a fintech startup")
- decision: choices the user has committed to ("User decided to migrate the API to gRPC")
- context: situational background ("User is preparing a conference talk for next month")
- goal: aims and plans ("User wants to ship the mobile app by Q3")
- skill: abilities and expertise ("User is experienced with Kubernetes operators")

## Guidelines
- Extract only durable information worth remembering across sessions.
- Each fact must stand alone without the transcript.
- Write facts in third person ("User ...").
- Assign a confidence between 0 and 1 reflecting how directly the transcript supports the fact.
- Skip small talk, transient state, and anything speculative.
- Do not repeat the same fact with different wording.`

const userPromptTemplate = `Extract up to %d facts from the following text.

Respond with strict JSON only, in this shape:
{"facts": [{"type": "preference", "content": "...", "confidence": 0.9}], "summary": "one sentence summary"}

Text:
%s`

func buildUserPrompt(text string, maxFacts int) string {
	return fmt.Sprintf(userPromptTemplate, maxFacts, text)
}
