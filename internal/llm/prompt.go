package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// NotInTranscriptReply is the fixed answer for questions the transcript cannot support.
const NotInTranscriptReply = "That isn't in the transcript."

// BuildAnalysisPrompt asks for the structured coaching analysis as JSON only.
func BuildAnalysisPrompt(lens Lens, transcript string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an %s for %s.\n", lens.Role, lens.Brand)
	fmt.Fprintf(&b, "Analyze the following %s.\n", lens.Subject)
	fmt.Fprintf(&b, "Use %s. Voice should be %s.\n", lens.Style, lens.Tone)
	if len(lens.Focus) > 0 {
		b.WriteString("\nPay attention to:\n")
		for _, f := range lens.Focus {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	b.WriteString("\nProvide output in valid JSON ONLY with the following keys:\n")
	b.WriteString(`- "summary": A concise 2-3 sentence summary of the conversation.` + "\n")
	b.WriteString(`- "topics": A list of main topics discussed.` + "\n")
	b.WriteString(`- "sentiment_score": An integer from 0 (negative) to 100 (positive) representing the overall sentiment.` + "\n")
	b.WriteString(`- "strengths": A list of strings detailing what went well.` + "\n")
	b.WriteString(`- "improvements": A list of strings detailing areas for improvement, missed questions, or decision friction.` + "\n")
	b.WriteString(`- "coaching_tips": A list of actionable advice.` + "\n")
	b.WriteString(`- "client_intent": An object with "occasion", "date_mentions" (list), "decision_timing" and "primary_motivation"; use "unknown" when not stated.` + "\n")
	b.WriteString(`- "consult_scorecard": An object with 0-10 integer ratings for: ` + quoteList(lens.Scorecard) + ".\n")
	b.WriteString(`- "conversion_risks": A list of objects with "label", "severity" ("low", "medium" or "high"), "evidence" (short quote or paraphrase) and "timestamp" (time string from the transcript or null).` + "\n")
	b.WriteString(`- "missed_questions": A list of missed questions. Use ONLY from: [` + quoteList(lens.MissedQuestions) + "].\n")
	b.WriteString(`- "recommended_micro_scripts": A list of objects with "moment" (situation or timestamp) and "script" (1-2 sentences).` + "\n")
	b.WriteString(`- "timeline": A list of objects with "timestamp" (e.g. "00:05:30" from the transcript), "type" (one of ` + quoteList(lens.TimelineTypes) + `) and "description".` + "\n")

	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)
	b.WriteString("\n")
	return b.String()
}

// BuildFixPrompt asks the model to repair a reply that did not decode as the expected JSON object.
func BuildFixPrompt(lens Lens, raw string) string {
	var b strings.Builder
	b.WriteString("You are a JSON repair tool. Return only one valid JSON object, no markdown.\n")
	b.WriteString("Required keys: summary, topics, sentiment_score, strengths, improvements, coaching_tips, client_intent, ")
	b.WriteString("consult_scorecard, conversion_risks, missed_questions, recommended_micro_scripts, timeline.\n")
	fmt.Fprintf(&b, "consult_scorecard keys: %s.\n", quoteList(lens.Scorecard))
	b.WriteString("\nFix this output:\n")
	b.WriteString(raw)
	b.WriteString("\n")
	return b.String()
}

// BuildChatPrompt grounds a chat turn on the transcript and the prior conversation.
func BuildChatPrompt(req ChatRequest) string {
	lens := req.Lens
	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s Coach for %s.\n", lens.Title, lens.Brand)
	fmt.Fprintf(&b, "Style: %s. Tone: %s.\n", lens.Style, lens.Tone)
	fmt.Fprintf(&b, "Answer ONLY from the transcript provided. If the answer is not in the transcript, say: %q\n", NotInTranscriptReply)
	b.WriteString("Keep replies concise and direct.\n\n")
	b.WriteString("Transcript:\n")
	b.WriteString(req.Transcript)
	b.WriteString("\n\nConversation so far:\n")
	b.WriteString(RenderConversation(req.History, req.Message))
	b.WriteString("\n\nCoach response:\n")
	return b.String()
}

// RenderConversation renders history as "User:"/"Coach:" lines and appends message
// unless it already is the last user line.
func RenderConversation(history []Turn, message string) string {
	lines := make([]string, 0, len(history)+1)
	lastUser := ""
	for _, turn := range history {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(turn.Role)) {
		case RoleUser:
			lines = append(lines, "User: "+content)
			lastUser = content
		case RoleCoach, "assistant":
			lines = append(lines, "Coach: "+content)
			lastUser = ""
		}
	}
	message = strings.TrimSpace(message)
	if message != "" && message != lastUser {
		lines = append(lines, "User: "+message)
	}
	return strings.Join(lines, "\n")
}

// HashPrompt returns the hex SHA-256 of a prompt, stored with analyses for traceability.
func HashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = `"` + it + `"`
	}
	return strings.Join(quoted, ", ")
}
