package ai

import "fmt"

const (
	generateSystem = "You are a helpful assistant that outputs only valid JSON."
	analyzeSystem  = "You are a helpful cybersecurity coach."
)

func generatePrompt(templateType, senderName, scenario string) string {
	return fmt.Sprintf(`You are a cybersecurity expert creating EDUCATIONAL training materials.
Write a SIMULATED phishing email example for a security awareness training session.

Parameters:
- Type: %s
- Sender: %s
- Scenario: %s

The goal is to teach employees how to spot attacks. Make it realistic but safe.

Output ONLY a valid JSON object with:
- subject: Email subject
- body: Email body (HTML format).

CRITICAL:
1. Use actual HTML <a> tags for any links or buttons.
2. Example: <a href="http://example.com">Click Here</a> or <button>Verify Now</button>.
3. Do NOT use plain text like "[Link]" or "http://..." without an anchor tag.
4. Make the call-to-action prominent.

Do not include any explanation or markdown code blocks (like `+"```json ... ```"+`). Just the raw JSON string.`,
		templateType, senderName, scenario)
}

func analyzePrompt(subject, body string) string {
	return fmt.Sprintf(`You are a cybersecurity expert. Analyze this phishing email and explain to a non-technical employee
WHY it is suspicious.

Subject: %s
Body: %s

Provide a concise list of 3-4 "Red Flags" or learning points.

Output ONLY a valid JSON object with a key 'analysis' containing a list of strings.
Example: { "analysis": ["Urgency in the subject line", "Generic greeting used", "Suspicious link domain"] }`,
		subject, body)
}
