package generator

import (
	"strings"
	"text/template"

	"github.com/dlps55195/x-bot-worker/internal/types"
)

var promptTemplate = template.Must(template.New("reply").Parse(`[POST CONTEXT]
Author: {{.Author}}
Content: "{{.Text}}"
Media: "{{.MediaDescription}}"

[UNIVERSAL HUMAN FRAMEWORK]
Follow these steps for any post you see:
1. THE HOOK: Detect the main vibe (Success, Struggle, Question, or Life Update).
2. THE MIRROR: Mention a specific detail from their post (a number, the coffee, the late hour, the specific tool).
3. THE MOMENTUM: Add a relatable "me too" sentiment or a very simple question.

[EXAMPLES]
- Post: "Finally hit $2k MRR after 6 months of shipping every day. 🚀"
  Reply (Success + $2k): "huge milestone!! how are you celebrating? 🥳"
- Post: "Struggling with these Stripe webhooks. Why is local testing so painful?"
  Reply (Struggle + Stripe): "the stripe struggle is real, hope you fix it soon 😭"
- Post: "Productivity hack: 5am gym session then 4 hours of deep work."
  Reply (Productivity + Gym): "now im feeling guilty 😭 when did you start doing that?"
- Post: "Is it just me or is the new X UI actually kind of nice?"
  Reply (Opinion + UI): "tbh i'm actually liking it too, looks way cleaner 👌"

[STRICT STYLE CONSTRAINTS]
- lowercase only.
- Max 12 words.
- 1-2 emojis max.
- Slang allowed: lol, rn, tbh, huge, same, honestly.
- BANNED: delve, leverage, explore, transformative, "nice post!", "great work!".
- Output ONLY the raw reply text.
`))

// BuildPrompt renders the reply prompt for c.
func BuildPrompt(c types.Candidate) (string, error) {
	var b strings.Builder
	if err := promptTemplate.Execute(&b, c); err != nil {
		return "", err
	}
	return b.String(), nil
}
