// Package classify decides whether an inbound group message deserves a reply.
//
// Classification is a pure function of the message text and the bot username;
// it holds no mutable state and is safe for concurrent use.
package classify

import (
	"regexp"
	"strings"
)

// Reason tags why a message was (or was not) selected for a reply.
type Reason string

const (
	ReasonMention  Reason = "mention"
	ReasonQuestion Reason = "question"
	ReasonTrigger  Reason = "trigger"
	ReasonNone     Reason = "none"
)

// Result is the outcome of classifying one message.
type Result struct {
	ShouldRespond bool
	IsPriority    bool
	Reason        Reason
}

var questionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\?$`),
	regexp.MustCompile(`^(what|when|where|why|how|which|who|can|could|would|should|is|are|am|do|does|did)\b`),
	regexp.MustCompile(`\b(anyone|somebody|help|assist|support)\b.*\?`),
	regexp.MustCompile(`\b(know|think|believe|understand)\b.*\?`),
}

var triggerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(admin|dev|moderator|mod|developer|maintainer)\b`),
	regexp.MustCompile(`\b(help|assist|support|guidance|advice)\b`),
	regexp.MustCompile(`\b(issue|bug|problem|error|broken|stuck|confused)\b`),
	regexp.MustCompile(`\b(question|query|unclear|don't understand|wtf)\b`),
	regexp.MustCompile(`\b(update|status|progress|news|info)\b`),
}

var greetingPattern = regexp.MustCompile(`(?i)^(hi|hello|hey|good morning|good afternoon|good evening|gm|gn)[\s.,!]*$`)

// Classifier matches messages against the mention, question and trigger rules
// for one bot username.
type Classifier struct {
	username string
	mention  *regexp.Regexp // "@bot" or "/command@bot"
	command  *regexp.Regexp // "/command@bot" tokens, stripped before "@bot"
	plain    *regexp.Regexp // bare "@bot" tokens
}

// New builds a Classifier for the given bot username (with or without "@").
func New(botUsername string) *Classifier {
	name := regexp.QuoteMeta(strings.TrimPrefix(strings.TrimSpace(botUsername), "@"))
	return &Classifier{
		username: strings.TrimPrefix(botUsername, "@"),
		mention:  regexp.MustCompile(`(?i)@` + name + `|/\w+@` + name),
		command:  regexp.MustCompile(`(?i)/\w+@` + name),
		plain:    regexp.MustCompile(`(?i)@` + name),
	}
}

// Username returns the bot username without the leading "@".
func (c *Classifier) Username() string { return c.username }

// Classify applies the rules in order: direct mention, question, trigger.
// IsPriority is set only by a direct mention.
func (c *Classifier) Classify(text string) Result {
	if c.IsMention(text) {
		return Result{ShouldRespond: true, IsPriority: true, Reason: ReasonMention}
	}

	lower := strings.ToLower(strings.TrimSpace(text))
	for _, re := range questionPatterns {
		if re.MatchString(lower) {
			return Result{ShouldRespond: true, Reason: ReasonQuestion}
		}
	}
	for _, re := range triggerPatterns {
		if re.MatchString(lower) {
			return Result{ShouldRespond: true, Reason: ReasonTrigger}
		}
	}
	return Result{Reason: ReasonNone}
}

// IsMention reports whether text addresses the bot directly.
func (c *Classifier) IsMention(text string) bool {
	return c.mention.MatchString(text)
}

// StripMentions removes "/command@bot" and "@bot" tokens and trims the result.
func (c *Classifier) StripMentions(text string) string {
	text = c.command.ReplaceAllString(text, "")
	text = c.plain.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// IsSettingsCommand reports whether text invokes the group settings command
// addressed to this bot.
func (c *Classifier) IsSettingsCommand(text string) bool {
	return strings.Contains(text, "/settings") && c.plain.MatchString(text)
}

// IsGreeting reports whether text is a bare greeting such as "gm" or "hello!".
func IsGreeting(text string) bool {
	return greetingPattern.MatchString(strings.TrimSpace(text))
}

// IsStartCommand reports whether text is the /start onboarding command,
// optionally carrying a deep-link payload.
func IsStartCommand(text string) bool {
	return text == "/start" || strings.HasPrefix(text, "/start ") || strings.HasPrefix(text, "/start@")
}

// ComplexityScore is the placeholder heuristic: message length plus a bonus
// for containing a question mark.
func ComplexityScore(text string) int {
	score := len(text)
	if strings.Contains(text, "?") {
		score += 200
	}
	return score
}
