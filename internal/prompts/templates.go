package prompts

import (
	"fmt"
	"strings"
)

// Catalog holds the prompt templates used to build system-role content for
// model calls. Everything here is pure string formatting; the same input
// always produces the same output.
type Catalog struct {
	specialFacts []string
}

// Option customises a Catalog.
type Option func(*Catalog)

// WithSpecialFacts replaces the built-in special-knowledge fact list. The
// facts are product content, swappable without code changes.
func WithSpecialFacts(facts []string) Option {
	return func(c *Catalog) {
		cleaned := make([]string, 0, len(facts))
		for _, fact := range facts {
			fact = strings.TrimSpace(fact)
			if fact == "" {
				continue
			}
			cleaned = append(cleaned, fact)
		}
		if len(cleaned) > 0 {
			c.specialFacts = cleaned
		}
	}
}

// NewCatalog builds the template catalog.
func NewCatalog(opts ...Option) *Catalog {
	c := &Catalog{specialFacts: defaultSpecialFacts}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const customerServicePrompt = `You are our company's AI customer service representative.
Your role is to stay professional, friendly and helpful while providing accurate information.

Key guidelines:
- Keep answers concise but complete
- Do not go beyond your knowledge
- Show empathy for customer concerns
- Maintain a professional tone
- If you are unsure about something, say so honestly and suggest a handoff to a human agent

Company voice:
- Professional but approachable
- Solution oriented
- Patient and understanding of customer needs

If you would need specific product information or company policy that is not
available to you, say so and offer to connect the customer with a human agent
who can provide accurate information.`

var defaultSpecialFacts = []string{
	"The Lighthouse subscription includes priority support on weekdays.",
	"Refunds are processed within 5 business days of approval.",
	"The loyalty program awards one point per dollar spent.",
	"Enterprise plans include a dedicated account manager.",
	"Hardware warranty claims require the original order number.",
}

// CustomerService returns the default persona used when no retrieved
// knowledge overrides it.
func (c *Catalog) CustomerService() string {
	return customerServicePrompt
}

// KnowledgeBase interpolates retrieved passages into the knowledge-augmented
// persona. It overrides the default persona for a single model call.
func (c *Catalog) KnowledgeBase(context string) string {
	return fmt.Sprintf(`You are an AI customer service representative.
Use the following knowledge base information to help answer the user's question:

%s

If the provided information does not fully answer the user's question, say so
and offer to look up more information or hand off to a human agent.`, context)
}

// SpecialKnowledge builds the trivia-style persona answering only from the
// configured fact list.
func (c *Catalog) SpecialKnowledge() string {
	var b strings.Builder
	b.WriteString("You are an assistant that answers questions based only on the following knowledge:\n")
	for _, fact := range c.specialFacts {
		b.WriteString("- ")
		b.WriteString(fact)
		b.WriteString("\n")
	}
	b.WriteString("\nAnswer questions using the knowledge above. If the question is unrelated, reply \"I only have information about these specific topics.\"")
	return b.String()
}

// Followup keeps the model anchored to prior turns.
func (c *Catalog) Followup() string {
	return `Provide a helpful response based on the conversation history and the user's last message.
Remember to keep context continuity and refer to relevant information from earlier in the conversation.`
}

// Escalation precedes a suggested transfer to a human agent.
func (c *Catalog) Escalation() string {
	return `I notice this issue may need assistance from a human agent.
I will provide a helpful response first, while suggesting a handoff where appropriate.`
}

// ErrorResponse formats the user-facing apology persisted as the assistant
// turn when response generation fails.
func (c *Catalog) ErrorResponse(detail string) string {
	return fmt.Sprintf(`I'm very sorry, we ran into a problem while handling your request.
Let me connect you with a human agent who can assist you further.

Technical detail: %s

Would you like me to transfer you to a human agent right away?`, detail)
}

// Handoff is the scripted escalation message.
func (c *Catalog) Handoff() string {
	return `I need to transfer you to a human agent for more specialised assistance.
They can see our conversation so far and will help you from here.
Please hold while I connect you with an available agent.`
}
