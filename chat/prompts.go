package chat

import "github.com/tmc/langchaingo/prompts"

const defaultSystemPrompt = `You are a helpful assistant that answers questions using only the provided context.
If the context does not contain the answer, say that you don't know. Do not make up information.`

const defaultUserTemplate = `Use the following pieces of context to answer the question at the end.

{{.context}}

Question: {{.question}}
Helpful answer:`

const condenseTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
{{.chat_history}}
Follow Up Input: {{.question}}
Standalone question:`

// Prompts bundles the templates driving one conversation step: the system
// prompt, the user template combining retrieved context with the question,
// and the condensation template deriving a standalone question from history.
type Prompts struct {
	System   string
	User     prompts.PromptTemplate
	Condense prompts.PromptTemplate
}

// DefaultPrompts returns the built-in prompt set.
func DefaultPrompts() Prompts {
	return Prompts{
		System:   defaultSystemPrompt,
		User:     prompts.NewPromptTemplate(defaultUserTemplate, []string{"context", "question"}),
		Condense: prompts.NewPromptTemplate(condenseTemplate, []string{"chat_history", "question"}),
	}
}
