package llm

import "github.com/tmc/langchaingo/llms"

// contextualizeSystemPrompt rewrites a follow-up question into a
// standalone one. The model must never answer at this stage.
const contextualizeSystemPrompt = `Given a chat history and the latest user question ` +
	`which might reference context in the chat history, formulate a standalone question ` +
	`which can be understood without the chat history. Do NOT answer the question, ` +
	`just reformulate it if needed and otherwise return it as is.`

// answerSystemPrompt grounds the answer in the retrieved fragments and
// demands bracketed source indices after each sentence.
const answerSystemPrompt = `Use the following pieces of context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.
Use three sentences maximum and keep the answer as concise as possible.
Each piece of context starts with its source index in square brackets.
After each sentence of your answer, append the bracketed index of the source that supports it.
Answer only from the provided context.

%s`

// CitedAnswerToolName is the function the completion is forced to call so
// the output stays machine-parseable.
const CitedAnswerToolName = "cited_answer"

var citedAnswerTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        CitedAnswerToolName,
		Description: "Record the grounded answer and the source indices that justify it.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer": map[string]any{
					"type":        "string",
					"description": "The answer to the question, at most three sentences.",
				},
				"citations": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "integer"},
					"description": "Indices of the context pieces that support the answer.",
				},
			},
			"required": []string{"answer", "citations"},
		},
	},
}
