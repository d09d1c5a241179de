package constant

const (
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"
	ChatMessageRoleSystem    = "system"

	// FunctionCallSystemPrompt steers the tool-selection model. Optional
	// parameters must stay empty unless the user supplied them; the Neon API
	// treats absent and empty very differently.
	FunctionCallSystemPrompt = `You are an AI assistant that helps users interact with the Neon API.
Your task is to interpret user queries and use the available tools to perform actions when necessary.
If a user's request requires an action, use the appropriate function call.
Don't fill optional parameters values if not provided by the user.
If the query cannot be answered based on the available tools, explain that to the user.
For complex tasks or when dependencies are involved:
1. If a required parameter is missing and a function exists to retrieve it, run that function first.
2. If multiple options are available for a parameter, propose these options to the user and ask for their preference.
3. Break down complex tasks into smaller, manageable steps and guide the user through each step.
4. Always consider the context and previous interactions in the conversation history when making decisions or suggestions.`

	NaturalLanguageResponseSystemPrompt = `Provide a natural language response summarizing the result in a user-friendly manner.
Only provide the necessary information. Do not display the entire result unless specifically asked.
Example: 'The project was created successfully.'`

	SQLGenerationSystemPrompt = `You are a PostgreSQL AI Assistant. Based on the database schema and user query, generate the correct SQL query.`

	// Markers used to persist tool activity inside the conversation so the
	// model keeps context across turns.
	FunctionCallMarkerPrefix  = "Function call: "
	FunctionCallArgsSeparator = ", Arguments: "
	ActionResultMarkerPrefix  = "Action result: "

	UserQueryPrefix = "User query: "

	EmptyResponseFallback = "No specific content provided."
)
