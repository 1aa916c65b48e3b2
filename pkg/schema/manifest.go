package schema

// Default returns a registry populated with the builtin tool manifest.
// The vocabulary is fixed; there is no runtime plugin registration.
func Default() *Registry {
	r := NewRegistry()
	for _, spec := range builtinManifest() {
		// Specs below are static and known-valid; Register only fails on
		// a malformed spec.
		if err := r.Register(spec); err != nil {
			panic(err)
		}
	}
	return r
}

func builtinManifest() []Spec {
	return []Spec{
		{
			Name:        "read_file",
			Description: "Read and view the contents of a file",
			Params: []ParamSpec{
				{Name: "path", Description: "File path to read", Required: true, Kind: ParamScalar, Path: true},
			},
			Risk:     RiskLow,
			Category: CategoryRead,
		},
		{
			Name:        "write_to_file",
			Description: "Write content to a file",
			Params: []ParamSpec{
				{Name: "path", Description: "File path to write", Required: true, Kind: ParamScalar, Path: true},
				{Name: "content", Description: "Content to write", Required: true, Kind: ParamScalar},
				{Name: "line_count", Description: "Expected line count", Required: true, Kind: ParamScalar},
			},
			Risk:             RiskHigh,
			RequiresApproval: true,
			Category:         CategoryWrite,
		},
		{
			Name:        "list_files",
			Description: "List files and directories in a directory",
			Params: []ParamSpec{
				{Name: "path", Description: "Directory path to list", Required: true, Kind: ParamScalar, Path: true},
				{Name: "recursive", Description: "Whether to list recursively", Kind: ParamScalar, AllowedValues: []string{"true", "false"}},
			},
			Risk:     RiskLow,
			Category: CategoryRead,
		},
		{
			Name:        "search_files",
			Description: "Search for text patterns within files using regex",
			Params: []ParamSpec{
				{Name: "path", Description: "Directory to search", Required: true, Kind: ParamScalar, Path: true},
				{Name: "regex", Description: "Regex pattern to search", Required: true, Kind: ParamScalar},
				{Name: "file_pattern", Description: "File pattern filter", Kind: ParamScalar},
			},
			Risk:     RiskLow,
			Category: CategoryRead,
		},
		{
			Name:        "execute_command",
			Description: "Execute a command in the terminal",
			Params: []ParamSpec{
				{Name: "command", Description: "Command to execute", Required: true, Kind: ParamScalar},
			},
			Risk:             RiskHigh,
			RequiresApproval: true,
			Category:         CategoryCommand,
		},
		{
			Name:        "search_and_replace",
			Description: "Find and replace text in a file",
			Params: []ParamSpec{
				{Name: "path", Description: "File path", Required: true, Kind: ParamScalar, Path: true},
				{Name: "search", Description: "Text to search for", Required: true, Kind: ParamScalar},
				{Name: "replace", Description: "Replacement text", Required: true, Kind: ParamScalar},
			},
			Risk:             RiskMedium,
			RequiresApproval: true,
			Category:         CategoryWrite,
		},
		{
			Name:        "insert_content",
			Description: "Insert content at a specific line in a file",
			Params: []ParamSpec{
				{Name: "path", Description: "File path", Required: true, Kind: ParamScalar, Path: true},
				{Name: "line_number", Description: "Line number to insert at", Required: true, Kind: ParamScalar},
				{Name: "content", Description: "Content to insert", Required: true, Kind: ParamScalar},
			},
			Risk:             RiskMedium,
			RequiresApproval: true,
			Category:         CategoryWrite,
		},
		{
			Name:        "list_code_definition_names",
			Description: "Get an overview of code definitions in a source file",
			Params: []ParamSpec{
				{Name: "path", Description: "Source file path", Required: true, Kind: ParamScalar, Path: true},
			},
			Risk:     RiskLow,
			Category: CategoryRead,
		},
		{
			Name:        "attempt_completion",
			Description: "Signal that a task has been completed",
			Params: []ParamSpec{
				{Name: "result", Description: "Description of what was accomplished", Required: true, Kind: ParamScalar},
			},
			Risk:     RiskLow,
			Category: CategoryWorkflow,
		},
		{
			Name:        "ask_followup_question",
			Description: "Ask the user a follow-up question for clarification",
			Params: []ParamSpec{
				{Name: "question", Description: "Question to ask", Required: true, Kind: ParamScalar},
			},
			Risk:     RiskLow,
			Category: CategoryWorkflow,
		},
		{
			Name:        "update_todo_list",
			Description: "Create or update a todo list to track progress",
			Params: []ParamSpec{
				{Name: "todos", Description: "Todo list in markdown format", Required: true, Kind: ParamScalar},
			},
			Risk:     RiskLow,
			Category: CategoryWorkflow,
		},
	}
}
