package envy

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func RegisterResolveEnvTool() mcp.Tool {
	return mcp.NewTool("resolve_env",
		mcp.WithDescription(resolveEnvDescription()),
		mcp.WithString("directory",
			mcp.Required(),
			mcp.Description("Absolute path of the directory to resolve (e.g., '/home/me/projects/api')"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Optional timeout in seconds for running allowed .envrc files (default: 30)"),
		),
	)
}

func RegisterFindVariableTool() mcp.Tool {
	return mcp.NewTool("find_variable",
		mcp.WithDescription("Look up the value a single environment variable would have in a directory after envy applies its rules."),
		mcp.WithString("directory",
			mcp.Required(),
			mcp.Description("Absolute path of the directory to resolve"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Variable name, case-sensitive (e.g., 'DATABASE_URL')"),
		),
	)
}

func RegisterListAllowedTool() mcp.Tool {
	return mcp.NewTool("list_allowed",
		mcp.WithDescription("List the env files the user has allowed and the directory pattern rules, in precedence order."),
	)
}

func resolveEnvDescription() string {
	desc := "Resolve the environment variables envy would export for a directory.\n\n"
	desc += "Sources, lowest precedence first:\n"
	desc += "- The first pattern rule whose regular expression matches the directory\n"
	desc += "- Each allowed env file located in the directory or one of its ancestors, in the order it was allowed\n\n"
	desc += "Allowed .envrc files are executed in a bash sandbox; only variables they add or change are reported.\n"
	desc += "The result is a JSON object of variable names to values. Nothing is allowed or denied by this tool."
	return desc
}
