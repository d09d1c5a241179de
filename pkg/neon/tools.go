package neon

import "neon-assistant-be/pkg/llm"

// Tools returns the function definitions exposed to the model. Descriptions
// follow the Neon API reference wording so the model picks the right
// operation and parameter values.
func Tools() []llm.Tool {
	return []llm.Tool{
		{
			Name: "create_project",
			Description: "Creates a Neon project. A project is the top-level object in the Neon object hierarchy. " +
				"Plan limits define how many projects you can create; Neon's Free plan permits one project per account. " +
				"You can specify a region and Postgres version in the request body.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{
						"type":        "string",
						"description": "Project name.",
					},
					"region_id": map[string]any{
						"type":        "string",
						"description": "Region ID.",
						"enum": []string{
							"aws-us-east-1", "aws-us-east-2", "aws-us-west-1",
							"aws-eu-central-1", "aws-ap-southeast-1", "aws-ap-southeast-2",
						},
					},
					"pg_version": map[string]any{
						"type":        "string",
						"description": "Postgres version.",
						"enum":        []string{"14", "15", "16", "17"},
					},
					"autoscaling_limit_min_cu": map[string]any{
						"type":        "integer",
						"description": "Minimum number of compute units.",
					},
					"autoscaling_limit_max_cu": map[string]any{
						"type":        "integer",
						"description": "Maximum number of compute units.",
					},
				},
				"required":             []string{},
				"additionalProperties": false,
			},
		},
		{
			Name: "delete_project",
			Description: "Deletes the specified project. Deleting a project is a permanent action that also deletes " +
				"endpoints, branches, databases, and users that belong to the project.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"project_id": map[string]any{
						"type":        "string",
						"description": "The ID of the project to be deleted.",
					},
				},
				"required":             []string{"project_id"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "list_projects",
			Description: "Retrieves a list of projects for the Neon account.",
			Strict:      true,
			Parameters: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"required":             []string{},
				"additionalProperties": false,
			},
		},
		{
			Name: "get_project",
			Description: "Retrieves information about the specified project. " +
				"You can obtain a project_id by listing the projects for your Neon account.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"project_id": map[string]any{
						"type":        "string",
						"description": "The Neon project ID.",
					},
				},
				"required":             []string{"project_id"},
				"additionalProperties": false,
			},
		},
		{
			Name: "get_connection_uri",
			Description: "Retrieves a connection URI for the specified database. " +
				"You can obtain the database_name by listing the databases for a branch, and a role_name by listing the roles.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"project_id": map[string]any{
						"type":        "string",
						"description": "The Neon project ID.",
					},
					"branch_id": map[string]any{
						"type":        "string",
						"description": "The branch ID. Defaults to the project's default branch_id if not specified.",
					},
					"endpoint_id": map[string]any{
						"type":        "string",
						"description": "The endpoint ID. Defaults to the read-write endpoint associated with the branch_id if not specified.",
					},
					"database_name": map[string]any{
						"type":        "string",
						"description": "The database name.",
					},
					"role_name": map[string]any{
						"type":        "string",
						"description": "The role name.",
					},
					"pooled": map[string]any{
						"type":        "boolean",
						"description": "Adds the -pooler option to the connection URI when set to true, creating a pooled connection URI.",
					},
				},
				"required":             []string{"project_id", "database_name", "role_name"},
				"additionalProperties": false,
			},
		},
		{
			Name: "create_project_branch",
			Description: "Creates a branch in the specified project. The default behavior is to create a branch from " +
				"the project's default branch with no compute endpoint, with an auto-generated name. " +
				"There is a maximum of one read-write endpoint per branch.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"project_id": map[string]any{
						"type":        "string",
						"description": "The Neon project ID.",
					},
					"parent_id": map[string]any{
						"type":        "string",
						"description": "The parent branch ID.",
					},
					"name": map[string]any{
						"type":        "string",
						"description": "The branch name.",
					},
					"endpoint_type": map[string]any{
						"type":        "string",
						"description": "The endpoint type.",
						"enum":        []string{"read-write", "read-only"},
					},
				},
				"required":             []string{"project_id"},
				"additionalProperties": false,
			},
		},
		{
			Name: "list_project_branches",
			Description: "Retrieves a list of branches for the specified project. Each Neon project has a root branch " +
				"named main; a branch_id value has a br- prefix. A parent branch is identified by the parent_id value.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"project_id": map[string]any{
						"type":        "string",
						"description": "The Neon project ID.",
					},
				},
				"required":             []string{"project_id"},
				"additionalProperties": false,
			},
		},
		{
			Name: "get_project_branch",
			Description: "Retrieves information about the specified branch. " +
				"You can obtain a branch_id by listing the branches for a project.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"project_id": map[string]any{
						"type":        "string",
						"description": "The Neon project ID.",
					},
					"branch_id": map[string]any{
						"type":        "string",
						"description": "The branch ID.",
					},
				},
				"required":             []string{"project_id", "branch_id"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "delete_project_branch",
			Description: "Deletes the specified branch.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"project_id": map[string]any{
						"type":        "string",
						"description": "The Neon project ID.",
					},
					"branch_id": map[string]any{
						"type":        "string",
						"description": "The ID of the branch to delete.",
					},
				},
				"required":             []string{"project_id", "branch_id"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "update_project_branch",
			Description: "Updates the specified branch.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"project_id": map[string]any{
						"type":        "string",
						"description": "The Neon project ID.",
					},
					"branch_id": map[string]any{
						"type":        "string",
						"description": "The ID of the branch to update.",
					},
					"name": map[string]any{
						"type":        "string",
						"description": "The new name for the branch.",
					},
				},
				"required":             []string{"project_id", "branch_id"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "get_current_user_info",
			Description: "Retrieves information about the current Neon user account.",
			Parameters: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"required":             []string{},
				"additionalProperties": false,
			},
		},
		{
			Name: "execute_sql_query",
			Description: "Executes a SQL query on a PostgreSQL database reachable through the given connection URL " +
				"and returns the result. Use get_connection_uri first if the user has not provided a database URL.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"database_url": map[string]any{
						"type":        "string",
						"description": "The connection URL for the PostgreSQL database.",
					},
					"sql_query": map[string]any{
						"type":        "string",
						"description": "The SQL query to execute, or a natural-language description of it.",
					},
				},
				"required":             []string{"database_url", "sql_query"},
				"additionalProperties": false,
			},
		},
	}
}
