package neon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"neon-assistant-be/pkg/llm"
)

// SQLRunner executes the execute_sql_query tool against a user database.
// Declared here so the executor does not depend on the pgx-backed runner.
type SQLRunner interface {
	Run(ctx context.Context, databaseURL, request string, history []llm.Message) (map[string]any, error)
}

// Executor dispatches a tool call chosen by the model to the matching Neon
// API operation.
type Executor struct {
	client *Client
	sql    SQLRunner
}

func NewExecutor(client *Client, sql SQLRunner) *Executor {
	return &Executor{
		client: client,
		sql:    sql,
	}
}

type toolArgs struct {
	// project tools
	Name                  *string `json:"name"`
	RegionId              *string `json:"region_id"`
	PgVersion             *string `json:"pg_version"`
	AutoscalingLimitMinCu *int    `json:"autoscaling_limit_min_cu"`
	AutoscalingLimitMaxCu *int    `json:"autoscaling_limit_max_cu"`
	ProjectId             string  `json:"project_id"`

	// branch / connection tools
	BranchId     string  `json:"branch_id"`
	ParentId     *string `json:"parent_id"`
	EndpointType *string `json:"endpoint_type"`
	EndpointId   *string `json:"endpoint_id"`
	DatabaseName string  `json:"database_name"`
	RoleName     string  `json:"role_name"`
	Pooled       *bool   `json:"pooled"`

	// execute_sql_query
	DatabaseURL string `json:"database_url"`
	SqlQuery    string `json:"sql_query"`
}

// Execute runs the named tool with the raw JSON arguments produced by the
// model. Neon API rejections come back as an error payload so the summarizer
// can explain them to the user; transport failures are returned as errors.
func (e *Executor) Execute(ctx context.Context, apiKey, name, rawArgs string, history []llm.Message) (map[string]any, error) {
	var args toolArgs
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return nil, fmt.Errorf("parse tool arguments for %s: %w", name, err)
		}
	}

	result, err := e.dispatch(ctx, apiKey, name, args, history)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return map[string]any{
				"error": fmt.Sprintf("HTTPError: status %d: %s", apiErr.StatusCode, apiErr.Body),
			}, nil
		}
		return nil, err
	}
	return result, nil
}

func (e *Executor) dispatch(ctx context.Context, apiKey, name string, args toolArgs, history []llm.Message) (map[string]any, error) {
	switch name {
	case "create_project":
		return e.client.CreateProject(ctx, apiKey, CreateProjectParams{
			Name:                  args.Name,
			RegionId:              args.RegionId,
			PgVersion:             args.PgVersion,
			AutoscalingLimitMinCu: args.AutoscalingLimitMinCu,
			AutoscalingLimitMaxCu: args.AutoscalingLimitMaxCu,
		})
	case "list_projects":
		return e.client.ListProjects(ctx, apiKey)
	case "get_project":
		return e.client.GetProject(ctx, apiKey, args.ProjectId)
	case "delete_project":
		return e.client.DeleteProject(ctx, apiKey, args.ProjectId)
	case "get_connection_uri":
		var branchId *string
		if args.BranchId != "" {
			branchId = &args.BranchId
		}
		return e.client.GetConnectionURI(ctx, apiKey, ConnectionURIParams{
			ProjectId:    args.ProjectId,
			DatabaseName: args.DatabaseName,
			RoleName:     args.RoleName,
			BranchId:     branchId,
			EndpointId:   args.EndpointId,
			Pooled:       args.Pooled,
		})
	case "create_project_branch":
		return e.client.CreateBranch(ctx, apiKey, args.ProjectId, CreateBranchParams{
			ParentId:     args.ParentId,
			Name:         args.Name,
			EndpointType: args.EndpointType,
		})
	case "list_project_branches":
		return e.client.ListBranches(ctx, apiKey, args.ProjectId)
	case "get_project_branch":
		return e.client.GetBranch(ctx, apiKey, args.ProjectId, args.BranchId)
	case "update_project_branch":
		return e.client.UpdateBranch(ctx, apiKey, args.ProjectId, args.BranchId, args.Name)
	case "delete_project_branch":
		return e.client.DeleteBranch(ctx, apiKey, args.ProjectId, args.BranchId)
	case "get_current_user_info":
		return e.client.CurrentUser(ctx, apiKey)
	case "execute_sql_query":
		if e.sql == nil {
			return map[string]any{"error": "SQL execution is not configured"}, nil
		}
		return e.sql.Run(ctx, args.DatabaseURL, args.SqlQuery, history)
	default:
		// The model sees the problem as data and can recover in conversation.
		return map[string]any{"error": "Unknown function call"}, nil
	}
}
