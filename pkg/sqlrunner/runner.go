package sqlrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"neon-assistant-be/internal/constant"
	"neon-assistant-be/pkg/llm"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Runner implements the execute_sql_query tool: it introspects the target
// database schema, has the model produce a concrete SQL statement through a
// forced tool call, and executes it with pgx.
type Runner struct {
	provider llm.LLMProvider
	model    string

	// connect is swappable for tests.
	connect func(ctx context.Context, url string) (conn, error)
}

// conn is the subset of pgx.Conn the runner uses.
type conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close(ctx context.Context) error
}

func NewRunner(provider llm.LLMProvider, model string) *Runner {
	return &Runner{
		provider: provider,
		model:    model,
		connect: func(ctx context.Context, url string) (conn, error) {
			return pgx.Connect(ctx, url)
		},
	}
}

const maxGenerationAttempts = 3

// Run resolves the user's request into a SQL statement and executes it
// against the database at databaseURL. The chat history travels along so the
// model can resolve references like "the table I just created".
func (r *Runner) Run(ctx context.Context, databaseURL, request string, history []llm.Message) (map[string]any, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("execute_sql_query: database_url is required")
	}

	c, err := r.connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	defer c.Close(ctx)

	schema, err := fetchSchema(ctx, c)
	if err != nil {
		return nil, err
	}

	sqlQuery, err := r.generateSQL(ctx, schema, request, history)
	if err != nil {
		return nil, err
	}

	result, err := executeQuery(ctx, c, sqlQuery)
	if err != nil {
		return nil, err
	}
	result["sql_query"] = sqlQuery
	return result, nil
}

func (r *Runner) generateSQL(ctx context.Context, schema []tableSchema, request string, history []llm.Message) (string, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}

	messages := []llm.Message{
		{Role: "system", Content: constant.SQLGenerationSystemPrompt},
		{Role: "user", Content: "Database schema: " + string(schemaJSON)},
		{Role: "user", Content: "User query: " + request},
	}
	messages = append(messages, history...)

	tools := []llm.Tool{{
		Name:        "execute_query",
		Description: "Execute a SQL query on a PostgreSQL database and return the result.",
		Strict:      true,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sql_query": map[string]any{
					"type":        "string",
					"description": "The SQL query to execute.",
				},
			},
			"required":             []string{"sql_query"},
			"additionalProperties": false,
		},
	}}

	for attempt := 0; attempt < maxGenerationAttempts; attempt++ {
		completion, err := r.provider.ChatWithTools(ctx, messages, tools, llm.WithModel(r.model))
		if err != nil {
			return "", fmt.Errorf("generate sql: %w", err)
		}
		if len(completion.ToolCalls) == 0 {
			continue
		}

		var args struct {
			SqlQuery string `json:"sql_query"`
		}
		if err := json.Unmarshal([]byte(completion.ToolCalls[0].Arguments), &args); err != nil {
			return "", fmt.Errorf("parse generated sql arguments: %w", err)
		}
		if args.SqlQuery != "" {
			return args.SqlQuery, nil
		}
	}

	return "", fmt.Errorf("model did not produce a sql query after %d attempts", maxGenerationAttempts)
}

// --- schema introspection ---

type columnSchema struct {
	ColumnName string `json:"column_name"`
	DataType   string `json:"data_type"`
	IsNullable string `json:"is_nullable"`
}

type tableSchema struct {
	TableName string         `json:"table_name"`
	Columns   []columnSchema `json:"columns"`
}

const schemaQuery = `
SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`

func fetchSchema(ctx context.Context, c conn) ([]tableSchema, error) {
	rows, err := c.Query(ctx, schemaQuery)
	if err != nil {
		return nil, fmt.Errorf("fetch database schema: %w", err)
	}
	defer rows.Close()

	var tables []tableSchema
	index := map[string]int{}
	for rows.Next() {
		var table string
		var col columnSchema
		if err := rows.Scan(&table, &col.ColumnName, &col.DataType, &col.IsNullable); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		i, ok := index[table]
		if !ok {
			i = len(tables)
			index[table] = i
			tables = append(tables, tableSchema{TableName: table})
		}
		tables[i].Columns = append(tables[i].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read schema rows: %w", err)
	}
	return tables, nil
}

// --- execution ---

func executeQuery(ctx context.Context, c conn, sqlQuery string) (map[string]any, error) {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(sqlQuery)), "select") {
		rows, err := c.Query(ctx, sqlQuery)
		if err != nil {
			return nil, fmt.Errorf("execute query: %w", err)
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		columns := make([]string, len(fields))
		for i, f := range fields {
			columns[i] = f.Name
		}

		var results []map[string]any
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return nil, fmt.Errorf("read row: %w", err)
			}
			row := make(map[string]any, len(columns))
			for i, col := range columns {
				row[col] = values[i]
			}
			results = append(results, row)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("read rows: %w", err)
		}

		return map[string]any{
			"columns": columns,
			"rows":    results,
		}, nil
	}

	tag, err := c.Exec(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("execute statement: %w", err)
	}
	return map[string]any{
		"rows_affected": tag.RowsAffected(),
	}, nil
}
