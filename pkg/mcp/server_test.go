package mcp_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/bugflow/pkg/mcp"
	"github.com/Sumatoshi-tech/bugflow/pkg/observability"
	"github.com/Sumatoshi-tech/bugflow/pkg/render"
	"github.com/Sumatoshi-tech/bugflow/pkg/workflow"
)

func fixture(t *testing.T, name string) string {
	t.Helper()

	path, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)

	return path
}

// connect starts srv on an in-memory transport and returns a client session.
func connect(t *testing.T, srv *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()

		cancel()
		<-serverDone
	})

	return session
}

func callTool(t *testing.T, session *mcpsdk.ClientSession, name string, args map[string]any) *mcpsdk.CallToolResult {
	t.Helper()

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	return result
}

func text(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()

	content, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok, "first content is not text")

	return content.Text
}

func TestServer_ListTools(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(mcp.ServerDeps{})
	assert.Equal(t, []string{mcp.ToolNameSeries, mcp.ToolNameTimeline}, srv.ListToolNames())

	session := connect(t, srv)

	toolsResult, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, toolsResult.Tools, 2)

	for _, tool := range toolsResult.Tools {
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
	}
}

func TestServer_CallSeries(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{}))

	result := callTool(t, session, mcp.ToolNameSeries, map[string]any{
		"records_paths": []string{fixture(t, "records.jsonl")},
		"start_date":    "2022-01-01",
	})
	require.False(t, result.IsError, text(t, result))

	var doc render.Document
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &doc))

	assert.Equal(t, []string{"2022-01-02", "2022-01-03", "2022-01-05"}, doc.Dates)
	assert.Equal(t, []int{1, 1, 1}, doc.Counts[workflow.Resolved])
	assert.Equal(t, 3, doc.Stats.Records)
	assert.Nil(t, doc.Timelines)
}

func TestServer_CallSeries_IsolateFaults(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{}))

	paths := []string{fixture(t, "records.jsonl"), fixture(t, "faulty.jsonl")}

	result := callTool(t, session, mcp.ToolNameSeries, map[string]any{"records_paths": paths})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "unknown status")

	result = callTool(t, session, mcp.ToolNameSeries, map[string]any{
		"records_paths": paths,
		"fault_policy":  "isolate",
		"timelines":     true,
	})
	require.False(t, result.IsError, text(t, result))

	var doc render.Document
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &doc))
	require.Len(t, doc.Faults, 1)
	assert.Equal(t, int64(5), doc.Faults[0].RecordID)
	assert.Len(t, doc.Timelines, 2)
}

func TestServer_CallSeries_InvalidInput(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{}))

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"relative path", map[string]any{"records_paths": []string{"testdata/records.jsonl"}}, "absolute"},
		{"missing file", map[string]any{"records_paths": []string{fixture(t, "absent.jsonl")}}, "does not exist"},
		{"no paths", map[string]any{"records_paths": []string{}}, "required"},
		{"bad date", map[string]any{"records_paths": []string{fixture(t, "records.jsonl")}, "start_date": "01/02/2022"}, "start date"},
		{"bad policy", map[string]any{"records_paths": []string{fixture(t, "records.jsonl")}, "fault_policy": "retry"}, "fault policy"},
	}

	for _, tt := range tests {
		result := callTool(t, session, mcp.ToolNameSeries, tt.args)
		assert.True(t, result.IsError, tt.name)
		assert.Contains(t, text(t, result), tt.want, tt.name)
	}
}

func TestServer_CallTimeline(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{}))

	result := callTool(t, session, mcp.ToolNameTimeline, map[string]any{
		"records_paths": []string{fixture(t, "records.jsonl")},
		"record_id":     1,
	})
	require.False(t, result.IsError, text(t, result))

	var out mcp.TimelineOutput
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &out))

	assert.Equal(t, int64(1), out.RecordID)
	assert.Equal(t, workflow.Resolved, out.Final)
	require.Len(t, out.Transitions, 2)
	assert.Equal(t, workflow.Unconfirmed, out.Transitions[0].Stage)

	result = callTool(t, session, mcp.ToolNameTimeline, map[string]any{
		"records_paths": []string{fixture(t, "records.jsonl")},
		"record_id":     99,
	})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "record not found")
}

func TestServer_RecordsToolMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	tm, err := observability.NewToolMetrics(provider.Meter("test"))
	require.NoError(t, err)

	session := connect(t, mcp.NewServer(mcp.ServerDeps{Metrics: tm}))

	paths := []string{fixture(t, "records.jsonl"), fixture(t, "faulty.jsonl")}

	callTool(t, session, mcp.ToolNameSeries, map[string]any{"records_paths": []string{"relative.jsonl"}})
	callTool(t, session, mcp.ToolNameSeries, map[string]any{"records_paths": paths})
	callTool(t, session, mcp.ToolNameSeries, map[string]any{"records_paths": paths, "fault_policy": "isolate"})
	callTool(t, session, mcp.ToolNameTimeline, map[string]any{"records_paths": paths[:1], "record_id": 1})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	calls := make(map[string]int64)
	isolated := int64(0)

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}

			for _, dp := range sum.DataPoints {
				tool, _ := dp.Attributes.Value("tool")

				switch m.Name {
				case "bugflow.mcp.tool.calls.total":
					outcome, _ := dp.Attributes.Value("outcome")
					calls[tool.AsString()+"/"+outcome.AsString()] += dp.Value
				case "bugflow.mcp.tool.isolated_records.total":
					isolated += dp.Value
				}
			}
		}
	}

	assert.Equal(t, map[string]int64{
		"bugflow_series/rejected": 1,
		"bugflow_series/faulted":  1,
		"bugflow_series/isolated": 1,
		"bugflow_timeline/ok":     1,
	}, calls)
	assert.Equal(t, int64(1), isolated)
}
