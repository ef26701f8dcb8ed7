package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestContextValues(t *testing.T) {
	ctx := WithStage(WithBuildID(context.Background(), "b-1"), "render")
	require.Equal(t, LogContext{BuildID: "b-1", Stage: "render"}, GetContext(ctx))

	ctx = WithStage(ctx, "assets")
	require.Equal(t, "b-1", GetContext(ctx).BuildID)
	require.Equal(t, "assets", GetContext(ctx).Stage)
}

func TestEmptyContext(t *testing.T) {
	require.Equal(t, LogContext{}, GetContext(context.Background()))
}

func TestLogHelpersAttachAttributes(t *testing.T) {
	buf := captureLogs(t)
	ctx := WithStage(WithBuildID(context.Background(), "b-2"), "catalog")

	InfoContext(ctx, "pages found", slog.Int("count", 3))
	WarnContext(ctx, "careful")
	DebugContext(context.Background(), "bare")

	out := buf.String()
	require.Contains(t, out, "build_id=b-2")
	require.Contains(t, out, "stage=catalog")
	require.Contains(t, out, "count=3")
	require.Contains(t, out, "level=WARN")
	require.Contains(t, out, `msg=bare`)
}

func TestErrorContext(t *testing.T) {
	buf := captureLogs(t)
	ErrorContext(WithBuildID(context.Background(), "b-3"), "failed")
	require.Contains(t, buf.String(), "level=ERROR")
	require.Contains(t, buf.String(), "build_id=b-3")
}
