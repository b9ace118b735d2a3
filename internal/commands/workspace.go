package commands

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/danmuck/donuts/internal/command"
	"github.com/danmuck/donuts/internal/protocol/schema"
	"github.com/danmuck/donuts/internal/workspace"
)

// TerminalEnv names the variable the client reads a terminal id from.
const TerminalEnv = "TERM_ID"

func terminalArg() schema.Property {
	return schema.Prop("terminal", schema.String().WithDefault(schema.FromEnv(TerminalEnv), schema.FromPID()))
}

// Workspace returns the document, message and terminal commands bound to ws.
func Workspace(ws *workspace.Workspace) []command.Command {
	return []command.Command{
		{Name: "new-file", Args: schema.Null(), Handler: newFile(ws)},
		{
			Name:    "get-text",
			Args:    schema.Object([]schema.Property{schema.Prop("selected", schema.Bool())}),
			Handler: getText(ws),
		},
		{
			Name: "insert-text",
			Args: schema.Object([]schema.Property{
				schema.Prop("replace", schema.Bool()),
				schema.Prop("multiple", schema.Bool()),
			}),
			Handler: insertText(ws),
		},
		{
			Name: "show-message",
			Args: schema.Object([]schema.Property{
				schema.Prop("severity", schema.String(workspace.Severities()...)),
				schema.Prop("items", schema.Array(schema.String())),
				schema.Prop("message", schema.String()),
				schema.Prop("modal", schema.Bool()),
				schema.Prop("wait", schema.Bool()),
			}, "message"),
			Handler: showMessage(ws),
		},
		{
			Name: "register-terminal",
			Args: schema.Object([]schema.Property{
				terminalArg(),
				schema.Prop("name", schema.String()),
			}, "terminal", "name"),
			Handler: func(_ context.Context, args any, _ *command.Pipe) error {
				ws.RegisterTerminal(argString(args, "terminal"), argString(args, "name"))
				return nil
			},
		},
		{
			Name: "rename-terminal",
			Args: schema.Object([]schema.Property{
				terminalArg(),
				schema.Prop("name", schema.String()),
			}, "terminal", "name"),
			Handler: func(_ context.Context, args any, _ *command.Pipe) error {
				return ws.RenameTerminal(argString(args, "terminal"), argString(args, "name"))
			},
		},
		{
			Name:    "get-terminal-name",
			Args:    schema.Object([]schema.Property{terminalArg()}, "terminal"),
			Handler: getTerminalName(ws),
		},
	}
}

func newFile(ws *workspace.Workspace) command.Handler {
	return func(ctx context.Context, _ any, pipe *command.Pipe) error {
		doc := ws.NewDocument()
		for {
			data, err := pipe.In.Recv(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if err := doc.Append(data); err != nil {
				return err
			}
		}
		return doc.Flush(ctx)
	}
}

func getText(ws *workspace.Workspace) command.Handler {
	return func(ctx context.Context, args any, pipe *command.Pipe) error {
		doc, err := ws.Active()
		if err != nil {
			return err
		}
		if err := doc.Flush(ctx); err != nil {
			return err
		}
		text := doc.Text()
		if argBool(args, "selected") {
			text = strings.Join(doc.SelectedText(), "\n")
		}
		return pipe.Out.Send(text)
	}
}

func insertText(ws *workspace.Workspace) command.Handler {
	return func(ctx context.Context, args any, pipe *command.Pipe) error {
		doc, err := ws.Active()
		if err != nil {
			return err
		}
		text, err := pipe.In.ReadAll(ctx)
		if err != nil {
			return err
		}
		if err := doc.Insert(text, argBool(args, "replace"), argBool(args, "multiple")); err != nil {
			return err
		}
		return doc.Flush(ctx)
	}
}

func showMessage(ws *workspace.Workspace) command.Handler {
	return func(_ context.Context, args any, pipe *command.Pipe) error {
		msg := workspace.Message{
			Severity: workspace.Severity(argString(args, "severity")),
			Text:     argString(args, "message"),
			Items:    argStrings(args, "items"),
			Modal:    argBool(args, "modal"),
		}
		item, ok, err := ws.ShowMessage(msg, argBool(args, "wait"))
		if err != nil || !ok {
			return err
		}
		return pipe.Out.Send(item)
	}
}

func getTerminalName(ws *workspace.Workspace) command.Handler {
	return func(_ context.Context, args any, pipe *command.Pipe) error {
		name, err := ws.TerminalName(argString(args, "terminal"))
		if err != nil {
			return err
		}
		return pipe.Out.Send(name)
	}
}
