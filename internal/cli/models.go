// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
)

// HandleModels handles "rigchat models".
func HandleModels(ctx context.Context, args Args) int {
	app, err := NewApp(args)
	if err != nil {
		return Exit(os.Stderr, err, args)
	}
	defer app.Close()

	if err := app.Models(ctx); err != nil {
		return app.Fail(err)
	}
	return ExitSuccess
}

// Models lists the models installed on the server, marking the default.
func (a *App) Models(ctx context.Context) error {
	models, err := a.Controller.FetchModelList(ctx)
	if err != nil {
		return err
	}

	if a.args.JSON {
		return NewJSONResponse("models", ModelsData{
			BaseURL: a.Client.BaseURL(),
			Default: a.Config.Chat.DefaultModel,
			Models:  models,
		}).Write(a.Out)
	}

	if len(models) == 0 {
		fmt.Fprintln(a.Out, DimStyle.Render("No models installed. Pull one with `ollama pull <model>`."))
		return nil
	}
	for _, m := range models {
		if m == a.Config.Chat.DefaultModel {
			fmt.Fprintf(a.Out, "%s %s\n", HighlightStyle.Render(m), DimStyle.Render("(default)"))
			continue
		}
		fmt.Fprintln(a.Out, m)
	}
	return nil
}
