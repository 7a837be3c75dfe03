// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/rigchat/internal/config"
)

// HandleConfig handles "rigchat config". It does not build a client, so it
// still works when the config file is invalid (except for show and get).
func HandleConfig(args Args) int {
	if err := RunConfig(args); err != nil {
		return Exit(os.Stderr, err, args)
	}
	return ExitSuccess
}

// RunConfig dispatches the config subcommands.
func RunConfig(args Args) error {
	p := NewArgParser(args.Raw, "force")
	path, err := configPath(args)
	if err != nil {
		return err
	}

	switch sub := p.Positional(0); sub {
	case "", "show":
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}
		return showConfig(cfg, path, args.JSON)

	case "path":
		if args.JSON {
			_, statErr := os.Stat(path)
			return NewJSONResponse("config path", map[string]any{
				"path":   path,
				"exists": statErr == nil,
			}).Write(os.Stdout)
		}
		fmt.Println(path)
		return nil

	case "init":
		if _, err := os.Stat(path); err == nil && !p.BoolFlag("force") {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
		if err := config.Save(config.Default(), path); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", SuccessStyle.Render("[OK]"), path)
		return nil

	case "get":
		key := p.Positional(1)
		if key == "" {
			return ErrMissingArgument("key", "rigchat config get chat.context_window")
		}
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}
		value, err := cfg.Get(key)
		if err != nil {
			return &ValidationError{Field: "key", Value: key, Reason: err.Error(), Example: "keys: " + strings.Join(config.Keys(), ", ")}
		}
		fmt.Println(value)
		return nil

	case "set":
		key, value := p.Positional(1), p.Joined(2)
		if key == "" || p.PositionalCount() < 3 {
			return ErrMissingArgument("key and value", "rigchat config set chat.default_model llama3")
		}
		return setConfigValue(path, key, value)

	default:
		return ErrUnknownSubcommand("config", sub)
	}
}

func configPath(args Args) (string, error) {
	if args.ConfigFile != "" {
		return args.ConfigFile, nil
	}
	return config.Path()
}

func loadConfig(args Args) (*config.Config, error) {
	if args.ConfigFile != "" {
		return config.LoadFromPath(args.ConfigFile)
	}
	return config.Load()
}

// setConfigValue edits one key in the file at path. Environment overrides
// are not written back.
func setConfigValue(path, key, value string) error {
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if strings.HasSuffix(path, ".json") {
			err = config.LoadJSON(cfg, path)
		} else {
			err = config.LoadTOML(cfg, path)
		}
		if err != nil {
			return err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := cfg.Set(key, value); err != nil {
		return &ValidationError{Field: "key", Value: key, Reason: err.Error(), Example: "keys: " + strings.Join(config.Keys(), ", ")}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Printf("%s %s = %s\n", SuccessStyle.Render("[OK]"), key, value)
	return nil
}

func showConfig(cfg *config.Config, path string, jsonMode bool) error {
	if jsonMode {
		return NewJSONResponse("config show", map[string]any{
			"path":   path,
			"config": cfg,
		}).Write(os.Stdout)
	}

	fmt.Println(TitleStyle.Render("rigchat configuration"))
	fmt.Println(RenderSeparator())
	section := ""
	for _, key := range config.Keys() {
		name, field, _ := strings.Cut(key, ".")
		if name != section {
			section = name
			fmt.Printf("\n[%s]\n", section)
		}
		value, _ := cfg.Get(key)
		fmt.Printf("  %s%s\n", RenderLabel(field), ValueStyle.Render(fmt.Sprint(value)))
	}
	fmt.Println()
	fmt.Printf("%s %s\n", DimStyle.Render("Config file:"), path)
	return nil
}
