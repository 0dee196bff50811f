// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/atelier-dev/atelier/client"
	"github.com/atelier-dev/atelier/cmd/atelier/cli"
	"github.com/atelier-dev/atelier/protocol"
	"github.com/atelier-dev/atelier/runner"
)

func runCommand() *cli.Command {
	var (
		hubURL   string
		language string
	)
	return &cli.Command{
		Name:    "run",
		Summary: "execute a file on the hub",
		Usage:   "atelier run <file>",
		Description: "run sends a file to the hub's execution endpoint and prints the\n" +
			"result. The language is detected from the file extension unless\n" +
			"--language is given.",
		Examples: []cli.Example{
			{Description: "run a python file", Command: "atelier run main.py"},
			{Description: "force a language", Command: "atelier run script --language python"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flags.StringVar(&hubURL, "hub", defaultHubURL, "hub base URL")
			flags.StringVar(&language, "language", "", "language override (python, javascript, c, cpp, java)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("run takes exactly one file")
			}
			return runExecute(hubURL, args[0], language)
		},
	}
}

func runExecute(hubURL, path, language string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if language == "" {
		language = runner.DetectLanguage(path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	response, err := client.ExecuteCode(ctx, nil, hubURL, protocol.ExecuteRequest{
		Code:     string(code),
		Language: language,
	})
	if err != nil {
		return err
	}

	if response.Output != "" {
		fmt.Print(response.Output)
	}
	if response.Error != "" {
		fmt.Fprintln(os.Stderr, response.Error)
		return fmt.Errorf("execution failed")
	}
	return nil
}
