/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command upsdrvquery is a standalone tracked-query client for a driver's
// control socket (spec.md §2 "the driver-query IPC layer"). The original
// upsdrvquery.c has no standalone entrypoint: it is a library other driver
// binaries link against. This command exposes the same dialog (NOBROADCAST,
// then one correlated query) as an operator tool, useful for scripting and
// for exercising drvquery.Client outside a full driver process.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nutcore/upsched/console"
	"github.com/nutcore/upsched/drvquery"
	"github.com/nutcore/upsched/logger"
	loglvl "github.com/nutcore/upsched/logger/level"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		console.ColorPrint.Println(err.Error())
		os.Exit(1)
	}
}

type flags struct {
	socket     string
	verbosity  int
	hushed     bool
	timeoutSec int
	logLevel   string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:          "upsdrvquery <socket> <args...>",
		Short:        "Send one tracked query to a driver's control socket",
		Long:         "upsdrvquery opens a driver's control socket, disables broadcast fan-out for the duration of the dialog, and sends one correlated query (spec.md §4.6).",
		Args:         cobra.MinimumNArgs(2),
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, args []string) error {
			f.socket = args[0]
			return runQuery(f, args[1:])
		},
	}

	cmd.Flags().IntVar(&f.verbosity, "verbosity", 0, "client verbosity: 0 quiet, 2 logs discarded/unrelated replies")
	cmd.Flags().BoolVar(&f.hushed, "hushed", false, "suppress routine connect-failure logging")
	cmd.Flags().IntVar(&f.timeoutSec, "timeout", 2, "seconds to wait for the tracked reply; 0 waits indefinitely (spec.md §9 Open Questions)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "log level: panic, fatal, error, warning, info, debug")

	return cmd
}

func runQuery(f *flags, queryArgs []string) error {
	ctx := context.Background()

	log := logger.New(ctx)
	log.SetLevel(loglvl.Parse(f.logLevel))

	c, err := drvquery.Dial(ctx, f.socket, log)
	if err != nil {
		if f.hushed {
			os.Exit(1)
		}
		return err
	}
	defer func() { _ = c.Close() }()

	c.Verbosity = f.verbosity
	c.Hushed = f.hushed

	if err := c.NoBroadcast(); err != nil {
		return err
	}

	status, err := c.Query(drvquery.Timeout{Seconds: f.timeoutSec}, queryArgs...)
	if err != nil {
		return err
	}

	fmt.Println(status)
	if status < 0 {
		os.Exit(1)
	}
	return nil
}
