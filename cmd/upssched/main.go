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

// Command upssched is the on-demand scheduler client and, under its hidden
// --internal-serve flag, the scheduler daemon itself (spec.md §3 "upssched").
// Invoked normally by upsmon with UPSNAME and NOTIFYTYPE set in its
// environment, it loads the AT grammar from --config, matches the rules
// applicable to this event, and relays START/CANCEL requests to the daemon
// (spawning it on demand) or runs EXECUTE rules directly.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nutcore/upsched/console"
	"github.com/nutcore/upsched/daemon"
	"github.com/nutcore/upsched/dispatch"
	liberr "github.com/nutcore/upsched/errors"
	errpool "github.com/nutcore/upsched/errors/pool"
	"github.com/nutcore/upsched/logger"
	loglvl "github.com/nutcore/upsched/logger/level"
	"github.com/nutcore/upsched/schedconf"
	"github.com/nutcore/upsched/wire"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		console.ColorPrint.Println(err.Error())
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath  string
	settings    string
	socket      string
	lock        string
	cmdscript   string
	metricsAddr string
	internal    bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "upssched",
		Short: "On-demand UPS event scheduler",
		Long: "upssched relays timer and execute requests from upsmon's notify events " +
			"to a background scheduler daemon, spawning it on demand (spec.md §3-6).",
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runNotify(f)
		},
	}

	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "/etc/upssched.conf", "path to upssched.conf (CMDSCRIPT/PIPEFN/LOCKFN/AT grammar)")
	cmd.PersistentFlags().StringVar(&f.settings, "settings", "", "optional path to operational settings (viper-format: idle threshold, log level/target)")
	cmd.PersistentFlags().StringVar(&f.socket, "socket", "", "override PIPEFN from the config file")
	cmd.PersistentFlags().StringVar(&f.lock, "lock", "", "override LOCKFN from the config file")
	cmd.PersistentFlags().StringVar(&f.cmdscript, "cmdscript", "", "override CMDSCRIPT from the config file")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "bind an HTTP listener serving /metrics (daemon mode only)")
	cmd.Flags().BoolVar(&f.internal, daemon.InternalServeFlag[2:], false, "internal: run as the daemon, spawned by a client losing the race to find one listening")
	_ = cmd.Flags().MarkHidden(daemon.InternalServeFlag[2:])

	cmd.AddCommand(newSendCmd(f))
	cmd.AddCommand(newWatchCmd(f))
	return cmd
}

// runNotify is the default invocation: either the daemon (when
// --internal-serve was set, the path the child launched by daemon.Dial takes) or the
// notify-event client (the path upsmon actually runs).
func runNotify(f *rootFlags) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trapSignals(cancel)

	settings, err := schedconf.LoadSettings(f.settings)
	if err != nil {
		return err
	}
	log := newLogger(ctx, settings.LogLevel, f.internal)

	// The daemon path never reads --config: the child launched by daemon.Dial is
	// invoked with --socket/--lock/--cmdscript already resolved (spawn.go),
	// not a config file path.
	if f.internal {
		opts := daemon.Options{
			SocketPath:    f.socket,
			LockPath:      f.lock,
			CmdScript:     f.cmdscript,
			MetricsAddr:   f.metricsAddr,
			IdleThreshold: settings.IdleThreshold,
			SocketMode:    settings.SocketMode,
		}
		if err := opts.Validate(); err != nil {
			return err
		}
		return daemon.RunServer(ctx, opts, log, 3)
	}

	script, err := loadScript(f.configPath, f)
	if err != nil {
		return err
	}
	if settings.SocketPath != "" {
		script.PipeFn = settings.SocketPath
	}
	if settings.LockPath != "" {
		script.LockFn = settings.LockPath
	}

	upsname := os.Getenv("UPSNAME")
	notifyType := os.Getenv("NOTIFYTYPE")
	if upsname == "" || notifyType == "" {
		return fmt.Errorf("UPSNAME and NOTIFYTYPE must be set; this program should only be run from upsmon")
	}

	return dispatchMatches(ctx, script, upsname, notifyType, log)
}

// dispatchMatches runs every AT rule applicable to upsname/notifyType: START
// and CANCEL go to the daemon socket (which may be spawned along the way);
// EXECUTE runs the script directly with the name as argv[1] (spec.md §9
// "Shell-substitution execute").
func dispatchMatches(ctx context.Context, script *schedconf.Script, upsname, notifyType string, log logger.Logger) error {
	matches := script.Match(upsname, notifyType)
	if len(matches) == 0 {
		return nil
	}

	opts := daemon.Options{
		SocketPath: script.PipeFn,
		LockPath:   script.LockFn,
		CmdScript:  script.CmdScript,
	}

	// A single notify event can match several AT lines (spec.md §6: exact
	// and wildcard UPS name both apply). One rule failing must not stop the
	// rest from running, so every failure is collected rather than only the
	// last one surviving.
	errs := errpool.New()
	for _, rule := range matches {
		switch rule.Verb {
		case schedconf.VerbStartTimer:
			if err := sendToDaemon(ctx, opts, log, "START", rule.Arg1, rule.Arg2); err != nil {
				log.Error("START-TIMER relay failed", err, "name", rule.Arg1)
				errs.Add(err)
			}
		case schedconf.VerbCancelTimer:
			args := []string{"CANCEL", rule.Arg1}
			if rule.Arg2 != "" {
				args = append(args, rule.Arg2)
			}
			if err := sendToDaemon(ctx, opts, log, args...); err != nil {
				log.Error("CANCEL-TIMER relay failed", err, "name", rule.Arg1)
				errs.Add(err)
			}
		case schedconf.VerbExecute:
			if rule.Arg1 == "" {
				log.Error("empty EXECUTE command argument", nil)
				continue
			}
			exec := &dispatch.ScriptExecutor{Script: script.CmdScript, Log: log}
			if err := exec.Run(rule.Arg1); err != nil {
				log.Warning("EXECUTE rule reported an error", err, "name", rule.Arg1)
				errs.Add(err)
			}
		}
	}
	return errs.Error()
}

func sendToDaemon(ctx context.Context, opts daemon.Options, log logger.Logger, args ...string) error {
	nc, err := daemon.Dial(ctx, opts, log)
	if err != nil {
		return err
	}
	defer func() { _ = nc.Close() }()

	return writeFrame(nc, args...)
}

func loadScript(path string, f *rootFlags) (*schedconf.Script, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, liberr.New(uint16(liberr.KindConfigurationMissingDirective), "opening "+path, err)
	}
	defer func() { _ = fh.Close() }()

	s, err := schedconf.Parse(fh)
	if err != nil {
		return nil, err
	}

	if f.socket != "" {
		s.PipeFn = f.socket
	}
	if f.lock != "" {
		s.LockFn = f.lock
	}
	if f.cmdscript != "" {
		s.CmdScript = f.cmdscript
	}
	return s, nil
}

// newLogger builds the daemon's logger (syslog once daemonized, spec.md
// §4) or the client/notify-event logger (colorized stdout, since upsmon
// and an operator's shell both capture this process's output directly).
// A syslog connection failure falls back to stdout rather than leaving
// the daemon silently unlogged.
func newLogger(ctx context.Context, level string, daemonized bool) logger.Logger {
	var log logger.Logger

	if daemonized {
		if l, err := logger.NewSyslog(ctx, "upssched"); err == nil {
			log = l
		}
	}
	if log == nil {
		log = logger.New(ctx)
	}

	if level != "" {
		log.SetLevel(loglvl.Parse(level))
	}
	return log
}

func trapSignals(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
}

// newSendCmd is the supplemented one-shot raw-frame CLI (SPEC_FULL.md
// "Supplemented features"): send any wire frame to a running daemon and
// print whatever single reply line comes back, without consulting the AT
// grammar at all. Useful for STATUS/DUMPALL/PING during operations.
func newSendCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <frame> [args...]",
		Short: "Send one raw frame to a running daemon and print its reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			script, err := loadScript(f.configPath, f)
			if err != nil {
				return err
			}
			log := newLogger(context.Background(), "", false)
			opts := daemon.Options{
				SocketPath: script.PipeFn,
				LockPath:   script.LockFn,
				CmdScript:  script.CmdScript,
			}

			nc, err := daemon.Dial(context.Background(), opts, log)
			if err != nil {
				return err
			}
			defer func() { _ = nc.Close() }()

			if err := writeFrame(nc, args...); err != nil {
				return err
			}

			reply, err := readOneLine(nc)
			if err != nil {
				return err
			}
			console.ColorPrint.Println(reply)
			return nil
		},
	}
}

// newWatchCmd runs the config/settings watcher in the foreground until
// interrupted, re-parsing and logging a summary on every edit. Neither
// spec.md's AT grammar nor the daemon consult this at runtime (the client
// re-reads its config fresh on every notify-event invocation already); this
// is an operator tool for validating edits to upssched.conf/--settings
// before they take effect on the next notify event (SPEC_FULL.md
// "Supplemented features").
func newWatchCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch --config and --settings for edits and report reload results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			trapSignals(cancel)

			log := newLogger(ctx, "", false)
			w := &schedconf.Watcher{
				ScriptPath:   f.configPath,
				SettingsPath: f.settings,
				Log:          log,
				OnReload: func(script *schedconf.Script, settings *schedconf.Settings) {
					rules := 0
					if script != nil {
						rules = len(script.Rules)
					}
					console.ColorPrint.Println(fmt.Sprintf("reloaded: %d AT rules, idle-threshold=%d", rules, settings.IdleThreshold))
				},
				OnError: func(err error) {
					log.Warning("config reload failed", err, nil)
				},
			}
			return w.Run(ctx)
		},
	}
}

// writeFrame encodes args as one wire line and writes it, terminated by \n.
func writeFrame(nc net.Conn, args ...string) error {
	payload := []byte(wire.EncodeLine(args...) + "\n")
	n, err := nc.Write(payload)
	if err != nil {
		return liberr.New(uint16(liberr.KindPeerTransportWriteFailed), "write frame", err)
	}
	if n != len(payload) {
		return liberr.New(uint16(liberr.KindPeerTransportWriteFailed), "short write", nil)
	}
	return nil
}

// readOneLine reads and re-encodes exactly one reply frame from nc.
func readOneLine(nc net.Conn) (string, error) {
	r := bufio.NewReader(nc)
	p := wire.NewParser()
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", liberr.New(uint16(liberr.KindPeerTransportReadFailed), "read reply", err)
		}
		switch p.Feed(b) {
		case wire.Complete:
			return wire.EncodeLine(p.Args()...), nil
		case wire.Errored:
			return "", liberr.New(uint16(liberr.KindPeerProtocolMalformedFrame), "malformed reply", p.Err())
		case wire.Pending:
		}
	}
}
