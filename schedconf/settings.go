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

package schedconf

import (
	"strings"

	libmap "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	liberr "github.com/nutcore/upsched/errors"
	"github.com/nutcore/upsched/file/perm"
)

// Settings are the scalar operational knobs a deployment wants to override
// without recompiling: socket/lock path overrides, idle threshold, the
// tracked-request default timeout, logging target/level, and the socket's
// filesystem permission. These sit alongside the positional AT grammar
// (script.go) rather than replacing it (SPEC_FULL.md "Domain stack").
type Settings struct {
	SocketPath         string
	LockPath           string
	IdleThreshold      int
	TrackedTimeoutSecs int
	LogLevel           string
	LogTarget          string
	SocketMode         perm.Perm
}

const (
	keySocketPath    = "socket_path"
	keyLockPath      = "lock_path"
	keyIdleThreshold = "idle_threshold"
	keyTrackedSecs   = "tracked_timeout_seconds"
	keyLogLevel      = "log_level"
	keyLogTarget     = "log_target"
	keySocketMode    = "socket_mode"
	envPrefix        = "UPSSCHED"
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetDefault(keyIdleThreshold, 15)
	v.SetDefault(keyTrackedSecs, 15)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogTarget, "stderr")
	v.SetDefault(keySocketMode, "0660")
	return v
}

// LoadSettings reads operational settings from path (any format viper
// supports: YAML, TOML, JSON, ...) merged over defaults and environment
// variables prefixed UPSSCHED_. An empty path means defaults+environment
// only.
func LoadSettings(path string) (*Settings, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, liberr.New(uint16(liberr.KindConfigurationBadArgument), "reading operational settings: "+path, err)
		}
	}

	return settingsFromViper(v)
}

func settingsFromViper(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		SocketPath:         v.GetString(keySocketPath),
		LockPath:           v.GetString(keyLockPath),
		IdleThreshold:      v.GetInt(keyIdleThreshold),
		TrackedTimeoutSecs: v.GetInt(keyTrackedSecs),
		LogLevel:           strings.ToLower(v.GetString(keyLogLevel)),
		LogTarget:          v.GetString(keyLogTarget),
	}

	// socket_mode accepts either octal ("0660") or symbolic ("rw-rw----")
	// notation; perm.ViperDecoderHook does the conversion during decode so
	// the rest of the daemon only ever sees a perm.Perm.
	if err := v.UnmarshalKey(keySocketMode, &s.SocketMode, viper.DecoderConfigOption(func(c *libmap.DecoderConfig) {
		c.DecodeHook = perm.ViperDecoderHook()
	})); err != nil {
		return nil, liberr.New(uint16(liberr.KindConfigurationBadArgument), "parsing socket_mode", err)
	}

	return s, nil
}
