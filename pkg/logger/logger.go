// Copyright 2018-2023 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package logger creates the zerolog loggers used across the daemon.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Mode is the logging output format mode.
type Mode string

const (
	// JSONMode outputs one JSON object per line.
	JSONMode Mode = "json"
	// ConsoleMode outputs human readable logs for development.
	ConsoleMode Mode = "console"
)

// Option customizes the logger to create.
type Option func(o *options)

type options struct {
	level  zerolog.Level
	writer io.Writer
	mode   Mode
}

// WithLevel sets the minimum level to log. Unknown levels fall
// back to info.
func WithLevel(level string) Option {
	return func(o *options) {
		l, err := zerolog.ParseLevel(level)
		if err != nil || l == zerolog.NoLevel {
			l = zerolog.InfoLevel
		}
		o.level = l
	}
}

// WithWriter sets the output writer and format mode.
func WithWriter(w io.Writer, m Mode) Option {
	return func(o *options) {
		o.writer = w
		o.mode = m
	}
}

// New returns a logger configured by the given options.
func New(opts ...Option) *zerolog.Logger {
	o := &options{
		level:  zerolog.InfoLevel,
		writer: os.Stderr,
		mode:   JSONMode,
	}
	for _, opt := range opts {
		opt(o)
	}

	w := o.writer
	if o.mode == ConsoleMode {
		w = zerolog.ConsoleWriter{Out: o.writer}
	}

	l := zerolog.New(w).With().Timestamp().Logger().Level(o.level)
	return &l
}
