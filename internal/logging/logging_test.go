/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type LoggingTestSuite struct {
	suite.Suite
	buf *bytes.Buffer
}

func (s *LoggingTestSuite) SetupTest() {
	s.buf = &bytes.Buffer{}
}

func (s *LoggingTestSuite) TestLogColor() {
	l := slog.New(NewHandler(s.buf, &Options{Level: LevelTrace, Color: true}))
	ctx := context.Background()

	l.Log(ctx, LevelTrace, "trace message")
	l.Debug("this is debug", "who", "hello world")
	l.Info("this is info")
	l.Warn("warn message")
	l.Error("this is error")

	lines := strings.Split(strings.TrimSpace(s.buf.String()), "\n")
	s.Require().Len(lines, 5)
	for i, line := range lines {
		s.True(strings.HasPrefix(line, colors[i]+levelName[i]+" "), line)
		s.True(strings.HasSuffix(line, reset), line)
	}
	s.Contains(lines[1], `who="hello world"`)
}

func (s *LoggingTestSuite) TestPlainFormat() {
	l := slog.New(NewHandler(s.buf, &Options{AddSource: true, Name: "host"}))
	l.Info("module activated", "module", "cache", "n", 3)

	line := s.buf.String()
	s.True(strings.HasPrefix(line, "Info "))
	s.Contains(line, "logging_test.go:")
	s.Contains(line, " host module activated module=cache n=3\n")
	s.NotContains(line, reset)
}

func (s *LoggingTestSuite) TestLevelFilter() {
	l := slog.New(NewHandler(s.buf, &Options{Level: slog.LevelWarn}))
	l.Info("dropped")
	l.Warn("kept")
	s.NotContains(s.buf.String(), "dropped")
	s.Contains(s.buf.String(), "kept")
}

func (s *LoggingTestSuite) TestAttrsAndGroups() {
	l := slog.New(NewHandler(s.buf, nil)).With("component", "loader").WithGroup("req")
	l.Info("load", "name", "cache", slog.Group("opt", "path", ""))
	s.Contains(s.buf.String(), `load component=loader req.name=cache req.opt.path=""`)
}

func (s *LoggingTestSuite) TestParseLevel() {
	for in, want := range map[string]slog.Level{
		"trace":   LevelTrace,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"4":       slog.LevelError,
		"0":       LevelTrace,
	} {
		got, err := ParseLevel(in)
		s.NoError(err, in)
		s.Equal(want, got, in)
	}
	_, err := ParseLevel("7")
	s.Error(err)
	_, err = ParseLevel("loud")
	s.Error(err)
}

func (s *LoggingTestSuite) TestLevelFromEnv() {
	s.T().Setenv(EnvLevel, "1")
	s.Equal(slog.LevelDebug, LevelFromEnv(slog.LevelWarn))
	s.T().Setenv(EnvLevel, "bogus")
	s.Equal(slog.LevelWarn, LevelFromEnv(slog.LevelWarn))
}

func (s *LoggingTestSuite) TestNew() {
	l, err := New(s.buf, "json", slog.LevelInfo)
	s.Require().NoError(err)
	l.Info("hi")
	s.Contains(s.buf.String(), `"msg":"hi"`)

	_, err = New(s.buf, "xml", slog.LevelInfo)
	s.Error(err)
}

func TestLoggingTestSuite(t *testing.T) {
	suite.Run(t, new(LoggingTestSuite))
}
