/*
 * Copyright 2025 SREDiag Authors
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

package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/plugin-lifecycle/api"
	"github.com/srediag/plugin-lifecycle/pkg/module"
)

type LoaderTestSuite struct {
	suite.Suite
	base string
}

func (s *LoaderTestSuite) SetupTest() {
	s.base = s.T().TempDir()
}

func (s *LoaderTestSuite) write(rel, content string) {
	writeFile(s.T(), s.base, rel, content)
}

func writeFile(t *testing.T, base, rel, content string) {
	t.Helper()
	path := filepath.Join(base, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type echo struct {
	*module.Base
}

func newEcho(cfg module.Config) (api.Module, error) {
	b, err := module.New(cfg)
	if err != nil {
		return nil, err
	}
	return &echo{Base: b}, nil
}

func (s *LoaderTestSuite) TestReadManifestMissing() {
	m, err := ReadManifest(filepath.Join(s.base, "absent"))
	s.Require().NoError(err)
	s.NotNil(m)
	s.Empty(m)
	s.Equal("", m.Main())
}

func (s *LoaderTestSuite) TestReadManifestTOML() {
	s.write("cache/manifest.toml", `
main = "cache-v2"
version = "1.2.0"
weight = 3

[limits]
size = 64
`)
	m, err := ReadManifest(filepath.Join(s.base, "cache"))
	s.Require().NoError(err)
	s.Equal("cache-v2", m.Main())
	s.Equal("1.2.0", m["version"])
	s.Equal(int64(3), m["weight"])
	s.Equal(map[string]any{"size": int64(64)}, m["limits"])
}

func (s *LoaderTestSuite) TestReadManifestHCL() {
	s.write("cache/manifest.hcl", `
main    = "cache.lua"
version = "0.3.1"
ratio   = 0.5
tags    = ["a", "b"]
enabled = true
`)
	m, err := ReadManifest(filepath.Join(s.base, "cache"))
	s.Require().NoError(err)
	s.Equal("cache.lua", m.Main())
	s.Equal("0.3.1", m["version"])
	s.Equal(0.5, m["ratio"])
	s.Equal([]any{"a", "b"}, m["tags"])
	s.Equal(true, m["enabled"])
}

func (s *LoaderTestSuite) TestReadManifestMalformed() {
	s.write("broken/manifest.toml", "main = ")
	_, err := ReadManifest(filepath.Join(s.base, "broken"))
	s.Require().Error(err)
}

func (s *LoaderTestSuite) TestFactoriesDefaultEntry() {
	f := NewFactories()
	f.Register("echo", newEcho)

	m, inst, err := f.Load(context.Background(), Request{Name: "echo", BaseDirectory: s.base, Options: module.Config{"k": "v"}})
	s.Require().NoError(err)
	s.Empty(m)
	e, ok := inst.(*echo)
	s.Require().True(ok)
	s.Equal("v", e.String("k"))
}

func (s *LoaderTestSuite) TestFactoriesManifestEntry() {
	f := NewFactories()
	f.Register("echo-impl", newEcho)
	s.write("echo/manifest.toml", `main = "echo-impl"`)

	m, inst, err := f.Load(context.Background(), Request{Name: "echo", BaseDirectory: s.base, Options: module.Config{}})
	s.Require().NoError(err)
	s.Equal("echo-impl", m.Main())
	s.NotNil(inst)
	s.Equal([]string{"echo-impl"}, f.Entries())
}

func (s *LoaderTestSuite) TestFactoriesErrors() {
	f := NewFactories()
	f.Register("echo", newEcho)

	_, _, err := f.Load(context.Background(), Request{Name: "other", BaseDirectory: s.base, Options: module.Config{}})
	s.ErrorIs(err, ErrEntryPointNotFound)

	_, _, err = f.Load(context.Background(), Request{Name: "echo", BaseDirectory: s.base})
	s.ErrorIs(err, module.ErrMissingConfiguration)

	s.Panics(func() { f.Register("echo", newEcho) })
}

func (s *LoaderTestSuite) TestRequestDir() {
	s.Equal(filepath.Join("mods", "a"), Request{Name: "a", BaseDirectory: "mods"}.Dir())
	s.Equal(filepath.Join("elsewhere", "a"), Request{Name: "a", BaseDirectory: "mods", Path: "elsewhere/a/"}.Dir())
}

func (s *LoaderTestSuite) TestRetryTransient() {
	var calls int32
	flaky := Func(func(ctx context.Context, req Request) (Manifest, api.Module, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, nil, errors.New("half written")
		}
		return newEchoLoad(req)
	})
	l := WithRetry(flaky, RetryPolicy{MaxRetries: 5, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})

	m, inst, err := l.Load(context.Background(), Request{Name: "echo", Options: module.Config{}})
	s.Require().NoError(err)
	s.NotNil(m)
	s.NotNil(inst)
	s.Equal(int32(3), atomic.LoadInt32(&calls))
}

func (s *LoaderTestSuite) TestRetryPermanent() {
	var calls int32
	missing := Func(func(context.Context, Request) (Manifest, api.Module, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil, ErrModuleNotFound
	})
	l := WithRetry(missing, RetryPolicy{MaxRetries: 5, InitialInterval: time.Millisecond})

	_, _, err := l.Load(context.Background(), Request{Name: "x"})
	s.ErrorIs(err, ErrModuleNotFound)
	s.Equal(int32(1), atomic.LoadInt32(&calls))
}

func (s *LoaderTestSuite) TestRetryGivesUp() {
	var calls int32
	boom := errors.New("boom")
	failing := Func(func(context.Context, Request) (Manifest, api.Module, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil, boom
	})
	l := WithRetry(failing, RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})

	_, _, err := l.Load(context.Background(), Request{Name: "x"})
	s.ErrorIs(err, boom)
	s.Equal(int32(3), atomic.LoadInt32(&calls))
}

func newEchoLoad(req Request) (Manifest, api.Module, error) {
	inst, err := newEcho(req.Options)
	return Manifest{}, inst, err
}

func TestLoaderTestSuite(t *testing.T) {
	suite.Run(t, new(LoaderTestSuite))
}
