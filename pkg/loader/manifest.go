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
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
)

// Manifest file names, in lookup order.
const (
	TOMLManifest = "manifest.toml"
	HCLManifest  = "manifest.hcl"
)

// ReadManifest loads the manifest found in dir. A directory without any
// manifest, or a directory that does not exist, yields an empty manifest and
// no error. A manifest that exists but cannot be decoded is an error.
func ReadManifest(dir string) (Manifest, error) {
	for _, candidate := range []struct {
		name   string
		decode func(string) (Manifest, error)
	}{
		{TOMLManifest, decodeTOML},
		{HCLManifest, decodeHCL},
	} {
		path := filepath.Join(dir, candidate.name)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat manifest %s: %w", path, err)
		}
		m, err := candidate.decode(path)
		if err != nil {
			return nil, fmt.Errorf("decode manifest %s: %w", path, err)
		}
		return m, nil
	}
	return Manifest{}, nil
}

func decodeTOML(path string) (Manifest, error) {
	raw := map[string]any{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, err
	}
	return Manifest(raw), nil
}

type hclManifest struct {
	Main   string   `hcl:"main,optional"`
	Remain hcl.Body `hcl:",remain"`
}

func decodeHCL(path string) (Manifest, error) {
	var hm hclManifest
	if err := hclsimple.DecodeFile(path, nil, &hm); err != nil {
		return nil, err
	}

	m := Manifest{}
	if hm.Main != "" {
		m[MainKey] = hm.Main
	}
	if hm.Remain == nil {
		return m, nil
	}
	attrs, diags := hm.Remain.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		v, err := ctyToGo(val)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		m[name] = v
	}
	return m, nil
}

// ctyToGo converts a known cty value into plain Go values: string, float64,
// bool, []any and map[string]any.
func ctyToGo(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsWhollyKnown() {
		return nil, errors.New("value is not known")
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		var out []any
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			v, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case ty.IsMapType() || ty.IsObjectType():
		out := map[string]any{}
		for it := val.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			v, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", ty.FriendlyName())
	}
}
