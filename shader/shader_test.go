// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package shader_test

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"

	"github.com/devblok/vkframe/gfx/gfxtest"
	"github.com/devblok/vkframe/shader"
	"github.com/devblok/vkframe/utility/spk"
)

var testShaders = packr.NewBox("./testdata")

func TestWords(t *testing.T) {
	c := qt.New(t)

	data, err := ioutil.ReadFile("testdata/gradient.comp.spv")
	c.Assert(err, qt.IsNil)

	words, err := shader.Words(data)
	c.Assert(err, qt.IsNil)
	c.Assert(words, qt.DeepEquals, []uint32{shader.Magic, 0x00010000, 0, 1, 0})
}

func TestWordsInvalid(t *testing.T) {
	c := qt.New(t)

	for _, data := range [][]byte{
		nil,
		{0x03, 0x02, 0x23, 0x07},
		make([]byte, 21),
		make([]byte, 20),
	} {
		_, err := shader.Words(data)
		c.Assert(errors.Cause(err), qt.Equals, shader.ErrInvalid)
	}
}

func TestFileName(t *testing.T) {
	c := qt.New(t)

	c.Assert(shader.FileName("gradient"), qt.Equals, "gradient.comp.spv")
	c.Assert(shader.FileName("gradient.comp.spv"), qt.Equals, "gradient.comp.spv")
	c.Assert(shader.EffectName("effects/sky.comp.spv"), qt.Equals, "sky")
}

func TestDir(t *testing.T) {
	c := qt.New(t)

	src := shader.Dir("testdata")
	names, err := src.Names()
	c.Assert(err, qt.IsNil)
	c.Assert(names, qt.DeepEquals, []string{"broken.comp.spv", "gradient.comp.spv", "sky.comp.spv"})

	data, err := src.Load("sky.comp.spv")
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.HasLen, 24)

	_, err = src.Load("missing.comp.spv")
	c.Assert(errors.Cause(err), qt.Equals, shader.ErrNotFound)
}

func TestBox(t *testing.T) {
	c := qt.New(t)

	src := shader.FromBox(testShaders)
	data, err := src.Load("gradient.comp.spv")
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.HasLen, 20)

	_, err = src.Load("missing.comp.spv")
	c.Assert(errors.Cause(err), qt.Equals, shader.ErrNotFound)

	names, err := src.(shader.Lister).Names()
	c.Assert(err, qt.IsNil)
	c.Assert(names, qt.HasLen, 3)
}

func writePack(c *qt.C) (string, func()) {
	b := spk.NewBuilder(spk.Header{Author: "test", Version: 1})
	for _, name := range []string{"gradient.comp.spv", "sky.comp.spv"} {
		f, err := os.Open(filepath.Join("testdata", name))
		c.Assert(err, qt.IsNil)
		c.Assert(b.Add(name, f), qt.IsNil)
		f.Close()
	}
	c.Assert(b.Add("README", bytes.NewReader([]byte("not a shader"))), qt.IsNil)

	dir, err := ioutil.TempDir("", "shader")
	c.Assert(err, qt.IsNil)

	path := filepath.Join(dir, "shaders.spk")
	f, err := os.Create(path)
	c.Assert(err, qt.IsNil)
	_, err = b.WriteTo(f)
	c.Assert(err, qt.IsNil)
	c.Assert(f.Close(), qt.IsNil)
	return path, func() { os.RemoveAll(dir) }
}

func TestPack(t *testing.T) {
	c := qt.New(t)

	path, cleanup := writePack(c)
	defer cleanup()

	pack, err := shader.OpenPack(path)
	c.Assert(err, qt.IsNil)
	defer pack.Close()

	c.Assert(pack.Header().Author, qt.Equals, "test")

	names, err := pack.Names()
	c.Assert(err, qt.IsNil)
	c.Assert(names, qt.DeepEquals, []string{"gradient.comp.spv", "sky.comp.spv"})

	data, err := pack.Load("sky.comp.spv")
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.HasLen, 24)

	_, err = pack.Load("missing.comp.spv")
	c.Assert(errors.Cause(err), qt.Equals, shader.ErrNotFound)
}

func TestOpenPackNotAnArchive(t *testing.T) {
	c := qt.New(t)

	_, err := shader.OpenPack("testdata/gradient.comp.spv")
	c.Assert(err, qt.Not(qt.IsNil))
}

type memory map[string][]byte

func (m memory) Load(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, shader.ErrNotFound
	}
	return data, nil
}

func TestChain(t *testing.T) {
	c := qt.New(t)

	override := memory{"sky.comp.spv": make([]byte, 32)}
	chain := shader.Chain{override, shader.Dir("testdata")}

	data, err := chain.Load("sky.comp.spv")
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.HasLen, 32)

	data, err = chain.Load("gradient.comp.spv")
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.HasLen, 20)

	_, err = chain.Load("missing.comp.spv")
	c.Assert(errors.Cause(err), qt.Equals, shader.ErrNotFound)

	names, err := chain.Names()
	c.Assert(err, qt.IsNil)
	c.Assert(names, qt.HasLen, 3)
}

func TestLoadModule(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	module, err := shader.LoadModule(dev, shader.Dir("testdata"), "gradient.comp.spv")
	c.Assert(err, qt.IsNil)
	c.Assert(module, qt.Not(qt.IsNil))
	dev.DestroyShaderModule(module)
	c.Assert(dev.Leaks(), qt.HasLen, 0)

	_, err = shader.LoadModule(dev, shader.Dir("testdata"), "broken.comp.spv")
	c.Assert(errors.Cause(err), qt.Equals, shader.ErrInvalid)
	c.Assert(dev.Count("CreateShaderModule"), qt.Equals, 1)

	dev.FailShaderModules = true
	_, err = shader.LoadModule(dev, shader.Dir("testdata"), "gradient.comp.spv")
	c.Assert(err, qt.Not(qt.IsNil))
}

func BenchmarkWordsSmall(b *testing.B) {
	benchmarkWords(b, 100)
}

func BenchmarkWordsMedium(b *testing.B) {
	benchmarkWords(b, 1000)
}

func BenchmarkWordsBig(b *testing.B) {
	benchmarkWords(b, 100000)
}

func benchmarkWords(b *testing.B, size int) {
	data := make([]byte, size)
	copy(data, []byte{0x03, 0x02, 0x23, 0x07})
	for idx := 0; idx < b.N; idx++ {
		shader.Words(data)
	}
}
