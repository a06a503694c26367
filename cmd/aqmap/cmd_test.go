package main

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/aqmap"
)

func TestLoadConfig(t *testing.T) {
	c, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	def := aqmap.DefaultConfig()
	if c.Levels != def.Levels || c.Scheme != def.Scheme || c.MaxVisibleCells != def.MaxVisibleCells {
		t.Errorf("config %+v", c)
	}
	if len(c.Sources) != len(def.Sources) {
		t.Fatalf("%d sources != %d", len(c.Sources), len(def.Sources))
	}
	for p, s := range def.Sources {
		if c.Sources[p] != s {
			t.Errorf("%s: %+v != %+v", p, c.Sources[p], s)
		}
	}
}

func TestVersion(t *testing.T) {
	b := new(bytes.Buffer)
	Root.SetOutput(b)
	Root.SetArgs([]string{"version"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(b.String(), Version) {
		t.Errorf("output %q", b.String())
	}
}

func TestLevelsAndExport(t *testing.T) {
	dir := filepath.Join("..", "..", "testdata")
	b := new(bytes.Buffer)
	Root.SetOutput(b)
	Root.SetArgs([]string{"levels", "--DataDir=" + dir, "--Levels=3", "--pollutant=no2", "--year=2019"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if lines := strings.Split(strings.TrimSpace(b.String()), "\n"); len(lines) != 4 {
		t.Errorf("levels output:\n%s", b.String())
	}

	out, err := ioutil.TempDir("", "aqmap_cmd")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(out)
	shp := filepath.Join(out, "no2.shp")
	Root.SetArgs([]string{"export", "--DataDir=" + dir, "--Levels=3", "--level=1", "--out=" + shp})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(shp); err != nil {
		t.Error(err)
	}
}
