package aqmap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/maptile"
)

func TestParseTileRequest(t *testing.T) {
	u, err := url.Parse("https://example.com/tiles?x=10&y=11&z=12&p=no2&yr=2019")
	if err != nil {
		t.Fatal(err)
	}
	k, tile, err := parseTileRequest(u)
	if err != nil {
		t.Fatal(err)
	}
	if k != (DatasetKey{Pollutant: "no2", Year: 2019}) {
		t.Errorf("dataset %+v", k)
	}
	if tile != maptile.New(10, 11, 12) {
		t.Errorf("tile %+v", tile)
	}

	for _, q := range []string{
		"x=10&y=11&z=12&p=no2",
		"x=10&y=11&z=12&yr=2019",
		"x=ten&y=11&z=12&p=no2&yr=2019",
		"x=10&y=11&p=no2&yr=2019",
		"x=5000&y=11&z=12&p=no2&yr=2019",
		"x=10&y=-1&z=12&p=no2&yr=2019",
	} {
		u, err := url.Parse("https://example.com/tiles?" + q)
		if err != nil {
			t.Fatal(err)
		}
		if _, _, err := parseTileRequest(u); err == nil {
			t.Errorf("%s: want an error", q)
		}
	}
}

// testLocation returns the location of the center of the base cell at
// easting 531500, northing 181500, which has value 23.125.
func testLocation(t *testing.T) LatLon {
	p, err := NewNationalGridProjector()
	if err != nil {
		t.Fatal(err)
	}
	ll, err := p.ToLatLon(531500, 181500)
	if err != nil {
		t.Fatal(err)
	}
	return ll
}

func get(t *testing.T, s http.Handler, u string, header ...string) (*http.Response, []byte) {
	w := httptest.NewRecorder()
	r, err := http.NewRequest("GET", u, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Add(header[i], header[i+1])
	}
	s.ServeHTTP(w, r)
	resp := w.Result()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, body
}

func TestMapTileServer_tiles(t *testing.T) {
	s := NewMapTileServer(testAQMap(t), 10)
	ll := testLocation(t)
	tile := maptile.At(orb.Point{ll.Lon, ll.Lat}, 12)
	u := fmt.Sprintf("https://example.com/tiles?x=%d&y=%d&z=%d&p=no2&yr=2019", tile.X, tile.Y, tile.Z)

	checkLayers := func(t *testing.T, layers mvt.Layers) {
		if len(layers) != 1 {
			t.Fatalf("wrong number of layers %d", len(layers))
		}
		if layers[0].Name != LayerName {
			t.Errorf("wrong layer name %s", layers[0].Name)
		}
		if len(layers[0].Features) == 0 {
			t.Fatal("no features")
		}
		var found bool
		for _, f := range layers[0].Features {
			v, ok := f.Properties["v"].(float64)
			if !ok {
				t.Fatalf("missing value in %+v", f.Properties)
			}
			if v == MissingValue {
				t.Error("missing cells should not be drawn")
			}
			if v == 23.125 {
				found = true
			}
			n, ok := f.Properties["n"].(float64)
			if !ok || n < 0 || n > 1 {
				t.Errorf("normalized value %v", f.Properties["n"])
			}
			if c, ok := f.Properties["c"].(string); !ok || !strings.HasPrefix(c, "#") || len(c) != 7 {
				t.Errorf("color %v", f.Properties["c"])
			}
		}
		if !found {
			t.Error("the cell at the tile location is not in the tile")
		}
	}

	t.Run("no_compression", func(t *testing.T) {
		resp, body := get(t, s, u)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d; message: %s", resp.StatusCode, string(body))
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/vnd.mapbox-vector-tile" {
			t.Errorf("content type %s", ct)
		}
		if ce := resp.Header.Get("Content-Encoding"); ce != "" {
			t.Errorf("content encoding %s", ce)
		}
		layers, err := mvt.Unmarshal(body)
		if err != nil {
			t.Fatal(err)
		}
		checkLayers(t, layers)
	})

	t.Run("gzip", func(t *testing.T) {
		resp, body := get(t, s, u, "Accept-Encoding", "gzip")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d; message: %s", resp.StatusCode, string(body))
		}
		if ce := resp.Header.Get("Content-Encoding"); ce != "gzip" {
			t.Errorf("content encoding %s", ce)
		}
		layers, err := mvt.UnmarshalGzipped(body)
		if err != nil {
			t.Fatal(err)
		}
		checkLayers(t, layers)
	})

	t.Run("brotli", func(t *testing.T) {
		resp, body := get(t, s, u, "Accept-Encoding", "gzip, deflate, br")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d; message: %s", resp.StatusCode, string(body))
		}
		if ce := resp.Header.Get("Content-Encoding"); ce != "br" {
			t.Errorf("content encoding %s", ce)
		}
		data, err := ioutil.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			t.Fatal(err)
		}
		layers, err := mvt.Unmarshal(data)
		if err != nil {
			t.Fatal(err)
		}
		checkLayers(t, layers)
	})

	t.Run("empty_tile", func(t *testing.T) {
		resp, body := get(t, s, "https://example.com/tiles?x=0&y=0&z=12&p=no2&yr=2019")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d; message: %s", resp.StatusCode, string(body))
		}
		layers, err := mvt.Unmarshal(body)
		if err != nil {
			t.Fatal(err)
		}
		for _, l := range layers {
			if len(l.Features) != 0 {
				t.Errorf("%d features in a tile with no data", len(l.Features))
			}
		}
	})
}

func TestMapTileServer_errors(t *testing.T) {
	s := NewMapTileServer(testAQMap(t), 10)
	for _, test := range []struct {
		u    string
		code int
	}{
		{u: "https://example.com/tiles?x=1&y=1&z=2&p=co&yr=2019", code: http.StatusNotFound},
		{u: "https://example.com/tiles?x=1&y=1&z=2&p=no2&yr=1990", code: http.StatusNotFound},
		{u: "https://example.com/tiles?x=1&y=1&z=2&p=no2", code: http.StatusBadRequest},
		{u: "https://example.com/tiles?x=9&y=1&z=2&p=no2&yr=2019", code: http.StatusBadRequest},
		{u: "https://example.com/legend?p=no2&yr=2019&scheme=rainbow", code: http.StatusBadRequest},
		{u: "https://example.com/value?p=no2&yr=2019&z=12&lat=north&lon=0", code: http.StatusBadRequest},
		{u: "https://example.com/value?p=no2&yr=2019&z=12&lat=0&lon=0", code: http.StatusNotFound},
		{u: "https://example.com/other", code: http.StatusNotFound},
	} {
		resp, body := get(t, s, test.u)
		if resp.StatusCode != test.code {
			t.Errorf("%s: status %d != %d; message: %s", test.u, resp.StatusCode, test.code, string(body))
		}
	}
}

func TestMapTileServer_legend(t *testing.T) {
	s := NewMapTileServer(testAQMap(t), 10)
	for _, scheme := range []string{"", "colorblind"} {
		resp, body := get(t, s, "https://example.com/legend?p=no2&yr=2019&scheme="+scheme)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d; message: %s", resp.StatusCode, string(body))
		}
		if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("content type %s", ct)
		}
		if _, err := png.Decode(bytes.NewReader(body)); err != nil {
			t.Error(err)
		}
	}
}

func TestMapTileServer_value(t *testing.T) {
	s := NewMapTileServer(testAQMap(t), 10)
	ll := testLocation(t)
	u := fmt.Sprintf("https://example.com/value?p=no2&yr=2019&z=12&lat=%g&lon=%g", ll.Lat, ll.Lon)
	resp, body := get(t, s, u)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d; message: %s", resp.StatusCode, string(body))
	}
	var pv PointValue
	if err := json.Unmarshal(body, &pv); err != nil {
		t.Fatal(err)
	}
	if pv.Value != 23.125 || pv.Units != "ugm-3" || pv.Easting != 531500 || pv.Northing != 181500 {
		t.Errorf("value %+v", pv)
	}
	if pv.SI == "" {
		t.Error("missing SI value")
	}
}

func TestTilePixelScale(t *testing.T) {
	// The whole world at zoom 0 is one tile 256 pixels wide.
	s := TilePixelScale(maptile.New(0, 0, 0))
	if !similar(s, 40075016.686/256, 1) {
		t.Errorf("scale %g", s)
	}
}
