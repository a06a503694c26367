// Command loadcache requests every map tile over Great Britain for a
// range of zoom levels so that a running tile server builds and caches
// its layers.
package main

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"
)

// gbBound is the extent of the British National Grid in degrees.
var gbBound = orb.Bound{Min: orb.Point{-8.8, 49.8}, Max: orb.Point{2.0, 60.9}}

func main() {
	server := "http://localhost:8080"
	if s := os.Getenv("AQMAP_SERVER"); s != "" {
		server = s
	}
	pollutants := []string{"no2", "nox", "pm10", "pm25", "so2", "o3"}
	const year = 2019
	const minZoom, maxZoom = 5, 10

	c := make(chan query)
	var wg sync.WaitGroup
	const nprocs = 2
	wg.Add(nprocs)
	for i := 0; i < nprocs; i++ {
		go func() {
			runQuery(context.Background(), http.DefaultClient, c, &wg)
		}()
	}

	tiles := tilesIn(gbBound, minZoom, maxZoom)
	total := len(tiles) * len(pollutants)
	var i int
	for _, p := range pollutants {
		for _, t := range tiles {
			c <- query{
				url:   tileURL(server, p, year, t),
				i:     i,
				total: total,
			}
			i++
		}
	}
	close(c)
	wg.Wait()
}

type query struct {
	i, total int
	url      string
}

// tilesIn returns the tiles covering b at each zoom level from minZoom
// to maxZoom.
func tilesIn(b orb.Bound, minZoom, maxZoom maptile.Zoom) []maptile.Tile {
	var o []maptile.Tile
	for z := minZoom; z <= maxZoom; z++ {
		tl := maptile.At(orb.Point{b.Min.Lon(), b.Max.Lat()}, z)
		br := maptile.At(orb.Point{b.Max.Lon(), b.Min.Lat()}, z)
		for y := tl.Y; y <= br.Y; y++ {
			for x := tl.X; x <= br.X; x++ {
				o = append(o, maptile.New(x, y, z))
			}
		}
	}
	return o
}

func tileURL(server, pollutant string, year int, t maptile.Tile) string {
	return fmt.Sprintf("%s/tiles?x=%d&y=%d&z=%d&p=%s&yr=%d", server, t.X, t.Y, t.Z, pollutant, year)
}

func runQuery(ctx context.Context, client *http.Client, c chan query, wg *sync.WaitGroup) {
	for q := range c {
		logrus.Infof("%d/%d; %s", q.i, q.total, q.url)
		bkf := backoff.WithMaxRetries(backoff.NewConstantBackOff(30*time.Second), 10)
		err := backoff.RetryNotify(
			func() error { return fetch(ctx, client, q.url) },
			bkf,
			func(err error, d time.Duration) {
				logrus.Warnf("%v: retrying in %v", err, d)
			},
		)
		if err != nil {
			logrus.Error(err)
		}
	}
	wg.Done()
}

// fetch requests url and discards the response. Missing data is not
// an error.
func fetch(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(ioutil.Discard, resp.Body); err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		logrus.Infof("%s: no data", url)
		return nil
	default:
		return fmt.Errorf("%s: %s", url, resp.Status)
	}
}
