// Command getstats writes summary statistics for every level of detail
// of every configured pollutant over a range of years.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ctessum/aqmap"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	const firstYear, lastYear = 2001, 2019

	cfg := envConfig()
	m, err := aqmap.New(cfg, nil)
	check(err)

	var years []int
	for y := firstYear; y <= lastYear; y++ {
		years = append(years, y)
	}

	o, err := os.Create("aqmap_stats.csv")
	check(err)
	check(writeStats(context.Background(), m, cfg.Source().Pollutants(), years, o))
	check(o.Close())
}

// envConfig returns the default configuration with the data directory
// taken from AQMAP_DATADIR, the variable the aqmap command reads.
func envConfig() aqmap.Config {
	cfg := aqmap.DefaultConfig()
	v := viper.New()
	v.SetEnvPrefix("AQMAP")
	v.AutomaticEnv()
	v.SetDefault("DataDir", cfg.DataDir)
	cfg.DataDir = v.GetString("DataDir")
	return cfg
}

type row struct {
	pollutant string
	year      int
	level     int
	factor    int
	stats     aqmap.LevelStats
}

// writeStats writes one CSV row per pollutant, year, and level. Years
// of a pollutant are processed in parallel; years without data are
// skipped.
func writeStats(ctx context.Context, m *aqmap.AQMap, pollutants []string, years []int, out io.Writer) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"pollutant", "year", "level", "detail_factor", "cells", "valid", "min", "max", "mean"}); err != nil {
		return err
	}
	for _, p := range pollutants {
		rows := make([][]row, len(years))
		errs := make([]error, len(years))
		var wg sync.WaitGroup
		wg.Add(len(years))
		for i, year := range years {
			go func(i, year int) {
				defer wg.Done()
				rows[i], errs[i] = yearStats(ctx, m, p, year)
			}(i, year)
		}
		wg.Wait()
		for i, err := range errs {
			if err != nil {
				return err
			}
			for _, r := range rows[i] {
				if err := w.Write(r.strings()); err != nil {
					return err
				}
			}
		}
	}
	w.Flush()
	return w.Error()
}

func yearStats(ctx context.Context, m *aqmap.AQMap, pollutant string, year int) ([]row, error) {
	log := logrus.WithFields(logrus.Fields{"pollutant": pollutant, "year": year})
	t, err := m.Table(ctx, pollutant, year)
	if err != nil {
		if errors.Is(err, aqmap.ErrDataNotFound) {
			log.Info("no data")
			return nil, nil
		}
		return nil, err
	}
	o := make([]row, t.NumLevels())
	for i := range o {
		lod, err := t.Level(i)
		if err != nil {
			return nil, err
		}
		o[i] = row{pollutant: pollutant, year: year, level: i, factor: lod.DetailFactor, stats: lod.Stats()}
	}
	log.Infof("%d levels", len(o))
	return o, nil
}

func (r row) strings() []string {
	return []string{
		r.pollutant,
		fmt.Sprint(r.year),
		fmt.Sprint(r.level),
		fmt.Sprint(r.factor),
		fmt.Sprint(r.stats.Cells),
		fmt.Sprint(r.stats.Valid),
		fmt.Sprint(r.stats.Min),
		fmt.Sprint(r.stats.Max),
		fmt.Sprint(r.stats.Mean),
	}
}

func check(err error) {
	if err != nil {
		logrus.Fatal(err)
	}
}
